// Package memory provides an in-process implementation of the incidents repository.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/incidents"
	"github.com/google/uuid"
)

// Repository implements incidents.Repository in memory. Stored incidents
// carry their timeline in Updates.
type Repository struct {
	mu        sync.RWMutex
	incidents map[string]domain.Incident
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{incidents: make(map[string]domain.Incident)}
}

func clone(i domain.Incident) domain.Incident {
	i.ServiceIDs = append([]string(nil), i.ServiceIDs...)
	i.Updates = append([]domain.Update(nil), i.Updates...)
	return i
}

func (r *Repository) lookup(orgID, id string) (domain.Incident, bool) {
	i, ok := r.incidents[id]
	if !ok || i.OrganizationID != orgID {
		return domain.Incident{}, false
	}
	return i, true
}

// Create stores an incident with its first update.
func (r *Repository) Create(_ context.Context, incident *domain.Incident, first *domain.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	incident.ID = uuid.New().String()
	incident.CreatedAt = now
	incident.UpdatedAt = now

	first.ID = uuid.New().String()
	first.IncidentID = incident.ID

	stored := clone(*incident)
	stored.Updates = []domain.Update{*first}
	r.incidents[incident.ID] = stored
	return nil
}

// Get retrieves an incident of orgID.
func (r *Repository) Get(_ context.Context, orgID, id string) (*domain.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.lookup(orgID, id)
	if !ok {
		return nil, incidents.ErrIncidentNotFound
	}
	c := clone(i)
	return &c, nil
}

// List returns incidents of orgID ordered by started_at, newest first.
func (r *Repository) List(_ context.Context, orgID string, filter incidents.ListFilter) ([]domain.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Incident, 0)
	for _, i := range r.incidents {
		if i.OrganizationID == orgID && filter.Matches(&i) {
			out = append(out, clone(i))
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].StartedAt.Equal(out[b].StartedAt) {
			return out[a].ID > out[b].ID
		}
		return out[a].StartedAt.After(out[b].StartedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Mutate runs fn on a working copy while holding the write lock and
// applies the staged changes when fn succeeds.
func (r *Repository) Mutate(ctx context.Context, orgID, id string, fn incidents.MutateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	base, ok := r.lookup(orgID, id)
	if !ok {
		return incidents.ErrIncidentNotFound
	}

	working := clone(base)
	tx := &tx{}
	if err := fn(ctx, tx, &working); err != nil {
		return err
	}

	if tx.deleted {
		delete(r.incidents, id)
		return nil
	}

	stored := clone(base)
	if tx.saved != nil {
		stored = clone(*tx.saved)
		stored.UpdatedAt = time.Now().UTC()
		working.UpdatedAt = stored.UpdatedAt
	}
	stored.Updates = append(append([]domain.Update(nil), base.Updates...), tx.appended...)
	r.incidents[id] = stored
	return nil
}

// History returns the updates of an incident ordered by sequence.
func (r *Repository) History(_ context.Context, orgID, id string) ([]domain.Update, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.lookup(orgID, id)
	if !ok {
		return nil, incidents.ErrIncidentNotFound
	}
	return append([]domain.Update(nil), i.Updates...), nil
}

// HasActiveIncidents reports whether serviceID belongs to an unresolved incident.
func (r *Repository) HasActiveIncidents(_ context.Context, orgID, serviceID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, i := range r.incidents {
		if i.OrganizationID != orgID || i.IsResolved() {
			continue
		}
		for _, sid := range i.ServiceIDs {
			if sid == serviceID {
				return true, nil
			}
		}
	}
	return false, nil
}

type tx struct {
	appended []domain.Update
	saved    *domain.Incident
	deleted  bool
}

func (t *tx) AppendUpdate(_ context.Context, update *domain.Update) error {
	update.ID = uuid.New().String()
	t.appended = append(t.appended, *update)
	return nil
}

func (t *tx) SaveIncident(_ context.Context, incident *domain.Incident) error {
	c := clone(*incident)
	t.saved = &c
	return nil
}

func (t *tx) DeleteIncident(_ context.Context) error {
	t.deleted = true
	return nil
}
