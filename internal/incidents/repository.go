package incidents

import (
	"context"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
)

// Repository defines the interface for incident storage. Every call is
// scoped to one organization.
type Repository interface {
	// Create stores an incident together with its first update. Either both
	// are stored or neither is.
	Create(ctx context.Context, incident *domain.Incident, first *domain.Update) error

	// Get returns the incident with its full timeline.
	Get(ctx context.Context, orgID, id string) (*domain.Incident, error)

	// List returns matching incidents, newest first, with their timelines.
	List(ctx context.Context, orgID string, filter ListFilter) ([]domain.Incident, error)

	// Mutate loads the incident under exclusive access and runs fn. Changes
	// made through tx are committed only when fn returns nil. fn must not
	// call back into the repository.
	Mutate(ctx context.Context, orgID, id string, fn MutateFunc) error

	// History returns the updates of an incident ordered by sequence.
	History(ctx context.Context, orgID, id string) ([]domain.Update, error)

	// HasActiveIncidents reports whether serviceID is attached to an
	// unresolved incident.
	HasActiveIncidents(ctx context.Context, orgID, serviceID string) (bool, error)
}

// MutateFunc changes one incident inside a Repository.Mutate call.
type MutateFunc func(ctx context.Context, tx Tx, incident *domain.Incident) error

// Tx records the changes of one Mutate call.
type Tx interface {
	AppendUpdate(ctx context.Context, update *domain.Update) error
	SaveIncident(ctx context.Context, incident *domain.Incident) error
	DeleteIncident(ctx context.Context) error
}

// ListFilter represents filter criteria for listing incidents.
type ListFilter struct {
	Type         *domain.IncidentType
	Resolved     *bool
	StartedAfter *time.Time
	Limit        int
}

// Matches reports whether incident passes the filter. Limit is applied by
// the caller.
func (f ListFilter) Matches(incident *domain.Incident) bool {
	if f.Type != nil && incident.Type != *f.Type {
		return false
	}
	if f.Resolved != nil && incident.IsResolved() != *f.Resolved {
		return false
	}
	if f.StartedAfter != nil && incident.StartedAt.Before(*f.StartedAfter) {
		return false
	}
	return true
}
