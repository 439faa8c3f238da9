// Package memory provides an in-process implementation of the catalog repository.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/statusboard/internal/catalog"
	"github.com/bissquit/statusboard/internal/domain"
	"github.com/google/uuid"
)

// Repository implements catalog.Repository in memory.
type Repository struct {
	mu       sync.RWMutex
	services map[string]domain.Service
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{services: make(map[string]domain.Service)}
}

// CreateService stores a new service and assigns its id and timestamps.
func (r *Repository) CreateService(_ context.Context, service *domain.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	service.ID = uuid.New().String()
	service.CreatedAt = now
	service.UpdatedAt = now
	r.services[service.ID] = *service
	return nil
}

// GetService retrieves a service of orgID.
func (r *Repository) GetService(_ context.Context, orgID, id string) (*domain.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.services[id]
	if !ok || s.OrganizationID != orgID {
		return nil, catalog.ErrServiceNotFound
	}
	return &s, nil
}

// ListServices returns services of orgID ordered by name.
func (r *Repository) ListServices(_ context.Context, orgID string, filter catalog.ServiceFilter) ([]domain.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Service, 0)
	for _, s := range r.services {
		if s.OrganizationID == orgID && filter.Matches(&s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// MutateService applies fn to a copy of the service while holding the
// write lock and stores the copy when fn succeeds.
func (r *Repository) MutateService(_ context.Context, orgID, id string, fn func(*domain.Service) error) (*domain.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.services[id]
	if !ok || existing.OrganizationID != orgID {
		return nil, catalog.ErrServiceNotFound
	}

	service := existing
	if err := fn(&service); err != nil {
		return nil, err
	}
	service.ID = existing.ID
	service.OrganizationID = existing.OrganizationID
	service.CreatedAt = existing.CreatedAt
	service.UpdatedAt = time.Now().UTC()
	r.services[id] = service

	out := service
	return &out, nil
}

// DeleteService removes a service.
func (r *Repository) DeleteService(_ context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.services[id]
	if !ok || s.OrganizationID != orgID {
		return catalog.ErrServiceNotFound
	}
	delete(r.services, id)
	return nil
}

// MissingServiceIDs returns ids not owned by orgID.
func (r *Repository) MissingServiceIDs(_ context.Context, orgID string, ids []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, id := range ids {
		if s, ok := r.services[id]; !ok || s.OrganizationID != orgID {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
