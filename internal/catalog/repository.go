package catalog

import (
	"context"

	"github.com/bissquit/statusboard/internal/domain"
)

// Repository defines the interface for service storage. Every call is
// scoped to one organization.
type Repository interface {
	CreateService(ctx context.Context, service *domain.Service) error
	GetService(ctx context.Context, orgID, id string) (*domain.Service, error)
	ListServices(ctx context.Context, orgID string, filter ServiceFilter) ([]domain.Service, error)
	// MutateService loads a service with the row locked, lets fn change it
	// and stores the result. An error from fn aborts without writing.
	MutateService(ctx context.Context, orgID, id string, fn func(*domain.Service) error) (*domain.Service, error)
	DeleteService(ctx context.Context, orgID, id string) error

	// MissingServiceIDs returns the ids that do not name a service of orgID.
	MissingServiceIDs(ctx context.Context, orgID string, ids []string) ([]string, error)
}

// ServiceFilter represents filter criteria for listing services.
type ServiceFilter struct {
	Status *domain.ServiceStatus
}

// Matches reports whether service passes the filter.
func (f ServiceFilter) Matches(service *domain.Service) bool {
	return f.Status == nil || service.Status == *f.Status
}
