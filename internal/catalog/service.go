// Package catalog manages the services an organization reports status for.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
	"github.com/bissquit/statusboard/internal/pkg/keylock"
)

// errUnchanged aborts a mutation that would not change the row.
var errUnchanged = errors.New("service unchanged")

// EventPublisher broadcasts mutations to organization channels.
type EventPublisher interface {
	Publish(ctx context.Context, orgID string, eventType domain.EventType, payload any)
}

// IncidentChecker reports whether a service is referenced by an unresolved incident.
type IncidentChecker interface {
	HasActiveIncidents(ctx context.Context, orgID, serviceID string) (bool, error)
}

// Service implements catalog business logic.
type Service struct {
	repo      Repository
	publisher EventPublisher
	incidents IncidentChecker
	locks     *keylock.Map
}

// NewService creates a new catalog service.
func NewService(repo Repository, publisher EventPublisher, incidents IncidentChecker) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		incidents: incidents,
		locks:     keylock.New(),
	}
}

// CreateServiceInput holds data for creating a service.
type CreateServiceInput struct {
	Name        string
	Description string
	Status      domain.ServiceStatus
}

// UpdateServiceInput holds editable service fields. Nil fields are left as is.
type UpdateServiceInput struct {
	Name        *string
	Description *string
}

// Create creates a new service. Status defaults to operational.
func (s *Service) Create(ctx context.Context, scope domain.Scope, input CreateServiceInput) (*domain.Service, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.NewValidationError("name", "must not be blank")
	}

	status := input.Status
	if status == "" {
		status = domain.ServiceStatusOperational
	}
	if !status.IsValid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}

	service := &domain.Service{
		OrganizationID: scope.OrganizationID,
		Name:           name,
		Description:    input.Description,
		Status:         status,
	}
	if err := s.repo.CreateService(ctx, service); err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}

	s.publisher.Publish(ctx, scope.OrganizationID, domain.EventServiceCreated, domain.ServiceEvent{Service: *service})
	return service, nil
}

// Get retrieves a service by id.
func (s *Service) Get(ctx context.Context, scope domain.Scope, id string) (*domain.Service, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.GetService(ctx, scope.OrganizationID, id)
}

// List retrieves the services of the scope's organization ordered by name.
func (s *Service) List(ctx context.Context, scope domain.Scope, filter ServiceFilter) ([]domain.Service, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", *filter.Status))
	}
	return s.repo.ListServices(ctx, scope.OrganizationID, filter)
}

// Update changes a service's name or description. Mutations of one
// service are serialized and published in commit order.
func (s *Service) Update(ctx context.Context, scope domain.Scope, id string, input UpdateServiceInput) (*domain.Service, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	var name string
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domain.NewValidationError("name", "must not be blank")
		}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	service, err := s.repo.MutateService(ctx, scope.OrganizationID, id, func(service *domain.Service) error {
		if input.Name != nil {
			service.Name = name
		}
		if input.Description != nil {
			service.Description = *input.Description
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update service: %w", err)
	}

	s.publisher.Publish(ctx, scope.OrganizationID, domain.EventServiceUpdated, domain.ServiceEvent{Service: *service})
	return service, nil
}

// SetStatus changes a service's status. Setting the current status again
// is accepted and publishes nothing.
func (s *Service) SetStatus(ctx context.Context, scope domain.Scope, id string, status domain.ServiceStatus) (*domain.Service, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	var (
		previous domain.ServiceStatus
		current  domain.Service
	)
	service, err := s.repo.MutateService(ctx, scope.OrganizationID, id, func(service *domain.Service) error {
		previous = service.Status
		if previous == status {
			current = *service
			return errUnchanged
		}
		service.Status = status
		return nil
	})
	switch {
	case errors.Is(err, errUnchanged):
		return &current, nil
	case errors.Is(err, domain.ErrNotFound):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("update service status: %w", err)
	}

	ctxlog.FromContext(ctx).Info("service status changed",
		"organization_id", scope.OrganizationID,
		"service_id", id,
		"from", previous,
		"to", status,
	)

	s.publisher.Publish(ctx, scope.OrganizationID, domain.EventServiceStatusChanged, domain.ServiceEvent{
		Service:        *service,
		PreviousStatus: previous,
	})
	return service, nil
}

// Delete removes a service. Services attached to an unresolved incident
// cannot be deleted.
func (s *Service) Delete(ctx context.Context, scope domain.Scope, id string) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if _, err := s.repo.GetService(ctx, scope.OrganizationID, id); err != nil {
		return err
	}

	active, err := s.incidents.HasActiveIncidents(ctx, scope.OrganizationID, id)
	if err != nil {
		return fmt.Errorf("check active incidents: %w", err)
	}
	if active {
		return ErrServiceHasActiveIncidents
	}

	if err := s.repo.DeleteService(ctx, scope.OrganizationID, id); err != nil {
		return fmt.Errorf("delete service: %w", err)
	}

	s.publisher.Publish(ctx, scope.OrganizationID, domain.EventServiceDeleted, domain.DeletedEvent{ID: id})
	return nil
}

// MissingServiceIDs returns the ids in ids that are not services of orgID.
func (s *Service) MissingServiceIDs(ctx context.Context, orgID string, ids []string) ([]string, error) {
	return s.repo.MissingServiceIDs(ctx, orgID, ids)
}
