// Package incidents implements the incident lifecycle and its append-only
// update timeline.
package incidents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
	"github.com/bissquit/statusboard/internal/pkg/keylock"
)

// EventPublisher broadcasts mutations to organization channels.
type EventPublisher interface {
	Publish(ctx context.Context, orgID string, eventType domain.EventType, payload any)
}

// ServiceChecker resolves service ids of an organization.
type ServiceChecker interface {
	MissingServiceIDs(ctx context.Context, orgID string, ids []string) ([]string, error)
}

// Service implements incident business logic.
type Service struct {
	repo      Repository
	log       *UpdateLog
	services  ServiceChecker
	publisher EventPublisher
	locks     *keylock.Map
	now       func() time.Time
}

// NewService creates a new incidents service.
func NewService(repo Repository, services ServiceChecker, publisher EventPublisher) *Service {
	return &Service{
		repo:      repo,
		log:       NewUpdateLog(repo),
		services:  services,
		publisher: publisher,
		locks:     keylock.New(),
		now:       time.Now,
	}
}

// UpdateLog returns the timeline the service appends to.
func (s *Service) UpdateLog() *UpdateLog {
	return s.log
}

// CreateInput holds data for creating an incident or maintenance record.
type CreateInput struct {
	Title              string
	Impact             domain.Impact
	Type               domain.IncidentType
	ServiceIDs         []string
	InitialStatus      domain.IncidentStatus
	InitialMessage     string
	ScheduledStartTime *time.Time
	ScheduledEndTime   *time.Time
}

// AppendInput holds data for a new timeline entry. An empty Status keeps
// the current status and records a note.
type AppendInput struct {
	Message  string
	Status   domain.IncidentStatus
	IsPublic bool
}

// DetailsInput holds editable incident fields. Nil fields are left as is.
type DetailsInput struct {
	Title              *string
	Impact             *domain.Impact
	ServiceIDs         []string
	ScheduledStartTime *time.Time
	ScheduledEndTime   *time.Time
}

// Create creates an incident and its first update atomically.
func (s *Service) Create(ctx context.Context, scope domain.Scope, input CreateInput) (incident *domain.Incident, err error) {
	defer func() { recordMutation("create", err) }()

	if err := scope.Validate(); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domain.NewValidationError("title", "must not be blank")
	}
	if !input.Impact.IsValid() {
		return nil, domain.NewValidationError("impact", fmt.Sprintf("unknown impact %q", input.Impact))
	}
	if !input.Type.IsValid() {
		return nil, domain.NewValidationError("type", fmt.Sprintf("unknown type %q", input.Type))
	}

	status := input.InitialStatus
	if status == "" {
		status = DefaultInitialStatus(input.Type)
	}
	if err := ValidateInitialStatus(input.Type, status); err != nil {
		return nil, err
	}
	if err := validateSchedule(input.Type, input.ScheduledStartTime, input.ScheduledEndTime); err != nil {
		return nil, err
	}

	serviceIDs, err := s.checkServices(ctx, scope.OrganizationID, input.ServiceIDs)
	if err != nil {
		return nil, err
	}

	message := strings.TrimSpace(input.InitialMessage)
	if message == "" {
		message = defaultInitialMessage(input.Type, title)
	}

	now := s.now().UTC()
	incident = &domain.Incident{
		OrganizationID:     scope.OrganizationID,
		Title:              title,
		Impact:             input.Impact,
		Type:               input.Type,
		Status:             status,
		StartedAt:          now,
		ScheduledStartTime: input.ScheduledStartTime,
		ScheduledEndTime:   input.ScheduledEndTime,
		ServiceIDs:         serviceIDs,
		CreatedBy:          scope.ActorID,
	}

	first := &domain.Update{
		Message:   message,
		Status:    status,
		IsPublic:  true,
		CreatedBy: scope.ActorID,
	}
	s.log.stamp(nil, first)

	if err := s.repo.Create(ctx, incident, first); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	incident.Updates = []domain.Update{*first}

	ctxlog.FromContext(ctx).Info("incident created",
		"organization_id", scope.OrganizationID,
		"incident_id", incident.ID,
		"type", incident.Type,
		"status", incident.Status,
	)

	s.publisher.Publish(ctx, scope.OrganizationID, domain.EventIncidentCreated,
		domain.NewIncidentEvent(incident, first, ""))
	return incident, nil
}

// Get retrieves an incident with its timeline.
func (s *Service) Get(ctx context.Context, scope domain.Scope, id string) (*domain.Incident, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, scope.OrganizationID, id)
}

// List retrieves incidents of the scope's organization, newest first.
func (s *Service) List(ctx context.Context, scope domain.Scope, filter ListFilter) ([]domain.Incident, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if filter.Type != nil && !filter.Type.IsValid() {
		return nil, domain.NewValidationError("type", fmt.Sprintf("unknown type %q", *filter.Type))
	}
	if filter.Limit < 0 {
		return nil, domain.NewValidationError("limit", "must not be negative")
	}
	return s.repo.List(ctx, scope.OrganizationID, filter)
}

// History returns the timeline of an incident in append order.
func (s *Service) History(ctx context.Context, scope domain.Scope, id string) ([]domain.Update, error) {
	return s.log.History(ctx, scope, id)
}

// HasActiveIncidents reports whether serviceID is attached to an unresolved incident.
func (s *Service) HasActiveIncidents(ctx context.Context, orgID, serviceID string) (bool, error) {
	return s.repo.HasActiveIncidents(ctx, orgID, serviceID)
}

// AppendUpdate appends an update to the incident timeline and moves the
// incident to the update's status.
func (s *Service) AppendUpdate(ctx context.Context, scope domain.Scope, id string, input AppendInput) (update *domain.Update, err error) {
	defer func() { recordMutation("append_update", err) }()

	if err := scope.Validate(); err != nil {
		return nil, err
	}
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, domain.NewValidationError("message", "must not be blank")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	incident, update, previous, err := s.appendUpdate(ctx, scope, id, message, input.Status, input.IsPublic)
	if err != nil {
		return nil, err
	}

	s.publishUpdate(ctx, domain.EventIncidentUpdateAdded, incident, update, previous)
	return update, nil
}

// Resolve appends a public resolving update.
func (s *Service) Resolve(ctx context.Context, scope domain.Scope, id, message string) (incident *domain.Incident, err error) {
	defer func() { recordMutation("resolve", err) }()

	if err := scope.Validate(); err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.NewValidationError("message", "must not be blank")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	incident, update, previous, err := s.appendUpdate(ctx, scope, id, message, domain.IncidentStatusResolved, true)
	if err != nil {
		return nil, err
	}

	s.publishUpdate(ctx, domain.EventIncidentUpdateAdded, incident, update, previous)
	return incident, nil
}

// ChangeStatus moves the incident to status and records the change as a
// public update. message may be empty.
func (s *Service) ChangeStatus(ctx context.Context, scope domain.Scope, id string, status domain.IncidentStatus, message string) (incident *domain.Incident, err error) {
	defer func() { recordMutation("change_status", err) }()

	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if status == "" {
		return nil, domain.NewValidationError("status", "required")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = fmt.Sprintf("Status changed to %s", status)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	incident, update, previous, err := s.appendUpdate(ctx, scope, id, message, status, true)
	if err != nil {
		return nil, err
	}

	s.publishUpdate(ctx, domain.EventIncidentStatusChanged, incident, update, previous)
	return incident, nil
}

// appendUpdate commits one timeline entry. Callers hold the incident lock
// from before the commit until their event is published, so events of one
// incident reach the router in commit order.
func (s *Service) appendUpdate(
	ctx context.Context,
	scope domain.Scope,
	id, message string,
	status domain.IncidentStatus,
	isPublic bool,
) (*domain.Incident, *domain.Update, domain.IncidentStatus, error) {
	var (
		result   *domain.Incident
		previous domain.IncidentStatus
		update   = &domain.Update{
			Message:   message,
			Status:    status,
			IsPublic:  isPublic,
			CreatedBy: scope.ActorID,
		}
	)

	err := s.repo.Mutate(ctx, scope.OrganizationID, id, func(ctx context.Context, tx Tx, incident *domain.Incident) error {
		previous = incident.Status
		if update.Status == "" {
			update.Status = incident.Status
		}
		if err := ValidateTransition(incident.Type, incident.Status, update.Status); err != nil {
			return err
		}

		if err := s.log.Append(ctx, tx, incident, update); err != nil {
			return fmt.Errorf("append update: %w", err)
		}
		if incident.Status.IsResolved() && incident.ResolvedAt == nil {
			resolvedAt := update.CreatedAt
			incident.ResolvedAt = &resolvedAt
		}
		if err := tx.SaveIncident(ctx, incident); err != nil {
			return fmt.Errorf("save incident: %w", err)
		}
		result = incident
		return nil
	})
	if err != nil {
		return nil, nil, "", err
	}

	if previous != result.Status {
		ctxlog.FromContext(ctx).Info("incident status changed",
			"organization_id", scope.OrganizationID,
			"incident_id", id,
			"from", previous,
			"to", result.Status,
		)
	}
	return result, update, previous, nil
}

func (s *Service) publishUpdate(ctx context.Context, eventType domain.EventType, incident *domain.Incident, update *domain.Update, previous domain.IncidentStatus) {
	s.publisher.Publish(ctx, incident.OrganizationID, eventType, domain.NewIncidentEvent(incident, update, previous))
}

// UpdateDetails changes the title, impact, affected services or schedule of
// an unresolved incident.
func (s *Service) UpdateDetails(ctx context.Context, scope domain.Scope, id string, input DetailsInput) (result *domain.Incident, err error) {
	defer func() { recordMutation("update_details", err) }()

	if err := scope.Validate(); err != nil {
		return nil, err
	}

	var title string
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, domain.NewValidationError("title", "must not be blank")
		}
	}
	if input.Impact != nil && !input.Impact.IsValid() {
		return nil, domain.NewValidationError("impact", fmt.Sprintf("unknown impact %q", *input.Impact))
	}

	var serviceIDs []string
	if input.ServiceIDs != nil {
		serviceIDs, err = s.checkServices(ctx, scope.OrganizationID, input.ServiceIDs)
		if err != nil {
			return nil, err
		}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	err = s.repo.Mutate(ctx, scope.OrganizationID, id, func(ctx context.Context, tx Tx, incident *domain.Incident) error {
		if incident.IsResolved() {
			return ErrIncidentReadOnly
		}

		if input.Title != nil {
			incident.Title = title
		}
		if input.Impact != nil {
			incident.Impact = *input.Impact
		}
		if serviceIDs != nil {
			incident.ServiceIDs = serviceIDs
		}
		if input.ScheduledStartTime != nil {
			incident.ScheduledStartTime = input.ScheduledStartTime
		}
		if input.ScheduledEndTime != nil {
			incident.ScheduledEndTime = input.ScheduledEndTime
		}
		if err := validateSchedule(incident.Type, incident.ScheduledStartTime, incident.ScheduledEndTime); err != nil {
			return err
		}

		if err := tx.SaveIncident(ctx, incident); err != nil {
			return fmt.Errorf("save incident: %w", err)
		}
		result = incident
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, scope.OrganizationID, domain.EventIncidentUpdated, domain.NewIncidentEvent(result, nil, ""))
	return result, nil
}

// Delete removes a resolved incident and its timeline.
func (s *Service) Delete(ctx context.Context, scope domain.Scope, id string) (err error) {
	defer func() { recordMutation("delete", err) }()

	if err := scope.Validate(); err != nil {
		return err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	err = s.repo.Mutate(ctx, scope.OrganizationID, id, func(ctx context.Context, tx Tx, incident *domain.Incident) error {
		if !incident.IsResolved() {
			return ErrIncidentActive
		}
		return tx.DeleteIncident(ctx)
	})
	if err != nil {
		return err
	}

	ctxlog.FromContext(ctx).Info("incident deleted",
		"organization_id", scope.OrganizationID,
		"incident_id", id,
	)

	s.publisher.Publish(ctx, scope.OrganizationID, domain.EventIncidentDeleted, domain.DeletedEvent{ID: id})
	return nil
}

// checkServices trims and de-duplicates ids and verifies that every one
// names a service of orgID.
func (s *Service) checkServices(ctx context.Context, orgID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, domain.NewValidationError("service_ids", "at least one service is required")
	}

	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, domain.NewValidationError("service_ids", "must not contain blank ids")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}

	missing, err := s.services.MissingServiceIDs(ctx, orgID, out)
	if err != nil {
		return nil, fmt.Errorf("check services: %w", err)
	}
	if len(missing) > 0 {
		return nil, domain.NewValidationError("service_ids",
			fmt.Sprintf("unknown services: %s", strings.Join(missing, ", ")))
	}
	return out, nil
}

func validateSchedule(t domain.IncidentType, start, end *time.Time) error {
	if t != domain.IncidentTypeMaintenance {
		if start != nil || end != nil {
			return domain.NewValidationError("scheduled_start_time", "only maintenance records are scheduled")
		}
		return nil
	}

	if start == nil {
		return domain.NewValidationError("scheduled_start_time", "required for maintenance")
	}
	if end == nil {
		return domain.NewValidationError("scheduled_end_time", "required for maintenance")
	}
	if !end.After(*start) {
		return domain.NewValidationError("scheduled_end_time", "must be after scheduled_start_time")
	}
	return nil
}

func defaultInitialMessage(t domain.IncidentType, title string) string {
	if t == domain.IncidentTypeMaintenance {
		return fmt.Sprintf("Maintenance scheduled: %s", title)
	}
	return fmt.Sprintf("Investigation started for %s", title)
}
