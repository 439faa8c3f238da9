// Package snapshot builds the public, read-only projection of an
// organization's status page.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/statusboard/internal/catalog"
	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/incidents"
	"github.com/bissquit/statusboard/internal/status"
)

// DefaultRecentWindow is how far back resolved incidents are shown.
const DefaultRecentWindow = 90 * 24 * time.Hour

// Limits for the recent incidents listing.
const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 100
)

// OrganizationReader resolves organizations.
type OrganizationReader interface {
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Organization, error)
}

// ServiceReader lists services of an organization.
type ServiceReader interface {
	List(ctx context.Context, scope domain.Scope, filter catalog.ServiceFilter) ([]domain.Service, error)
}

// IncidentReader lists and fetches incidents of an organization.
type IncidentReader interface {
	List(ctx context.Context, scope domain.Scope, filter incidents.ListFilter) ([]domain.Incident, error)
	Get(ctx context.Context, scope domain.Scope, id string) (*domain.Incident, error)
}

// Snapshot is the public view of one organization at one moment.
type Snapshot struct {
	Organization    domain.Organization  `json:"organization"`
	OverallStatus   domain.ServiceStatus `json:"overall_status"`
	Services        []domain.Service     `json:"services"`
	ActiveIncidents []domain.Incident    `json:"active_incidents"`
	RecentIncidents []domain.Incident    `json:"recent_incidents"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

// Summary is the compact status of an organization.
type Summary struct {
	Organization    string               `json:"organization"`
	Slug            string               `json:"slug"`
	OverallStatus   domain.ServiceStatus `json:"overall_status"`
	ActiveIncidents int                  `json:"active_incidents"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

// View computes snapshots on demand. Nothing is cached between calls.
type View struct {
	orgs      OrganizationReader
	services  ServiceReader
	incidents IncidentReader
	window    time.Duration
	now       func() time.Time
}

// NewView creates a snapshot view. A non-positive window uses DefaultRecentWindow.
func NewView(orgs OrganizationReader, services ServiceReader, incidents IncidentReader, window time.Duration) *View {
	if window <= 0 {
		window = DefaultRecentWindow
	}
	return &View{
		orgs:      orgs,
		services:  services,
		incidents: incidents,
		window:    window,
		now:       time.Now,
	}
}

// Snapshot returns the public snapshot of the organization with id orgID.
func (v *View) Snapshot(ctx context.Context, orgID string) (*Snapshot, error) {
	org, err := v.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return v.build(ctx, org)
}

// SnapshotBySlug returns the public snapshot of the organization with slug.
func (v *View) SnapshotBySlug(ctx context.Context, slug string) (*Snapshot, error) {
	org, err := v.orgs.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return v.build(ctx, org)
}

func (v *View) build(ctx context.Context, org *domain.Organization) (*Snapshot, error) {
	scope := publicScope(org)
	now := v.now().UTC()

	services, err := v.services.List(ctx, scope, catalog.ServiceFilter{})
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	active, err := v.activeIncidents(ctx, scope)
	if err != nil {
		return nil, err
	}

	recent, err := v.recentIncidents(ctx, scope, now, 0)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Organization:    *org,
		OverallStatus:   status.Aggregate(services),
		Services:        services,
		ActiveIncidents: active,
		RecentIncidents: recent,
		GeneratedAt:     now,
	}, nil
}

func (v *View) activeIncidents(ctx context.Context, scope domain.Scope) ([]domain.Incident, error) {
	resolved := false
	list, err := v.incidents.List(ctx, scope, incidents.ListFilter{Resolved: &resolved})
	if err != nil {
		return nil, fmt.Errorf("list active incidents: %w", err)
	}
	return publicCopies(list), nil
}

// recentIncidents lists incidents resolved within the window, newest first.
// A zero limit returns all of them.
func (v *View) recentIncidents(ctx context.Context, scope domain.Scope, now time.Time, limit int) ([]domain.Incident, error) {
	resolved := true
	since := now.Add(-v.window)
	list, err := v.incidents.List(ctx, scope, incidents.ListFilter{Resolved: &resolved, StartedAfter: &since, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list recent incidents: %w", err)
	}
	return publicCopies(list), nil
}

// RecentIncidents returns up to limit recently resolved incidents of slug's
// organization. Zero selects DefaultRecentLimit.
func (v *View) RecentIncidents(ctx context.Context, slug string, limit int) ([]domain.Incident, error) {
	switch {
	case limit == 0:
		limit = DefaultRecentLimit
	case limit < 0 || limit > MaxRecentLimit:
		return nil, domain.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", MaxRecentLimit))
	}

	org, err := v.orgs.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return v.recentIncidents(ctx, publicScope(org), v.now().UTC(), limit)
}

// Summary returns the overall status and active incident count for slug.
func (v *View) Summary(ctx context.Context, slug string) (*Summary, error) {
	org, err := v.orgs.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	scope := publicScope(org)

	services, err := v.services.List(ctx, scope, catalog.ServiceFilter{})
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	active, err := v.activeIncidents(ctx, scope)
	if err != nil {
		return nil, err
	}

	return &Summary{
		Organization:    org.Name,
		Slug:            org.Slug,
		OverallStatus:   status.Aggregate(services),
		ActiveIncidents: len(active),
		GeneratedAt:     v.now().UTC(),
	}, nil
}

// Services returns the services of slug's organization.
func (v *View) Services(ctx context.Context, slug string) ([]domain.Service, error) {
	org, err := v.orgs.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return v.services.List(ctx, publicScope(org), catalog.ServiceFilter{})
}

// ActiveIncidents returns unresolved incidents of slug's organization with
// public updates only.
func (v *View) ActiveIncidents(ctx context.Context, slug string) ([]domain.Incident, error) {
	org, err := v.orgs.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return v.activeIncidents(ctx, publicScope(org))
}

// Incident returns one incident of slug's organization with public updates only.
func (v *View) Incident(ctx context.Context, slug, id string) (*domain.Incident, error) {
	org, err := v.orgs.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	incident, err := v.incidents.Get(ctx, publicScope(org), id)
	if err != nil {
		return nil, err
	}
	public := incident.PublicCopy()
	return &public, nil
}

// publicScope is the scope anonymous readers act in.
func publicScope(org *domain.Organization) domain.Scope {
	return domain.NewScope(org.ID, "")
}

func publicCopies(list []domain.Incident) []domain.Incident {
	out := make([]domain.Incident, 0, len(list))
	for i := range list {
		out = append(out, list[i].PublicCopy())
	}
	return out
}
