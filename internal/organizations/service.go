// Package organizations manages tenants, their teams and team memberships.
package organizations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
)

// Service implements organization business logic.
type Service struct {
	repo  Repository
	slugs *SlugCache
}

// NewService creates a new organization service.
func NewService(repo Repository, slugs *SlugCache) *Service {
	return &Service{repo: repo, slugs: slugs}
}

// CreateOrganizationInput holds data for creating an organization.
// Slug is derived from Name when empty.
type CreateOrganizationInput struct {
	Name    string
	Slug    string
	Website string
	LogoURL string
}

// UpdateOrganizationInput holds editable organization fields.
// Nil fields are left as is.
type UpdateOrganizationInput struct {
	Name    *string
	Slug    *string
	Website *string
	LogoURL *string
}

// Create creates a new organization.
func (s *Service) Create(ctx context.Context, input CreateOrganizationInput) (*domain.Organization, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.NewValidationError("name", "must not be blank")
	}

	raw := input.Slug
	if strings.TrimSpace(raw) == "" {
		raw = Slugify(name)
	}
	slug, err := NormalizeSlug(raw)
	if err != nil {
		return nil, err
	}

	org := &domain.Organization{
		Name:    name,
		Slug:    slug,
		Website: strings.TrimSpace(input.Website),
		LogoURL: strings.TrimSpace(input.LogoURL),
	}
	if err := s.repo.CreateOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}

	ctxlog.FromContext(ctx).Info("organization created", "organization_id", org.ID, "slug", org.Slug)
	return org, nil
}

// Get retrieves the scope's organization.
func (s *Service) Get(ctx context.Context, scope domain.Scope) (*domain.Organization, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.GetOrganization(ctx, scope.OrganizationID)
}

// GetByID retrieves an organization without a tenant scope.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	return s.repo.GetOrganization(ctx, id)
}

// GetBySlug resolves a public slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	slug, err := NormalizeSlug(slug)
	if err != nil {
		return nil, ErrOrganizationNotFound
	}

	if id, ok := s.slugs.Get(slug); ok {
		org, err := s.repo.GetOrganization(ctx, id)
		if err == nil && org.Slug == slug {
			return org, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		s.slugs.Invalidate(slug)
	}

	org, err := s.repo.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	s.slugs.Set(slug, org.ID)
	return org, nil
}

// Update changes organization settings. Changing the slug breaks public
// links to the old one, which stops resolving immediately on this instance.
func (s *Service) Update(ctx context.Context, scope domain.Scope, input UpdateOrganizationInput) (*domain.Organization, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	org, err := s.repo.GetOrganization(ctx, scope.OrganizationID)
	if err != nil {
		return nil, err
	}
	oldSlug := org.Slug

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domain.NewValidationError("name", "must not be blank")
		}
		org.Name = name
	}
	if input.Slug != nil {
		slug, err := NormalizeSlug(*input.Slug)
		if err != nil {
			return nil, err
		}
		org.Slug = slug
	}
	if input.Website != nil {
		org.Website = strings.TrimSpace(*input.Website)
	}
	if input.LogoURL != nil {
		org.LogoURL = strings.TrimSpace(*input.LogoURL)
	}

	if err := s.repo.UpdateOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("update organization: %w", err)
	}

	if oldSlug != org.Slug {
		s.slugs.Invalidate(oldSlug)
		ctxlog.FromContext(ctx).Warn("organization slug changed",
			"organization_id", org.ID,
			"old_slug", oldSlug,
			"new_slug", org.Slug,
		)
	}
	return org, nil
}

// Delete removes the scope's organization and everything it owns.
func (s *Service) Delete(ctx context.Context, scope domain.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	org, err := s.repo.GetOrganization(ctx, scope.OrganizationID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteOrganization(ctx, org.ID); err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	s.slugs.Invalidate(org.Slug)
	return nil
}

// CreateTeamInput holds data for creating a team.
type CreateTeamInput struct {
	Name        string
	Description string
}

// UpdateTeamInput holds editable team fields. Nil fields are left as is.
type UpdateTeamInput struct {
	Name        *string
	Description *string
}

// CreateTeam creates a team in the scope's organization.
func (s *Service) CreateTeam(ctx context.Context, scope domain.Scope, input CreateTeamInput) (*domain.Team, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.NewValidationError("name", "must not be blank")
	}

	team := &domain.Team{
		OrganizationID: scope.OrganizationID,
		Name:           name,
		Description:    input.Description,
	}
	if err := s.repo.CreateTeam(ctx, team); err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}
	return team, nil
}

// GetTeam retrieves a team.
func (s *Service) GetTeam(ctx context.Context, scope domain.Scope, id string) (*domain.Team, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.GetTeam(ctx, scope.OrganizationID, id)
}

// ListTeams lists the organization's teams ordered by name.
func (s *Service) ListTeams(ctx context.Context, scope domain.Scope) ([]domain.Team, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListTeams(ctx, scope.OrganizationID)
}

// UpdateTeam changes a team's name or description.
func (s *Service) UpdateTeam(ctx context.Context, scope domain.Scope, id string, input UpdateTeamInput) (*domain.Team, error) {
	team, err := s.GetTeam(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domain.NewValidationError("name", "must not be blank")
		}
		team.Name = name
	}
	if input.Description != nil {
		team.Description = *input.Description
	}

	if err := s.repo.UpdateTeam(ctx, team); err != nil {
		return nil, fmt.Errorf("update team: %w", err)
	}
	return team, nil
}

// DeleteTeam removes a team and its memberships.
func (s *Service) DeleteTeam(ctx context.Context, scope domain.Scope, id string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return s.repo.DeleteTeam(ctx, scope.OrganizationID, id)
}

// AddMember adds a user to a team. A user can be a member only once.
func (s *Service) AddMember(ctx context.Context, scope domain.Scope, teamID, userID string, role domain.MemberRole) (*domain.Membership, error) {
	if _, err := s.GetTeam(ctx, scope, teamID); err != nil {
		return nil, err
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "must not be blank")
	}
	if role == "" {
		role = domain.MemberRoleMember
	}
	if !role.IsValid() {
		return nil, domain.NewValidationError("role", fmt.Sprintf("unknown role %q", role))
	}

	membership := &domain.Membership{TeamID: teamID, UserID: userID, Role: role}
	if err := s.repo.AddMember(ctx, membership); err != nil {
		return nil, err
	}
	return membership, nil
}

// RemoveMember removes a user from a team.
func (s *Service) RemoveMember(ctx context.Context, scope domain.Scope, teamID, userID string) error {
	if _, err := s.GetTeam(ctx, scope, teamID); err != nil {
		return err
	}
	return s.repo.RemoveMember(ctx, teamID, userID)
}

// ListMembers lists a team's members.
func (s *Service) ListMembers(ctx context.Context, scope domain.Scope, teamID string) ([]domain.Membership, error) {
	if _, err := s.GetTeam(ctx, scope, teamID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, teamID)
}
