// Package memory provides an in-process implementation of the organizations repository.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/organizations"
	"github.com/google/uuid"
)

type memberKey struct {
	teamID string
	userID string
}

// Repository implements organizations.Repository in memory.
type Repository struct {
	mu      sync.RWMutex
	orgs    map[string]domain.Organization
	teams   map[string]domain.Team
	members map[memberKey]domain.Membership
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{
		orgs:    make(map[string]domain.Organization),
		teams:   make(map[string]domain.Team),
		members: make(map[memberKey]domain.Membership),
	}
}

func (r *Repository) slugTakenLocked(slug, exceptID string) bool {
	for _, o := range r.orgs {
		if o.Slug == slug && o.ID != exceptID {
			return true
		}
	}
	return false
}

// CreateOrganization stores a new organization.
func (r *Repository) CreateOrganization(_ context.Context, org *domain.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slugTakenLocked(org.Slug, "") {
		return organizations.ErrSlugTaken
	}

	now := time.Now().UTC()
	org.ID = uuid.New().String()
	org.CreatedAt = now
	org.UpdatedAt = now
	r.orgs[org.ID] = *org
	return nil
}

// GetOrganization retrieves an organization by id.
func (r *Repository) GetOrganization(_ context.Context, id string) (*domain.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orgs[id]
	if !ok {
		return nil, organizations.ErrOrganizationNotFound
	}
	return &o, nil
}

// GetOrganizationBySlug retrieves an organization by slug.
func (r *Repository) GetOrganizationBySlug(_ context.Context, slug string) (*domain.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, o := range r.orgs {
		if o.Slug == slug {
			return &o, nil
		}
	}
	return nil, organizations.ErrOrganizationNotFound
}

// UpdateOrganization overwrites an organization.
func (r *Repository) UpdateOrganization(_ context.Context, org *domain.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.orgs[org.ID]
	if !ok {
		return organizations.ErrOrganizationNotFound
	}
	if r.slugTakenLocked(org.Slug, org.ID) {
		return organizations.ErrSlugTaken
	}

	org.CreatedAt = existing.CreatedAt
	org.UpdatedAt = time.Now().UTC()
	r.orgs[org.ID] = *org
	return nil
}

// DeleteOrganization removes an organization with its teams and memberships.
func (r *Repository) DeleteOrganization(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orgs[id]; !ok {
		return organizations.ErrOrganizationNotFound
	}
	delete(r.orgs, id)

	for teamID, t := range r.teams {
		if t.OrganizationID == id {
			r.deleteTeamLocked(teamID)
		}
	}
	return nil
}

// CreateTeam stores a new team.
func (r *Repository) CreateTeam(_ context.Context, team *domain.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orgs[team.OrganizationID]; !ok {
		return organizations.ErrOrganizationNotFound
	}

	now := time.Now().UTC()
	team.ID = uuid.New().String()
	team.CreatedAt = now
	team.UpdatedAt = now
	r.teams[team.ID] = *team
	return nil
}

// GetTeam retrieves a team of orgID.
func (r *Repository) GetTeam(_ context.Context, orgID, id string) (*domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.teams[id]
	if !ok || t.OrganizationID != orgID {
		return nil, organizations.ErrTeamNotFound
	}
	return &t, nil
}

// ListTeams lists teams of orgID ordered by name.
func (r *Repository) ListTeams(_ context.Context, orgID string) ([]domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Team, 0)
	for _, t := range r.teams {
		if t.OrganizationID == orgID {
			out = append(out, t)
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

// UpdateTeam overwrites a team.
func (r *Repository) UpdateTeam(_ context.Context, team *domain.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.teams[team.ID]
	if !ok || existing.OrganizationID != team.OrganizationID {
		return organizations.ErrTeamNotFound
	}
	team.CreatedAt = existing.CreatedAt
	team.UpdatedAt = time.Now().UTC()
	r.teams[team.ID] = *team
	return nil
}

// DeleteTeam removes a team and its memberships.
func (r *Repository) DeleteTeam(_ context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.teams[id]
	if !ok || t.OrganizationID != orgID {
		return organizations.ErrTeamNotFound
	}
	r.deleteTeamLocked(id)
	return nil
}

func (r *Repository) deleteTeamLocked(teamID string) {
	delete(r.teams, teamID)
	for k := range r.members {
		if k.teamID == teamID {
			delete(r.members, k)
		}
	}
}

// AddMember stores a membership. Duplicates are rejected.
func (r *Repository) AddMember(_ context.Context, m *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := memberKey{teamID: m.TeamID, userID: m.UserID}
	if _, ok := r.members[key]; ok {
		return organizations.ErrMemberExists
	}
	m.CreatedAt = time.Now().UTC()
	r.members[key] = *m
	return nil
}

// RemoveMember deletes a membership.
func (r *Repository) RemoveMember(_ context.Context, teamID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := memberKey{teamID: teamID, userID: userID}
	if _, ok := r.members[key]; !ok {
		return organizations.ErrMemberNotFound
	}
	delete(r.members, key)
	return nil
}

// ListMembers lists memberships of a team ordered by user id.
func (r *Repository) ListMembers(_ context.Context, teamID string) ([]domain.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Membership, 0)
	for k, m := range r.members {
		if k.teamID == teamID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
