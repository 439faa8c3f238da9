package organizations

import (
	"context"

	"github.com/bissquit/statusboard/internal/domain"
)

// Repository defines storage for organizations, teams and memberships.
type Repository interface {
	CreateOrganization(ctx context.Context, org *domain.Organization) error
	GetOrganization(ctx context.Context, id string) (*domain.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Organization, error)
	UpdateOrganization(ctx context.Context, org *domain.Organization) error
	DeleteOrganization(ctx context.Context, id string) error

	CreateTeam(ctx context.Context, team *domain.Team) error
	GetTeam(ctx context.Context, orgID, id string) (*domain.Team, error)
	ListTeams(ctx context.Context, orgID string) ([]domain.Team, error)
	UpdateTeam(ctx context.Context, team *domain.Team) error
	DeleteTeam(ctx context.Context, orgID, id string) error

	AddMember(ctx context.Context, membership *domain.Membership) error
	RemoveMember(ctx context.Context, teamID, userID string) error
	ListMembers(ctx context.Context, teamID string) ([]domain.Membership, error)
}
