package organizations_test

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/organizations"
	"github.com/bissquit/statusboard/internal/organizations/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*organizations.Service, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	cache := organizations.NewSlugCache(time.Minute)
	return organizations.NewService(repo, cache), repo
}

func ptr[T any](v T) *T { return &v }

func TestService_Create(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	org, err := svc.Create(ctx, organizations.CreateOrganizationInput{Name: "Café Acme"})
	require.NoError(t, err)
	assert.Equal(t, "cafe-acme", org.Slug)

	org2, err := svc.Create(ctx, organizations.CreateOrganizationInput{Name: "Other", Slug: "ACME-Status"})
	require.NoError(t, err)
	assert.Equal(t, "acme-status", org2.Slug)

	_, err = svc.Create(ctx, organizations.CreateOrganizationInput{Name: "Dup", Slug: "acme-status"})
	assert.ErrorIs(t, err, organizations.ErrSlugTaken)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.Create(ctx, organizations.CreateOrganizationInput{Name: "Bad", Slug: "no spaces"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Create(ctx, organizations.CreateOrganizationInput{Name: " "})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestService_GetBySlug_FollowsSlugChange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	org, err := svc.Create(ctx, organizations.CreateOrganizationInput{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)

	got, err := svc.GetBySlug(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.ID)

	scope := domain.NewScope(org.ID, "admin")
	_, err = svc.Update(ctx, scope, organizations.UpdateOrganizationInput{Slug: ptr("acme-corp")})
	require.NoError(t, err)

	_, err = svc.GetBySlug(ctx, "acme")
	assert.ErrorIs(t, err, organizations.ErrOrganizationNotFound)

	got, err = svc.GetBySlug(ctx, "acme-corp")
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.ID)
}

func TestService_GetBySlug_StaleCacheEntry(t *testing.T) {
	repo := memory.NewRepository()
	cache := organizations.NewSlugCache(time.Minute)
	svc := organizations.NewService(repo, cache)
	ctx := context.Background()

	org, err := svc.Create(ctx, organizations.CreateOrganizationInput{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)

	// another instance renamed the slug behind this cache's back
	cache.Set("acme", org.ID)
	org.Slug = "renamed"
	require.NoError(t, repo.UpdateOrganization(ctx, org))

	_, err = svc.GetBySlug(ctx, "acme")
	assert.ErrorIs(t, err, organizations.ErrOrganizationNotFound)
	_, ok := cache.Get("acme")
	assert.False(t, ok)
}

func TestService_Update(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, organizations.CreateOrganizationInput{Name: "A", Slug: "a-org"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, organizations.CreateOrganizationInput{Name: "B", Slug: "b-org"})
	require.NoError(t, err)

	scope := domain.NewScope(a.ID, "admin")
	_, err = svc.Update(ctx, scope, organizations.UpdateOrganizationInput{Slug: ptr("b-org")})
	assert.ErrorIs(t, err, organizations.ErrSlugTaken)

	updated, err := svc.Update(ctx, scope, organizations.UpdateOrganizationInput{
		Website: ptr("https://a.example"),
		LogoURL: ptr("https://a.example/logo.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://a.example", updated.Website)
	assert.Equal(t, "a-org", updated.Slug)
}

func TestService_Delete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	org, err := svc.Create(ctx, organizations.CreateOrganizationInput{Name: "Gone", Slug: "gone"})
	require.NoError(t, err)
	_, err = svc.GetBySlug(ctx, "gone")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, domain.NewScope(org.ID, "admin")))

	_, err = svc.GetBySlug(ctx, "gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_TeamsAndMembers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	org, err := svc.Create(ctx, organizations.CreateOrganizationInput{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)
	scope := domain.NewScope(org.ID, "admin")

	team, err := svc.CreateTeam(ctx, scope, organizations.CreateTeamInput{Name: "SRE"})
	require.NoError(t, err)

	m, err := svc.AddMember(ctx, scope, team.ID, "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.MemberRoleMember, m.Role)

	_, err = svc.AddMember(ctx, scope, team.ID, "user-1", domain.MemberRoleAdmin)
	assert.ErrorIs(t, err, organizations.ErrMemberExists)

	_, err = svc.AddMember(ctx, scope, team.ID, "user-2", "owner")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.AddMember(ctx, scope, team.ID, "user-2", domain.MemberRoleAdmin)
	require.NoError(t, err)

	members, err := svc.ListMembers(ctx, scope, team.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "user-1", members[0].UserID)

	require.NoError(t, svc.RemoveMember(ctx, scope, team.ID, "user-1"))
	assert.ErrorIs(t, svc.RemoveMember(ctx, scope, team.ID, "user-1"), organizations.ErrMemberNotFound)

	// teams are invisible to other tenants
	other := domain.NewScope("someone-else", "u")
	_, err = svc.GetTeam(ctx, other, team.ID)
	assert.ErrorIs(t, err, organizations.ErrTeamNotFound)

	renamed, err := svc.UpdateTeam(ctx, scope, team.ID, organizations.UpdateTeamInput{Name: ptr("Platform")})
	require.NoError(t, err)
	assert.Equal(t, "Platform", renamed.Name)

	require.NoError(t, svc.DeleteTeam(ctx, scope, team.ID))
	teams, err := svc.ListTeams(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, teams)
}
