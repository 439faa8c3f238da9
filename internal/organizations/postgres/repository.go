// Package postgres provides PostgreSQL implementation of the organizations repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/organizations"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository implements the organizations.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

const orgColumns = `id, name, slug, website, logo_url, created_at, updated_at`

func scanOrganization(row pgx.Row) (*domain.Organization, error) {
	var o domain.Organization
	if err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Website, &o.LogoURL, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOrganization creates a new organization.
func (r *Repository) CreateOrganization(ctx context.Context, org *domain.Organization) error {
	query := `
		INSERT INTO organizations (name, slug, website, logo_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, org.Name, org.Slug, org.Website, org.LogoURL).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return organizations.ErrSlugTaken
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

// GetOrganization retrieves an organization by ID.
func (r *Repository) GetOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	if !validID(id) {
		return nil, organizations.ErrOrganizationNotFound
	}

	org, err := scanOrganization(r.db.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, organizations.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("get organization by id: %w", err)
	}
	return org, nil
}

// GetOrganizationBySlug retrieves an organization by slug.
func (r *Repository) GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	org, err := scanOrganization(r.db.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE slug = $1`, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, organizations.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("get organization by slug: %w", err)
	}
	return org, nil
}

// UpdateOrganization updates organization settings.
func (r *Repository) UpdateOrganization(ctx context.Context, org *domain.Organization) error {
	query := `
		UPDATE organizations
		SET name = $2, slug = $3, website = $4, logo_url = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, org.ID, org.Name, org.Slug, org.Website, org.LogoURL).Scan(&org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return organizations.ErrOrganizationNotFound
		}
		if isUniqueViolation(err) {
			return organizations.ErrSlugTaken
		}
		return fmt.Errorf("update organization: %w", err)
	}
	return nil
}

// DeleteOrganization deletes an organization; owned rows cascade.
func (r *Repository) DeleteOrganization(ctx context.Context, id string) error {
	if !validID(id) {
		return organizations.ErrOrganizationNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return organizations.ErrOrganizationNotFound
	}
	return nil
}

const teamColumns = `id, organization_id, name, description, created_at, updated_at`

func scanTeam(row pgx.Row) (*domain.Team, error) {
	var t domain.Team
	if err := row.Scan(&t.ID, &t.OrganizationID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTeam creates a new team.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	query := `
		INSERT INTO teams (organization_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, team.OrganizationID, team.Name, team.Description).
		Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

// GetTeam retrieves a team of orgID.
func (r *Repository) GetTeam(ctx context.Context, orgID, id string) (*domain.Team, error) {
	if !validID(orgID) || !validID(id) {
		return nil, organizations.ErrTeamNotFound
	}

	team, err := scanTeam(r.db.QueryRow(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE organization_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, organizations.ErrTeamNotFound
		}
		return nil, fmt.Errorf("get team: %w", err)
	}
	return team, nil
}

// ListTeams lists teams of orgID ordered by name.
func (r *Repository) ListTeams(ctx context.Context, orgID string) ([]domain.Team, error) {
	teams := make([]domain.Team, 0)
	if !validID(orgID) {
		return teams, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE organization_id = $1 ORDER BY name, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, *team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return teams, nil
}

// UpdateTeam updates a team.
func (r *Repository) UpdateTeam(ctx context.Context, team *domain.Team) error {
	query := `
		UPDATE teams SET name = $3, description = $4, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, team.OrganizationID, team.ID, team.Name, team.Description).Scan(&team.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return organizations.ErrTeamNotFound
		}
		return fmt.Errorf("update team: %w", err)
	}
	return nil
}

// DeleteTeam deletes a team; memberships cascade.
func (r *Repository) DeleteTeam(ctx context.Context, orgID, id string) error {
	if !validID(orgID) || !validID(id) {
		return organizations.ErrTeamNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM teams WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return organizations.ErrTeamNotFound
	}
	return nil
}

// AddMember inserts a membership.
func (r *Repository) AddMember(ctx context.Context, m *domain.Membership) error {
	query := `
		INSERT INTO team_members (team_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, m.TeamID, m.UserID, m.Role).Scan(&m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return organizations.ErrMemberExists
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership.
func (r *Repository) RemoveMember(ctx context.Context, teamID, userID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return organizations.ErrMemberNotFound
	}
	return nil
}

// ListMembers lists memberships of a team.
func (r *Repository) ListMembers(ctx context.Context, teamID string) ([]domain.Membership, error) {
	rows, err := r.db.Query(ctx,
		`SELECT team_id, user_id, role, created_at FROM team_members WHERE team_id = $1 ORDER BY user_id`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]domain.Membership, 0)
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}
