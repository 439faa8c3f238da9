// Package postgres provides PostgreSQL implementation of the catalog repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/statusboard/internal/catalog"
	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements the catalog.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const serviceColumns = `id, organization_id, name, description, status, created_at, updated_at`

func scanService(row pgx.Row) (*domain.Service, error) {
	var s domain.Service
	err := row.Scan(
		&s.ID,
		&s.OrganizationID,
		&s.Name,
		&s.Description,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateService creates a new service in the database.
func (r *Repository) CreateService(ctx context.Context, service *domain.Service) error {
	defer metrics.ObserveStore("postgres", "create_service", time.Now())

	query := `
		INSERT INTO services (organization_id, name, description, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		service.OrganizationID,
		service.Name,
		service.Description,
		service.Status,
	).Scan(&service.ID, &service.CreatedAt, &service.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

// GetService retrieves a service by its ID.
func (r *Repository) GetService(ctx context.Context, orgID, id string) (*domain.Service, error) {
	if !validID(orgID) || !validID(id) {
		return nil, catalog.ErrServiceNotFound
	}

	query := `SELECT ` + serviceColumns + ` FROM services WHERE organization_id = $1 AND id = $2`
	service, err := scanService(r.db.QueryRow(ctx, query, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service by id: %w", err)
	}
	return service, nil
}

// ListServices retrieves services ordered by name.
func (r *Repository) ListServices(ctx context.Context, orgID string, filter catalog.ServiceFilter) ([]domain.Service, error) {
	defer metrics.ObserveStore("postgres", "list_services", time.Now())

	services := make([]domain.Service, 0)
	if !validID(orgID) {
		return services, nil
	}

	query := `SELECT ` + serviceColumns + ` FROM services WHERE organization_id = $1`
	args := []any{orgID}
	if filter.Status != nil {
		query += ` AND status = $2`
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY name, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, *service)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return services, nil
}

// MutateService runs fn against the service row under SELECT ... FOR UPDATE
// and writes the editable columns back in the same transaction.
func (r *Repository) MutateService(ctx context.Context, orgID, id string, fn func(*domain.Service) error) (*domain.Service, error) {
	defer metrics.ObserveStore("postgres", "mutate_service", time.Now())

	if !validID(orgID) || !validID(id) {
		return nil, catalog.ErrServiceNotFound
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	query := `SELECT ` + serviceColumns + ` FROM services WHERE organization_id = $1 AND id = $2 FOR UPDATE`
	service, err := scanService(tx.QueryRow(ctx, query, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrServiceNotFound
		}
		return nil, fmt.Errorf("lock service: %w", err)
	}

	if err := fn(service); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE services
		SET name = $3, description = $4, status = $5, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2
		RETURNING updated_at
	`, orgID, id, service.Name, service.Description, service.Status).Scan(&service.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return service, nil
}

// DeleteService removes a service. Links to resolved incidents cascade.
func (r *Repository) DeleteService(ctx context.Context, orgID, id string) error {
	if !validID(orgID) || !validID(id) {
		return catalog.ErrServiceNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM services WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrServiceNotFound
	}
	return nil
}

// MissingServiceIDs returns ids that are not services of orgID.
func (r *Repository) MissingServiceIDs(ctx context.Context, orgID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if !validID(orgID) {
		return ids, nil
	}

	candidates := make([]string, 0, len(ids))
	for _, id := range ids {
		if parsed, err := uuid.Parse(id); err == nil {
			candidates = append(candidates, parsed.String())
		}
	}

	found := make(map[string]bool, len(candidates))
	if len(candidates) > 0 {
		rows, err := r.db.Query(ctx,
			`SELECT id::text FROM services WHERE organization_id = $1 AND id::text = ANY($2::text[])`,
			orgID, candidates,
		)
		if err != nil {
			return nil, fmt.Errorf("check services: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, fmt.Errorf("scan service id: %w", err)
			}
			found[id] = true
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate service ids: %w", err)
		}
	}

	var missing []string
	for _, id := range ids {
		parsed, err := uuid.Parse(id)
		if err != nil || !found[parsed.String()] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// validID reports whether id can be compared against a uuid column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
