// Package postgres provides PostgreSQL implementation of the incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/incidents"
	"github.com/bissquit/statusboard/internal/pkg/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements the incidents.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const incidentColumns = `id, organization_id, title, impact, type, status, started_at, resolved_at,
	scheduled_start_time, scheduled_end_time, created_by, created_at, updated_at`

const updateColumns = `id, incident_id, sequence, message, status, is_public, created_by, created_at`

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var i domain.Incident
	err := row.Scan(
		&i.ID,
		&i.OrganizationID,
		&i.Title,
		&i.Impact,
		&i.Type,
		&i.Status,
		&i.StartedAt,
		&i.ResolvedAt,
		&i.ScheduledStartTime,
		&i.ScheduledEndTime,
		&i.CreatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func scanUpdate(row pgx.Row) (*domain.Update, error) {
	var u domain.Update
	err := row.Scan(
		&u.ID,
		&u.IncidentID,
		&u.Sequence,
		&u.Message,
		&u.Status,
		&u.IsPublic,
		&u.CreatedBy,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Error("failed to rollback transaction", "error", err)
	}
}

// Create inserts the incident, its service links and its first update in
// one transaction.
func (r *Repository) Create(ctx context.Context, incident *domain.Incident, first *domain.Update) error {
	defer metrics.ObserveStore("postgres", "create_incident", time.Now())

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	query := `
		INSERT INTO incidents (organization_id, title, impact, type, status, started_at,
			scheduled_start_time, scheduled_end_time, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		incident.OrganizationID,
		incident.Title,
		incident.Impact,
		incident.Type,
		incident.Status,
		incident.StartedAt,
		incident.ScheduledStartTime,
		incident.ScheduledEndTime,
		incident.CreatedBy,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}

	if err := linkServices(ctx, tx, incident.ID, incident.ServiceIDs); err != nil {
		return err
	}

	first.IncidentID = incident.ID
	if err := insertUpdate(ctx, tx, first); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func linkServices(ctx context.Context, q querier, incidentID string, serviceIDs []string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO incident_services (incident_id, service_id)
		SELECT $1, s::uuid FROM unnest($2::text[]) AS s
	`, incidentID, serviceIDs)
	if err != nil {
		return fmt.Errorf("link services: %w", err)
	}
	return nil
}

func insertUpdate(ctx context.Context, q querier, update *domain.Update) error {
	err := q.QueryRow(ctx, `
		INSERT INTO incident_updates (incident_id, sequence, message, status, is_public, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		update.IncidentID,
		update.Sequence,
		update.Message,
		update.Status,
		update.IsPublic,
		update.CreatedBy,
		update.CreatedAt,
	).Scan(&update.ID)
	if err != nil {
		return fmt.Errorf("insert update: %w", err)
	}
	return nil
}

// Get retrieves an incident with its services and timeline.
func (r *Repository) Get(ctx context.Context, orgID, id string) (*domain.Incident, error) {
	defer metrics.ObserveStore("postgres", "get_incident", time.Now())
	return r.get(ctx, r.db, orgID, id, false)
}

func (r *Repository) get(ctx context.Context, q querier, orgID, id string, forUpdate bool) (*domain.Incident, error) {
	if !validID(orgID) || !validID(id) {
		return nil, incidents.ErrIncidentNotFound
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE organization_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	incident, err := scanIncident(q.QueryRow(ctx, query, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}

	list := []domain.Incident{*incident}
	if err := loadDetails(ctx, q, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// loadDetails fills ServiceIDs and Updates of every incident in list.
func loadDetails(ctx context.Context, q querier, list []domain.Incident) error {
	if len(list) == 0 {
		return nil
	}

	ids := make([]string, len(list))
	index := make(map[string]int, len(list))
	for n := range list {
		ids[n] = list[n].ID
		index[list[n].ID] = n
		list[n].ServiceIDs = make([]string, 0)
		list[n].Updates = make([]domain.Update, 0)
	}

	rows, err := q.Query(ctx, `
		SELECT incident_id, service_id FROM incident_services
		WHERE incident_id = ANY($1::text[]::uuid[])
		ORDER BY incident_id, service_id
	`, ids)
	if err != nil {
		return fmt.Errorf("list incident services: %w", err)
	}
	for rows.Next() {
		var incidentID, serviceID string
		if err := rows.Scan(&incidentID, &serviceID); err != nil {
			rows.Close()
			return fmt.Errorf("scan incident service: %w", err)
		}
		n := index[incidentID]
		list[n].ServiceIDs = append(list[n].ServiceIDs, serviceID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate incident services: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT `+updateColumns+` FROM incident_updates
		WHERE incident_id = ANY($1::text[]::uuid[])
		ORDER BY incident_id, sequence
	`, ids)
	if err != nil {
		return fmt.Errorf("list incident updates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return fmt.Errorf("scan update: %w", err)
		}
		n := index[u.IncidentID]
		list[n].Updates = append(list[n].Updates, *u)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate updates: %w", err)
	}
	return nil
}

// List retrieves incidents of orgID, newest first.
func (r *Repository) List(ctx context.Context, orgID string, filter incidents.ListFilter) ([]domain.Incident, error) {
	defer metrics.ObserveStore("postgres", "list_incidents", time.Now())

	list := make([]domain.Incident, 0)
	if !validID(orgID) {
		return list, nil
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE organization_id = $1`
	args := []any{orgID}

	if filter.Type != nil {
		args = append(args, *filter.Type)
		query += fmt.Sprintf(` AND type = $%d`, len(args))
	}
	if filter.Resolved != nil {
		if *filter.Resolved {
			query += ` AND status = 'resolved'`
		} else {
			query += ` AND status <> 'resolved'`
		}
	}
	if filter.StartedAfter != nil {
		args = append(args, *filter.StartedAfter)
		query += fmt.Sprintf(` AND started_at >= $%d`, len(args))
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		list = append(list, *incident)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	if err := loadDetails(ctx, r.db, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Mutate locks the incident row with SELECT ... FOR UPDATE and runs fn
// inside the same transaction.
func (r *Repository) Mutate(ctx context.Context, orgID, id string, fn incidents.MutateFunc) error {
	defer metrics.ObserveStore("postgres", "mutate_incident", time.Now())

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	incident, err := r.get(ctx, tx, orgID, id, true)
	if err != nil {
		return err
	}

	if err := fn(ctx, &pgTx{tx: tx, incidentID: incident.ID}, incident); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// History returns the updates of an incident ordered by sequence.
func (r *Repository) History(ctx context.Context, orgID, id string) ([]domain.Update, error) {
	defer metrics.ObserveStore("postgres", "incident_history", time.Now())

	if !validID(orgID) || !validID(id) {
		return nil, incidents.ErrIncidentNotFound
	}

	rows, err := r.db.Query(ctx, `
		SELECT u.id, u.incident_id, u.sequence, u.message, u.status, u.is_public, u.created_by, u.created_at
		FROM incident_updates u
		JOIN incidents i ON i.id = u.incident_id
		WHERE i.organization_id = $1 AND u.incident_id = $2
		ORDER BY u.sequence
	`, orgID, id)
	if err != nil {
		return nil, fmt.Errorf("incident history: %w", err)
	}
	defer rows.Close()

	updates := make([]domain.Update, 0)
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		updates = append(updates, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updates: %w", err)
	}

	// every stored incident has at least one update
	if len(updates) == 0 {
		return nil, incidents.ErrIncidentNotFound
	}
	return updates, nil
}

// HasActiveIncidents reports whether serviceID belongs to an unresolved incident.
func (r *Repository) HasActiveIncidents(ctx context.Context, orgID, serviceID string) (bool, error) {
	if !validID(orgID) || !validID(serviceID) {
		return false, nil
	}

	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM incident_services s
			JOIN incidents i ON i.id = s.incident_id
			WHERE i.organization_id = $1 AND s.service_id = $2 AND i.status <> 'resolved'
		)
	`, orgID, serviceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active incidents: %w", err)
	}
	return exists, nil
}

type pgTx struct {
	tx         pgx.Tx
	incidentID string
}

func (t *pgTx) AppendUpdate(ctx context.Context, update *domain.Update) error {
	update.IncidentID = t.incidentID
	return insertUpdate(ctx, t.tx, update)
}

func (t *pgTx) SaveIncident(ctx context.Context, incident *domain.Incident) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE incidents
		SET title = $2, impact = $3, status = $4, resolved_at = $5,
			scheduled_start_time = $6, scheduled_end_time = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`,
		t.incidentID,
		incident.Title,
		incident.Impact,
		incident.Status,
		incident.ResolvedAt,
		incident.ScheduledStartTime,
		incident.ScheduledEndTime,
	).Scan(&incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}

	if _, err := t.tx.Exec(ctx, `DELETE FROM incident_services WHERE incident_id = $1`, t.incidentID); err != nil {
		return fmt.Errorf("unlink services: %w", err)
	}
	return linkServices(ctx, t.tx, t.incidentID, incident.ServiceIDs)
}

func (t *pgTx) DeleteIncident(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM incidents WHERE id = $1`, t.incidentID); err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	return nil
}

// validID reports whether id can be compared against a uuid column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
