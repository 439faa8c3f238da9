package incidents

import (
	"context"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
)

// UpdateLog is the append-only timeline of incident updates. Ordering is
// assigned by the server: each update gets the next sequence number and a
// created_at strictly after its predecessor's.
type UpdateLog struct {
	repo Repository
	now  func() time.Time
}

// NewUpdateLog creates an update log over repo.
func NewUpdateLog(repo Repository) *UpdateLog {
	return &UpdateLog{repo: repo, now: time.Now}
}

// stamp assigns ordering fields to update given the last update of the
// timeline, or nil for the first one.
func (l *UpdateLog) stamp(last *domain.Update, update *domain.Update) {
	at := l.now().UTC().Truncate(time.Microsecond)
	update.Sequence = 1
	if last != nil {
		update.Sequence = last.Sequence + 1
		if !at.After(last.CreatedAt) {
			at = last.CreatedAt.Add(time.Microsecond)
		}
	}
	update.CreatedAt = at
}

// Append stamps update, stores it through tx and advances the incident's
// cached status to the update's status.
func (l *UpdateLog) Append(ctx context.Context, tx Tx, incident *domain.Incident, update *domain.Update) error {
	var last *domain.Update
	if n := len(incident.Updates); n > 0 {
		last = &incident.Updates[n-1]
	}
	l.stamp(last, update)
	update.IncidentID = incident.ID

	if err := tx.AppendUpdate(ctx, update); err != nil {
		return err
	}
	incident.Updates = append(incident.Updates, *update)
	incident.Status = update.Status
	return nil
}

// History returns the timeline of an incident in append order.
func (l *UpdateLog) History(ctx context.Context, scope domain.Scope, incidentID string) ([]domain.Update, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return l.repo.History(ctx, scope.OrganizationID, incidentID)
}

// Current derives the incident status from the last update of its timeline.
func (l *UpdateLog) Current(ctx context.Context, scope domain.Scope, incidentID string) (domain.IncidentStatus, error) {
	history, err := l.History(ctx, scope, incidentID)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", ErrIncidentNotFound
	}
	return history[len(history)-1].Status, nil
}

// Edit always fails: updates are immutable once appended.
func (l *UpdateLog) Edit(_ context.Context, _ domain.Scope, _, _ string) error {
	return ErrUpdateImmutable
}

// Delete always fails: updates are immutable once appended.
func (l *UpdateLog) Delete(_ context.Context, _ domain.Scope, _, _ string) error {
	return ErrUpdateImmutable
}
