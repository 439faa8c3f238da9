package incidents

import "github.com/bissquit/statusboard/internal/domain"

// Incident errors.
var (
	ErrIncidentNotFound = domain.NewKindError(domain.ErrNotFound, "incident not found")
	ErrUpdateImmutable  = domain.NewKindError(domain.ErrImmutableRecord, "incident updates cannot be edited or deleted")
	ErrIncidentActive   = domain.NewKindError(domain.ErrInvalidTransition, "only resolved incidents can be deleted")
	ErrIncidentReadOnly = domain.NewKindError(domain.ErrInvalidTransition, "resolved incidents are read-only")
)
