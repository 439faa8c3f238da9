package catalog

import "github.com/bissquit/statusboard/internal/domain"

// Catalog errors.
var (
	ErrServiceNotFound           = domain.NewKindError(domain.ErrNotFound, "service not found")
	ErrServiceHasActiveIncidents = domain.NewKindError(domain.ErrConflict, "service has active incidents")
)
