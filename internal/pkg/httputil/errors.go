package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// DomainErrorMappings maps the shared error kinds to HTTP statuses.
var DomainErrorMappings = []ErrorMapping{
	{Error: domain.ErrValidation, Status: http.StatusBadRequest},
	{Error: domain.ErrNotFound, Status: http.StatusNotFound},
	{Error: domain.ErrInvalidTransition, Status: http.StatusConflict},
	{Error: domain.ErrConflict, Status: http.StatusConflict},
	{Error: domain.ErrImmutableRecord, Status: http.StatusMethodNotAllowed},
}

// HandleError maps a domain error to an HTTP response using provided mappings.
// If no mapping matches, logs the error and returns 500 Internal Server Error.
// Field-level validation failures keep their details.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	var invalid *domain.ValidationError
	if errors.As(err, &invalid) {
		ValidationError(w, err)
		return
	}

	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			Error(w, m.Status, msg)
			return
		}
	}
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}

// HandleDomainError is HandleError with DomainErrorMappings.
func HandleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	HandleError(ctx, w, err, DomainErrorMappings)
}
