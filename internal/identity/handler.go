package identity

import (
	"net/http"

	"github.com/bissquit/statusboard/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler exposes the authenticated actor to the console.
type Handler struct{}

// NewHandler creates a new identity handler.
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/me", h.Me)
}

// MeResponse describes the caller.
type MeResponse struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
}

// Me handles GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := httputil.GetActor(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	httputil.Success(w, http.StatusOK, MeResponse{
		UserID:         actor.UserID,
		OrganizationID: actor.OrganizationID,
		Role:           string(actor.Role),
	})
}
