package snapshot

import (
	"net/http"
	"strconv"

	"github.com/bissquit/statusboard/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler serves the public status page API.
type Handler struct {
	view *View
}

// NewHandler creates a new public snapshot handler.
func NewHandler(view *View) *Handler {
	return &Handler{view: view}
}

// RegisterRoutes registers public routes. No authentication is required.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/public/{slug}", func(r chi.Router) {
		r.Get("/", h.GetSnapshot)
		r.Get("/status", h.GetSummary)
		r.Get("/services", h.ListServices)
		r.Get("/incidents", h.ListActiveIncidents)
		r.Get("/incidents/recent", h.ListRecentIncidents)
		r.Get("/incidents/{incidentID}", h.GetIncident)
	})
}

// GetSnapshot handles GET /public/{slug}.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.view.SnapshotBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, snap)
}

// GetSummary handles GET /public/{slug}/status.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.view.Summary(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, summary)
}

// ListServices handles GET /public/{slug}/services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.view.Services(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, services)
}

// ListActiveIncidents handles GET /public/{slug}/incidents.
func (h *Handler) ListActiveIncidents(w http.ResponseWriter, r *http.Request) {
	list, err := h.view.ActiveIncidents(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, list)
}

// ListRecentIncidents handles GET /public/{slug}/incidents/recent?limit=.
func (h *Handler) ListRecentIncidents(w http.ResponseWriter, r *http.Request) {
	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	list, err := h.view.RecentIncidents(r.Context(), chi.URLParam(r, "slug"), limit)
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, list)
}

// GetIncident handles GET /public/{slug}/incidents/{incidentID}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.view.Incident(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "incidentID"))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}
