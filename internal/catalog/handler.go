package catalog

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the catalog module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new catalog handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers service routes. The router is expected to be
// mounted under an organization and guarded by tenant middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/services", func(r chi.Router) {
		r.Get("/", h.ListServices)
		r.Post("/", h.CreateService)
		r.Get("/{serviceID}", h.GetService)
		r.Patch("/{serviceID}", h.UpdateService)
		r.Put("/{serviceID}/status", h.SetServiceStatus)
		r.Delete("/{serviceID}", h.DeleteService)
	})
}

// CreateServiceRequest represents the request body for creating a service.
type CreateServiceRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=2000"`
	Status      string `json:"status" validate:"omitempty,oneof=operational degraded partial_outage major_outage maintenance"`
}

// UpdateServiceRequest represents the request body for updating a service.
type UpdateServiceRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// SetServiceStatusRequest represents the request body for changing service status.
type SetServiceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=operational degraded partial_outage major_outage maintenance"`
}

// CreateService handles POST /services.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	service, err := h.service.Create(r.Context(), httputil.GetScope(r.Context()), CreateServiceInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      domain.ServiceStatus(req.Status),
	})
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, service)
}

// GetService handles GET /services/{serviceID}.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	service, err := h.service.Get(r.Context(), httputil.GetScope(r.Context()), chi.URLParam(r, "serviceID"))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

// ListServices handles GET /services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	filter := ServiceFilter{}
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.ServiceStatus(s)
		filter.Status = &status
	}

	services, err := h.service.List(r.Context(), httputil.GetScope(r.Context()), filter)
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, services)
}

// UpdateService handles PATCH /services/{serviceID}.
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var req UpdateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	service, err := h.service.Update(r.Context(), httputil.GetScope(r.Context()), chi.URLParam(r, "serviceID"), UpdateServiceInput(req))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

// SetServiceStatus handles PUT /services/{serviceID}/status.
func (h *Handler) SetServiceStatus(w http.ResponseWriter, r *http.Request) {
	var req SetServiceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	service, err := h.service.SetStatus(r.Context(), httputil.GetScope(r.Context()), chi.URLParam(r, "serviceID"), domain.ServiceStatus(req.Status))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

// DeleteService handles DELETE /services/{serviceID}.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), httputil.GetScope(r.Context()), chi.URLParam(r, "serviceID")); err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
