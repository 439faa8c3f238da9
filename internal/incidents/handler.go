package incidents

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers incident routes. The router is expected to be
// mounted under an organization and guarded by tenant middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Post("/", h.CreateIncident)
		r.Get("/{incidentID}", h.GetIncident)
		r.Patch("/{incidentID}", h.UpdateIncident)
		r.Delete("/{incidentID}", h.DeleteIncident)
		r.Put("/{incidentID}/status", h.ChangeStatus)
		r.Post("/{incidentID}/resolve", h.ResolveIncident)
		r.Get("/{incidentID}/updates", h.ListUpdates)
		r.Post("/{incidentID}/updates", h.AddUpdate)
		r.Patch("/{incidentID}/updates/{updateID}", h.EditUpdate)
		r.Delete("/{incidentID}/updates/{updateID}", h.DeleteUpdate)
	})
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	Title              string     `json:"title" validate:"required,min=1,max=500"`
	Impact             string     `json:"impact" validate:"required,oneof=minor major critical"`
	Type               string     `json:"type" validate:"required,oneof=incident maintenance"`
	ServiceIDs         []string   `json:"service_ids" validate:"required,min=1,dive,required"`
	InitialStatus      string     `json:"initial_status" validate:"omitempty,oneof=investigating identified monitoring maintenance"`
	InitialMessage     string     `json:"initial_message" validate:"max=10000"`
	ScheduledStartTime *time.Time `json:"scheduled_start_time"`
	ScheduledEndTime   *time.Time `json:"scheduled_end_time"`
}

// UpdateIncidentRequest represents the request body for editing incident details.
type UpdateIncidentRequest struct {
	Title              *string    `json:"title" validate:"omitempty,min=1,max=500"`
	Impact             *string    `json:"impact" validate:"omitempty,oneof=minor major critical"`
	ServiceIDs         []string   `json:"service_ids" validate:"omitempty,min=1,dive,required"`
	ScheduledStartTime *time.Time `json:"scheduled_start_time"`
	ScheduledEndTime   *time.Time `json:"scheduled_end_time"`
}

// AddUpdateRequest represents the request body for appending an update.
type AddUpdateRequest struct {
	Message  string `json:"message" validate:"required,min=1,max=10000"`
	Status   string `json:"status" validate:"omitempty,oneof=investigating identified monitoring resolved maintenance"`
	IsPublic *bool  `json:"is_public"`
}

// ChangeStatusRequest represents the request body for changing incident status.
type ChangeStatusRequest struct {
	Status  string `json:"status" validate:"required,oneof=investigating identified monitoring resolved maintenance"`
	Message string `json:"message" validate:"max=10000"`
}

// ResolveRequest represents the request body for resolving an incident.
type ResolveRequest struct {
	Message string `json:"message" validate:"required,min=1,max=10000"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httputil.ValidationError(w, err)
		return false
	}
	return true
}

// ListIncidents handles GET /incidents.
// Query parameters: type, state (active|resolved), limit.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	var filter ListFilter

	q := r.URL.Query()
	if v := q.Get("type"); v != "" {
		t := domain.IncidentType(v)
		filter.Type = &t
	}
	switch q.Get("state") {
	case "":
	case "active":
		resolved := false
		filter.Resolved = &resolved
	case "resolved":
		resolved := true
		filter.Resolved = &resolved
	default:
		httputil.Error(w, http.StatusBadRequest, "state must be active or resolved")
		return
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	list, err := h.service.List(r.Context(), httputil.GetScope(r.Context()), filter)
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, list)
}

// CreateIncident handles POST /incidents.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if !h.decode(w, r, &req) {
		return
	}

	incident, err := h.service.Create(r.Context(), httputil.GetScope(r.Context()), CreateInput{
		Title:              req.Title,
		Impact:             domain.Impact(req.Impact),
		Type:               domain.IncidentType(req.Type),
		ServiceIDs:         req.ServiceIDs,
		InitialStatus:      domain.IncidentStatus(req.InitialStatus),
		InitialMessage:     req.InitialMessage,
		ScheduledStartTime: req.ScheduledStartTime,
		ScheduledEndTime:   req.ScheduledEndTime,
	})
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusCreated, incident)
}

// GetIncident handles GET /incidents/{incidentID}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.Get(r.Context(), httputil.GetScope(r.Context()), chi.URLParam(r, "incidentID"))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// UpdateIncident handles PATCH /incidents/{incidentID}.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	var req UpdateIncidentRequest
	if !h.decode(w, r, &req) {
		return
	}

	input := DetailsInput{
		Title:              req.Title,
		ServiceIDs:         req.ServiceIDs,
		ScheduledStartTime: req.ScheduledStartTime,
		ScheduledEndTime:   req.ScheduledEndTime,
	}
	if req.Impact != nil {
		impact := domain.Impact(*req.Impact)
		input.Impact = &impact
	}

	incident, err := h.service.UpdateDetails(r.Context(), httputil.GetScope(r.Context()), chi.URLParam(r, "incidentID"), input)
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// DeleteIncident handles DELETE /incidents/{incidentID}.
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), httputil.GetScope(r.Context()), chi.URLParam(r, "incidentID")); err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangeStatus handles PUT /incidents/{incidentID}/status.
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req ChangeStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	incident, err := h.service.ChangeStatus(r.Context(), httputil.GetScope(r.Context()),
		chi.URLParam(r, "incidentID"), domain.IncidentStatus(req.Status), req.Message)
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// ResolveIncident handles POST /incidents/{incidentID}/resolve.
func (h *Handler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !h.decode(w, r, &req) {
		return
	}

	incident, err := h.service.Resolve(r.Context(), httputil.GetScope(r.Context()), chi.URLParam(r, "incidentID"), req.Message)
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// ListUpdates handles GET /incidents/{incidentID}/updates.
func (h *Handler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := h.service.History(r.Context(), httputil.GetScope(r.Context()), chi.URLParam(r, "incidentID"))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, updates)
}

// AddUpdate handles POST /incidents/{incidentID}/updates.
// Updates are public unless is_public is false.
func (h *Handler) AddUpdate(w http.ResponseWriter, r *http.Request) {
	var req AddUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	update, err := h.service.AppendUpdate(r.Context(), httputil.GetScope(r.Context()), chi.URLParam(r, "incidentID"), AppendInput{
		Message:  req.Message,
		Status:   domain.IncidentStatus(req.Status),
		IsPublic: isPublic,
	})
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusCreated, update)
}

// EditUpdate handles PATCH /incidents/{incidentID}/updates/{updateID}.
func (h *Handler) EditUpdate(w http.ResponseWriter, r *http.Request) {
	err := h.service.UpdateLog().Edit(r.Context(), httputil.GetScope(r.Context()),
		chi.URLParam(r, "incidentID"), chi.URLParam(r, "updateID"))
	httputil.HandleDomainError(r.Context(), w, err)
}

// DeleteUpdate handles DELETE /incidents/{incidentID}/updates/{updateID}.
func (h *Handler) DeleteUpdate(w http.ResponseWriter, r *http.Request) {
	err := h.service.UpdateLog().Delete(r.Context(), httputil.GetScope(r.Context()),
		chi.URLParam(r, "incidentID"), chi.URLParam(r, "updateID"))
	httputil.HandleDomainError(r.Context(), w, err)
}
