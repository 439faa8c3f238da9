package organizations

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the organizations module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new organizations handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RequireOrganization responds 404 when the organization named by the
// orgParam URL parameter does not exist.
func (h *Handler) RequireOrganization(orgParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := h.service.GetByID(r.Context(), chi.URLParam(r, orgParam)); err != nil {
				httputil.HandleDomainError(r.Context(), w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRoutes registers organization, team and membership routes on a
// router mounted at one organization. Settings and team management need
// the admin role.
func (h *Handler) RegisterRoutes(r chi.Router) {
	admin := httputil.RequireRole(domain.RoleAdmin)

	r.Get("/", h.GetOrganization)
	r.With(admin).Patch("/", h.UpdateOrganization)
	r.With(admin).Delete("/", h.DeleteOrganization)

	r.Route("/teams", func(r chi.Router) {
		r.Get("/", h.ListTeams)
		r.With(admin).Post("/", h.CreateTeam)
		r.Get("/{teamID}", h.GetTeam)
		r.With(admin).Patch("/{teamID}", h.UpdateTeam)
		r.With(admin).Delete("/{teamID}", h.DeleteTeam)
		r.Get("/{teamID}/members", h.ListMembers)
		r.With(admin).Post("/{teamID}/members", h.AddMember)
		r.With(admin).Delete("/{teamID}/members/{userID}", h.RemoveMember)
	})
}

// UpdateOrganizationRequest represents the request body for updating an organization.
type UpdateOrganizationRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=255"`
	Slug    *string `json:"slug" validate:"omitempty,min=1,max=63"`
	Website *string `json:"website" validate:"omitempty,url"`
	LogoURL *string `json:"logo_url" validate:"omitempty,url"`
}

// CreateTeamRequest represents the request body for creating a team.
type CreateTeamRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateTeamRequest represents the request body for updating a team.
type UpdateTeamRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// AddMemberRequest represents the request body for adding a team member.
type AddMemberRequest struct {
	UserID string `json:"user_id" validate:"required,min=1,max=255"`
	Role   string `json:"role" validate:"omitempty,oneof=member admin"`
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

// GetOrganization handles GET /orgs/{orgID}.
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.service.Get(r.Context(), httputil.GetScope(r.Context()))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, org)
}

// UpdateOrganization handles PATCH /orgs/{orgID}.
func (h *Handler) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrganizationRequest
	if !h.decode(w, r, &req) {
		return
	}

	org, err := h.service.Update(r.Context(), httputil.GetScope(r.Context()), UpdateOrganizationInput(req))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, org)
}

// DeleteOrganization handles DELETE /orgs/{orgID}.
func (h *Handler) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), httputil.GetScope(r.Context())); err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTeams handles GET /teams.
func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.service.ListTeams(r.Context(), httputil.GetScope(r.Context()))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, teams)
}

// CreateTeam handles POST /teams.
func (h *Handler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req CreateTeamRequest
	if !h.decode(w, r, &req) {
		return
	}

	team, err := h.service.CreateTeam(r.Context(), httputil.GetScope(r.Context()), CreateTeamInput(req))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusCreated, team)
}

// GetTeam handles GET /teams/{teamID}.
func (h *Handler) GetTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.service.GetTeam(r.Context(), httputil.GetScope(r.Context()), chi.URLParam(r, "teamID"))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, team)
}

// UpdateTeam handles PATCH /teams/{teamID}.
func (h *Handler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	var req UpdateTeamRequest
	if !h.decode(w, r, &req) {
		return
	}

	team, err := h.service.UpdateTeam(r.Context(), httputil.GetScope(r.Context()), chi.URLParam(r, "teamID"), UpdateTeamInput(req))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, team)
}

// DeleteTeam handles DELETE /teams/{teamID}.
func (h *Handler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTeam(r.Context(), httputil.GetScope(r.Context()), chi.URLParam(r, "teamID")); err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMembers handles GET /teams/{teamID}/members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context(), httputil.GetScope(r.Context()), chi.URLParam(r, "teamID"))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusOK, members)
}

// AddMember handles POST /teams/{teamID}/members.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if !h.decode(w, r, &req) {
		return
	}

	m, err := h.service.AddMember(r.Context(), httputil.GetScope(r.Context()),
		chi.URLParam(r, "teamID"), req.UserID, domain.MemberRole(req.Role))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	httputil.Success(w, http.StatusCreated, m)
}

// RemoveMember handles DELETE /teams/{teamID}/members/{userID}.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemoveMember(r.Context(), httputil.GetScope(r.Context()),
		chi.URLParam(r, "teamID"), chi.URLParam(r, "userID"))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
