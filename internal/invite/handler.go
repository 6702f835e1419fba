package invite

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roots/discourse-github-sponsors/internal/apiclient"
	"github.com/roots/discourse-github-sponsors/pkg/middleware"
	"github.com/roots/discourse-github-sponsors/pkg/response"
)

// Handler handles HTTP requests for invite operations
type Handler struct {
	service *Service
}

// NewHandler creates a new invite handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for invite endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)

	return r
}

// AdminRoutes returns the router for scheduler-driven invite maintenance
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/used", h.MarkUsed)
	r.Post("/sweep", h.Sweep)
	r.Post("/cleanup", h.Cleanup)

	return r
}

// Create handles POST /invites
// @Summary      Issue a sponsor invite
// @Description  Mint a single-use, time-bound Discord invite for the current sponsor
// @Tags         invites
// @Accept       json
// @Produce      json
// @Param        request body CreateInviteRequest true "Invite request"
// @Success      201 {object} response.APIResponse{data=InviteResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Failure      429 {object} response.APIResponse
// @Router       /invites [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req CreateInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DiscordUsername == "" {
		response.BadRequest(w, "Invalid request body")
		return
	}

	inv, err := h.service.Create(r.Context(), userID, req.DiscordUsername)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotSponsor):
			response.Forbidden(w, err.Error())
		case errors.Is(err, ErrAlreadyGuildMember):
			response.Conflict(w, err.Error())
		case apiclient.IsKind(err, apiclient.KindPermission):
			response.Forbidden(w, "The invite bot lacks permission to create invites")
		case apiclient.IsKind(err, apiclient.KindRateLimited):
			response.Error(w, http.StatusTooManyRequests, "RATE_LIMITED", "Invite service is rate limited, try again later")
		default:
			response.Error(w, http.StatusBadGateway, "INVITE_FAILED", "Failed to create invite")
		}
		return
	}

	response.JSON(w, http.StatusCreated, inv.ToResponse())
}

// List handles GET /invites
// @Summary      List my invites
// @Description  Get the current user's invites with derived status, newest first
// @Tags         invites
// @Produce      json
// @Success      200 {object} response.APIResponse{data=[]InviteResponse}
// @Router       /invites [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	invites, err := h.service.ListByUser(r.Context(), userID)
	if err != nil {
		response.InternalError(w, "Failed to list invites")
		return
	}

	resp := make([]*InviteResponse, len(invites))
	for i, inv := range invites {
		resp[i] = inv.ToResponse()
	}

	response.JSON(w, http.StatusOK, resp)
}

// MarkUsed handles POST /admin/invites/used
// @Summary      Mark an invite used
// @Description  Record that the guild bot saw an invite consumed; marking twice is a no-op
// @Tags         invites
// @Accept       json
// @Produce      json
// @Param        request body MarkUsedRequest true "Consumed invite code"
// @Success      200 {object} response.APIResponse{data=InviteResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /admin/invites/used [post]
func (h *Handler) MarkUsed(w http.ResponseWriter, r *http.Request) {
	var req MarkUsedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		response.BadRequest(w, "Invalid request body")
		return
	}

	inv, err := h.service.MarkUsed(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, ErrInviteNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to mark invite used")
		return
	}

	response.JSON(w, http.StatusOK, inv.ToResponse())
}

// Sweep handles POST /admin/invites/sweep
// @Summary      Expire stale invites
// @Description  Flag all invites past their expiry; idempotent
// @Tags         invites
// @Produce      json
// @Success      200 {object} response.APIResponse{data=SweepResponse}
// @Router       /admin/invites/sweep [post]
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	expired, err := h.service.Sweep(r.Context())
	if err != nil {
		response.InternalError(w, "Failed to sweep invites")
		return
	}

	response.JSON(w, http.StatusOK, &SweepResponse{Expired: expired})
}

// Cleanup handles POST /admin/invites/cleanup
// @Summary      Delete old invites
// @Description  Delete invites past the retention horizon regardless of status
// @Tags         invites
// @Produce      json
// @Success      200 {object} response.APIResponse{data=CleanupResponse}
// @Router       /admin/invites/cleanup [post]
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.Cleanup(r.Context())
	if err != nil {
		response.InternalError(w, "Failed to clean up invites")
		return
	}

	response.JSON(w, http.StatusOK, &CleanupResponse{Deleted: deleted})
}
