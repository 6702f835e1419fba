package sync

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roots/discourse-github-sponsors/pkg/response"
)

// Handler handles HTTP requests for sync operations
type Handler struct {
	service *Service
}

// NewHandler creates a new sync handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for sync endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/run", h.Run)
	r.Get("/outcomes", h.Outcomes)
	r.Post("/cleanup", h.Cleanup)

	return r
}

// Run handles POST /sync/run
// @Summary      Run sponsor reconciliation
// @Description  Fetch the sponsor roster and converge group membership to it
// @Tags         sync
// @Produce      json
// @Success      200 {object} response.APIResponse{data=RunReport}
// @Failure      409 {object} response.APIResponse
// @Failure      502 {object} response.APIResponse
// @Router       /sync/run [post]
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Run(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, ErrSyncDisabled):
			response.BadRequest(w, err.Error())
		case errors.Is(err, ErrSyncInProgress):
			response.Conflict(w, err.Error())
		case errors.Is(err, ErrRosterFetch):
			response.Error(w, http.StatusBadGateway, "ROSTER_FETCH_FAILED", err.Error())
		default:
			response.InternalError(w, "Sync run failed")
		}
		return
	}

	response.JSON(w, http.StatusOK, report)
}

// Outcomes handles GET /sync/outcomes
// @Summary      List recent sync outcomes
// @Description  Get recorded run outcomes, newest first
// @Tags         sync
// @Produce      json
// @Param        status query string false "Filter by outcome status" Enums(success, failed)
// @Param        limit query int false "Maximum results" default(10)
// @Success      200 {object} response.APIResponse{data=[]OutcomeResponse}
// @Router       /sync/outcomes [get]
func (h *Handler) Outcomes(w http.ResponseWriter, r *http.Request) {
	var (
		outcomes []*Outcome
		err      error
	)

	switch r.URL.Query().Get("status") {
	case "success":
		outcomes, err = h.service.Successful(r.Context())
	case "failed":
		outcomes, err = h.service.Failed(r.Context())
	default:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		outcomes, err = h.service.Recent(r.Context(), limit)
	}
	if err != nil {
		response.InternalError(w, "Failed to list sync outcomes")
		return
	}

	resp := make([]*OutcomeResponse, len(outcomes))
	for i, o := range outcomes {
		resp[i] = o.ToResponse()
	}

	response.JSON(w, http.StatusOK, resp)
}

// Cleanup handles POST /sync/cleanup
// @Summary      Delete old sync outcomes
// @Description  Delete outcomes past the configured retention horizon
// @Tags         sync
// @Produce      json
// @Success      200 {object} response.APIResponse{data=CleanupResponse}
// @Router       /sync/cleanup [post]
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.Cleanup(r.Context())
	if err != nil {
		response.InternalError(w, "Failed to clean up sync outcomes")
		return
	}

	response.JSON(w, http.StatusOK, &CleanupResponse{Deleted: deleted})
}
