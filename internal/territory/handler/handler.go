// Package handler exposes the territory REST endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"terrarun/internal/platform/middleware"
	"terrarun/internal/territory/model"
	"terrarun/internal/territory/service"
	"terrarun/pkg/gameerrors"
	"terrarun/pkg/httputil"
)

// Service defines the territory operations the handlers depend on.
type Service interface {
	Capture(ctx context.Context, userID string, req service.CaptureRequest) (*service.CaptureResult, error)
	All(ctx context.Context, limit, offset int) ([]model.Cell, error)
	ByUser(ctx context.Context, userID string) ([]model.Cell, error)
	Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]model.Cell, error)
	Boss(ctx context.Context, limit int) ([]service.BossCell, error)
	Rename(ctx context.Context, userID, territoryID, name string) (*model.Cell, error)
}

// Handler wires territory endpoints to the territory service.
type Handler struct {
	service Service
	auth    func(http.Handler) http.Handler
	logger  *slog.Logger
}

// New constructs a territory handler with its dependencies.
func New(service Service, auth func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		auth:    auth,
		logger:  logger,
	}
}

// Register mounts territory endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/territories", func(r chi.Router) {
		r.Get("/all", h.HandleList)
		r.Get("/nearby", h.HandleNearby)
		r.Get("/boss", h.HandleBoss)
		r.Get("/user/{userId}", h.HandleByUser)

		r.Group(func(r chi.Router) {
			r.Use(h.auth)
			r.Post("/capture", h.HandleCapture)
			r.Patch("/{id}/name", h.HandleRename)
		})
	})
}

// HandleCapture handles POST /territories/capture requests.
func (h *Handler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		httputil.WriteError(w, gameerrors.New(gameerrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, err := httputil.DecodeJSON[CaptureRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Capture(ctx, userID, req.toDomain())
	if err != nil {
		h.logger.ErrorContext(ctx, "capture failed",
			"request_id", middleware.GetRequestID(ctx),
			"user_id", userID,
			"hex_count", len(req.HexIDs),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "capture processed",
		"request_id", middleware.GetRequestID(ctx),
		"user_id", userID,
		"hex_count", len(req.HexIDs),
		"captured", result.TotalCaptured,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleList handles GET /territories/all requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	cells, err := h.service.All(r.Context(), limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse(cells))
}

// HandleByUser handles GET /territories/user/{userId} requests.
func (h *Handler) HandleByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		httputil.WriteError(w, gameerrors.New(gameerrors.CodeBadRequest, "userId is required"))
		return
	}

	cells, err := h.service.ByUser(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse(cells))
}

// HandleNearby handles GET /territories/nearby requests.
func (h *Handler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	lat, err := queryFloat(r, "lat")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	lng, err := queryFloat(r, "lng")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	radiusKm := 5.0
	raw := r.URL.Query().Get("radius")
	if raw == "" {
		// Older clients sent the unit in the parameter name.
		raw = r.URL.Query().Get("radiusKm")
	}
	if raw != "" {
		radiusKm, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			httputil.WriteError(w, gameerrors.New(gameerrors.CodeBadRequest, "radius must be a number"))
			return
		}
	}

	cells, err := h.service.Nearby(r.Context(), lat, lng, radiusKm)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse(cells))
}

// HandleBoss handles GET /territories/boss requests.
func (h *Handler) HandleBoss(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 3)

	bosses, err := h.service.Boss(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if bosses == nil {
		bosses = []service.BossCell{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"bosses": bosses,
		"count":  len(bosses),
	})
}

// HandleRename handles PATCH /territories/{id}/name requests.
func (h *Handler) HandleRename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		httputil.WriteError(w, gameerrors.New(gameerrors.CodeUnauthorized, "authentication required"))
		return
	}
	territoryID := chi.URLParam(r, "id")

	req, err := httputil.DecodeJSON[RenameRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cell, err := h.service.Rename(ctx, userID, territoryID, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cell)
}

func listResponse(cells []model.Cell) map[string]any {
	if cells == nil {
		cells = []model.Cell{}
	}
	return map[string]any{
		"territories": cells,
		"count":       len(cells),
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, gameerrors.New(gameerrors.CodeBadRequest, name+" is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, gameerrors.New(gameerrors.CodeBadRequest, name+" must be a number")
	}
	return v, nil
}
