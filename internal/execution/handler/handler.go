// Package handler exposes the execution-domain admin HTTP API: the
// strategy registry, position reads, and the authorization mirror status.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vaultbridge/internal/execution/mirror"
	"vaultbridge/internal/execution/models"
	"vaultbridge/internal/execution/store/position"
	"vaultbridge/internal/execution/store/strategies"
	"vaultbridge/internal/platform/httpjson"
	"vaultbridge/internal/platform/middleware"
	id "vaultbridge/pkg/domain"
	dErrors "vaultbridge/pkg/domain-errors"
	"vaultbridge/pkg/platform/sentinel"
)

type Handler struct {
	logger     *slog.Logger
	strategies strategies.Store
	positions  position.Store
	mirror     *mirror.Mirror
	validator  middleware.TokenValidator
}

func New(
	strategyStore strategies.Store,
	positionStore position.Store,
	authMirror *mirror.Mirror,
	validator middleware.TokenValidator,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		logger:     logger,
		strategies: strategyStore,
		positions:  positionStore,
		mirror:     authMirror,
		validator:  validator,
	}
}

// Register mounts the execution API on the router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.RequireAuth(h.validator, h.logger))

	router.Get("/strategies", h.handleListStrategies)
	router.Get("/strategies/{strategyID}", h.handleGetStrategy)
	router.Get("/accounts/{accountID}/positions", h.handleListPositions)
	router.Get("/mirror", h.handleMirrorStatus)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(h.logger))
		r.Use(middleware.ContentTypeJSON)
		r.Post("/strategies", h.handleRegisterStrategy)
		r.Post("/strategies/{strategyID}/deactivate", h.handleDeactivateStrategy)
	})

	r.Mount("/execution", router)
}

func (h *Handler) handleRegisterStrategy(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" || strings.TrimSpace(req.Name) == "" {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "strategy id and name are required"))
		return
	}
	if req.MinDeposit < 0 || req.MaxDeposit < 0 {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "deposit bounds cannot be negative"))
		return
	}

	strategy := &models.Strategy{
		ID:           id.StrategyID(req.ID),
		Name:         req.Name,
		Asset:        req.Asset,
		MinDeposit:   req.MinDeposit,
		MaxDeposit:   req.MaxDeposit,
		Active:       true,
		RegisteredAt: time.Now().UTC(),
	}
	if err := h.strategies.Create(r.Context(), strategy); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			httpjson.WriteError(w, dErrors.Newf(dErrors.CodeConflict, "strategy %q already exists", req.ID))
			return
		}
		h.writeError(w, err, "register strategy")
		return
	}

	h.logger.Info("strategy registered", "strategy", strategy.ID)
	httpjson.Write(w, http.StatusCreated, models.ToStrategyResponse(strategy))
}

func (h *Handler) handleDeactivateStrategy(w http.ResponseWriter, r *http.Request) {
	strategyID := id.StrategyID(chi.URLParam(r, "strategyID"))

	updated, err := h.strategies.Execute(r.Context(), strategyID, func(s *models.Strategy) error {
		if !s.Active {
			return dErrors.New(dErrors.CodeInvariantViolation, "strategy is already deactivated")
		}
		s.ApplyDeactivation(time.Now().UTC())
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httpjson.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "strategy %q not found", strategyID))
			return
		}
		h.writeError(w, err, "deactivate strategy")
		return
	}

	h.logger.Info("strategy deactivated", "strategy", strategyID)
	httpjson.Write(w, http.StatusOK, models.ToStrategyResponse(updated))
}

func (h *Handler) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	all, err := h.strategies.List(r.Context())
	if err != nil {
		h.writeError(w, err, "list strategies")
		return
	}

	out := make([]models.StrategyResponse, 0, len(all))
	for _, s := range all {
		out = append(out, models.ToStrategyResponse(s))
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	strategyID := id.StrategyID(chi.URLParam(r, "strategyID"))

	strategy, err := h.strategies.Get(r.Context(), strategyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httpjson.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "strategy %q not found", strategyID))
			return
		}
		h.writeError(w, err, "get strategy")
		return
	}
	httpjson.Write(w, http.StatusOK, models.ToStrategyResponse(strategy))
}

func (h *Handler) handleListPositions(w http.ResponseWriter, r *http.Request) {
	account, err := id.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
		return
	}

	positions, err := h.positions.ListByAccount(r.Context(), account)
	if err != nil {
		h.writeError(w, err, "list positions")
		return
	}

	out := make([]models.PositionResponse, 0, len(positions))
	for _, pos := range positions {
		out = append(out, models.ToPositionResponse(pos))
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) handleMirrorStatus(w http.ResponseWriter, _ *http.Request) {
	resp := models.MirrorStatusResponse{}
	if asOf := h.mirror.AsOf(); !asOf.IsZero() {
		resp.SyncedAt = &asOf
		resp.AgeSeconds = time.Since(asOf).Seconds()
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, action string) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.Error(action+" failed", "error", err)
	} else {
		h.logger.Warn(action+" rejected", "error", err)
	}
	httpjson.WriteError(w, err)
}
