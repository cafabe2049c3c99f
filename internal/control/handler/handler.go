// Package handler exposes the control-domain HTTP API: operation initiation
// and history, account registry, role administration, cached state reads,
// and the operator status stream.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"vaultbridge/internal/control/models"
	"vaultbridge/internal/control/ws"
	"vaultbridge/internal/platform/httpjson"
	"vaultbridge/internal/platform/metrics"
	"vaultbridge/internal/platform/middleware"
	"vaultbridge/internal/relay/codec"
	id "vaultbridge/pkg/domain"
	dErrors "vaultbridge/pkg/domain-errors"
	"vaultbridge/pkg/requestcontext"
)

// Service is the control-domain surface the handler depends on.
type Service interface {
	Initiate(ctx context.Context, op codec.Operation) (*models.PendingOperation, error)
	Resend(ctx context.Context, msgID id.MessageID) (*models.PendingOperation, error)
	Abandon(ctx context.Context, msgID id.MessageID) error
	Operation(ctx context.Context, msgID id.MessageID) (*models.PendingOperation, error)
	Operations(ctx context.Context, account id.AccountID, status models.OperationStatus, limit int) ([]*models.PendingOperation, error)
	StalePending(ctx context.Context) ([]*models.PendingOperation, error)

	RegisterAccount(ctx context.Context, label string) (*models.Account, error)
	DeactivateAccount(ctx context.Context, accountID id.AccountID) (*models.Account, error)
	GetAccount(ctx context.Context, accountID id.AccountID) (*models.Account, error)
	ListAccounts(ctx context.Context, activeOnly bool) ([]*models.Account, error)
	AccountState(ctx context.Context, accountID id.AccountID) (*models.StateSnapshot, id.Freshness, error)

	GrantRole(ctx context.Context, accountID id.AccountID, role id.RoleKind, holder id.Address) error
	RevokeRole(ctx context.Context, accountID id.AccountID, role id.RoleKind) error
}

type Handler struct {
	logger     *slog.Logger
	svc        Service
	hub        *ws.Hub
	metrics    *metrics.Metrics
	validator  middleware.TokenValidator
	staleAfter time.Duration
}

func New(svc Service, hub *ws.Hub, validator middleware.TokenValidator, logger *slog.Logger, m *metrics.Metrics, staleAfter time.Duration) *Handler {
	return &Handler{
		logger:     logger,
		svc:        svc,
		hub:        hub,
		metrics:    m,
		validator:  validator,
		staleAfter: staleAfter,
	}
}

// Register mounts the control API on the router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.Latency(h.metrics))
	router.Use(middleware.RequireAuth(h.validator, h.logger))

	router.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Post("/operations/deposit", h.handleDeposit)
		r.Post("/operations/withdraw", h.handleWithdraw)
		r.Post("/operations/emergency-withdraw", h.handleEmergencyWithdraw)
	})

	router.Get("/operations", h.handleListOperations)
	router.Get("/operations/stale", h.handleStaleOperations)
	router.Get("/operations/{messageID}", h.handleGetOperation)

	router.Get("/accounts", h.handleListAccounts)
	router.Get("/accounts/{accountID}", h.handleGetAccount)
	router.Get("/accounts/{accountID}/state", h.handleAccountState)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(h.logger))
		r.Post("/operations/{messageID}/resend", h.handleResend)
		r.Post("/operations/{messageID}/abandon", h.handleAbandon)
		r.Post("/accounts", h.handleRegisterAccount)
		r.Post("/accounts/{accountID}/deactivate", h.handleDeactivateAccount)
		r.Post("/accounts/{accountID}/roles", h.handleGrantRole)
		r.Delete("/accounts/{accountID}/roles/{role}", h.handleRevokeRole)
	})

	if h.hub != nil {
		router.Get("/ws", h.hub.HandleWS)
	}

	r.Mount("/control", router)
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request, op codec.Operation) {
	row, err := h.svc.Initiate(r.Context(), op)
	if err != nil {
		h.writeError(w, r, err, "initiate operation")
		return
	}
	httpjson.Write(w, http.StatusAccepted, models.ToOperationResponse(row, h.staleAfter, time.Now()))
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req models.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	account, err := id.ParseAccountID(req.Account)
	if err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
		return
	}
	h.initiate(w, r, codec.Operation{
		Kind:     id.OpDeposit,
		Account:  account,
		Strategy: id.StrategyID(req.Strategy),
		Amount:   req.Amount,
	})
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req models.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	account, err := id.ParseAccountID(req.Account)
	if err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
		return
	}
	h.initiate(w, r, codec.Operation{
		Kind:      id.OpWithdraw,
		Account:   account,
		Shares:    req.Shares,
		Recipient: id.Address(req.Recipient),
	})
}

func (h *Handler) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req models.EmergencyWithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	account, err := id.ParseAccountID(req.Account)
	if err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
		return
	}
	h.initiate(w, r, codec.Operation{
		Kind:      id.OpEmergencyWithdraw,
		Account:   account,
		Recipient: id.Address(req.Recipient),
	})
}

func (h *Handler) handleListOperations(w http.ResponseWriter, r *http.Request) {
	var account id.AccountID
	if raw := r.URL.Query().Get("account"); raw != "" {
		parsed, err := id.ParseAccountID(raw)
		if err != nil {
			httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
			return
		}
		account = parsed
	}

	status := models.OperationStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.StatusPending, models.StatusConfirmedSuccess, models.StatusConfirmedFailure:
	default:
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid status filter"))
		return
	}

	ops, err := h.svc.Operations(r.Context(), account, status, queryInt(r, "limit"))
	if err != nil {
		h.writeError(w, r, err, "list operations")
		return
	}
	httpjson.Write(w, http.StatusOK, h.toOperationResponses(ops))
}

func (h *Handler) handleStaleOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := h.svc.StalePending(r.Context())
	if err != nil {
		h.writeError(w, r, err, "list stale operations")
		return
	}
	httpjson.Write(w, http.StatusOK, h.toOperationResponses(ops))
}

func (h *Handler) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	op, err := h.svc.Operation(r.Context(), id.MessageID(chi.URLParam(r, "messageID")))
	if err != nil {
		h.writeError(w, r, err, "get operation")
		return
	}
	httpjson.Write(w, http.StatusOK, models.ToOperationResponse(op, h.staleAfter, time.Now()))
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	row, err := h.svc.Resend(r.Context(), id.MessageID(chi.URLParam(r, "messageID")))
	if err != nil {
		h.writeError(w, r, err, "resend operation")
		return
	}
	httpjson.Write(w, http.StatusAccepted, models.ToOperationResponse(row, h.staleAfter, time.Now()))
}

func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Abandon(r.Context(), id.MessageID(chi.URLParam(r, "messageID"))); err != nil {
		h.writeError(w, r, err, "abandon operation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	account, err := h.svc.RegisterAccount(r.Context(), req.Label)
	if err != nil {
		h.writeError(w, r, err, "register account")
		return
	}
	httpjson.Write(w, http.StatusCreated, models.ToAccountResponse(account))
}

func (h *Handler) handleDeactivateAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.parseAccountParam(w, r)
	if err != nil {
		return
	}
	updated, err := h.svc.DeactivateAccount(r.Context(), account)
	if err != nil {
		h.writeError(w, r, err, "deactivate account")
		return
	}
	httpjson.Write(w, http.StatusOK, models.ToAccountResponse(updated))
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.parseAccountParam(w, r)
	if err != nil {
		return
	}
	found, err := h.svc.GetAccount(r.Context(), account)
	if err != nil {
		h.writeError(w, r, err, "get account")
		return
	}
	httpjson.Write(w, http.StatusOK, models.ToAccountResponse(found))
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListAccounts(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		h.writeError(w, r, err, "list accounts")
		return
	}
	out := make([]models.AccountResponse, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, models.ToAccountResponse(account))
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) handleAccountState(w http.ResponseWriter, r *http.Request) {
	account, err := h.parseAccountParam(w, r)
	if err != nil {
		return
	}
	snap, freshness, err := h.svc.AccountState(r.Context(), account)
	if err != nil {
		h.writeError(w, r, err, "account state")
		return
	}
	httpjson.Write(w, http.StatusOK, models.ToStateResponse(snap, freshness))
}

func (h *Handler) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	account, err := h.parseAccountParam(w, r)
	if err != nil {
		return
	}
	var req models.GrantRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	role, err := id.ParseRoleKind(req.Role)
	if err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid role"))
		return
	}
	if err := h.svc.GrantRole(r.Context(), account, role, id.Address(req.Holder)); err != nil {
		h.writeError(w, r, err, "grant role")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	account, err := h.parseAccountParam(w, r)
	if err != nil {
		return
	}
	role, err := id.ParseRoleKind(chi.URLParam(r, "role"))
	if err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid role"))
		return
	}
	if err := h.svc.RevokeRole(r.Context(), account, role); err != nil {
		h.writeError(w, r, err, "revoke role")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseAccountParam(w http.ResponseWriter, r *http.Request) (id.AccountID, error) {
	account, err := id.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
		return id.AccountID{}, err
	}
	return account, nil
}

func (h *Handler) toOperationResponses(ops []*models.PendingOperation) []models.OperationResponse {
	now := time.Now()
	out := make([]models.OperationResponse, 0, len(ops))
	for _, op := range ops {
		out = append(out, models.ToOperationResponse(op, h.staleAfter, now))
	}
	return out
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	ctx := r.Context()
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "request failed",
			"action", action,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, "request rejected",
			"action", action,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httpjson.WriteError(w, err)
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
