package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"vaultbridge/internal/control/models"
	"vaultbridge/internal/relay/codec"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/audit"
	"vaultbridge/pkg/requestcontext"
)

// Reconciler periodically requests fresh state for every active account and
// samples the stale-pending gauge. It is the only initiator of batch state
// sync; no external actor can trigger one.
type Reconciler struct {
	svc       *Service
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewReconciler(svc *Service, interval time.Duration, batchSize int, logger *slog.Logger) *Reconciler {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Reconciler{svc: svc, interval: interval, batchSize: batchSize, logger: logger}
}

// Run sweeps on a fixed cadence until the context is cancelled. A sweep
// failure is logged and the next tick retries; the loop never dies.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("reconcile sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs one full sweep: stale-pending sampling followed by batch
// state-sync requests for all active accounts.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	now := requestcontext.Now(ctx)

	stale, err := r.svc.pending.ListStale(ctx, r.svc.staleAfter, now)
	if err != nil {
		return err
	}
	r.svc.metrics.SetStalePending(len(stale))

	active, err := r.svc.accounts.List(ctx, true)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return nil
	}

	ids := make([]id.AccountID, len(active))
	for i, account := range active {
		ids[i] = account.ID
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(ids); start += r.batchSize {
		end := min(start+r.batchSize, len(ids))
		chunk := ids[start:end]
		g.Go(func() error {
			_, err := r.svc.Initiate(gctx, codec.Operation{
				Kind:     id.OpBatchStateSync,
				Accounts: chunk,
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.svc.emitAudit(ctx, audit.Event{
		Action: string(audit.EventBatchSyncStarted),
		Detail: "accounts=" + strconv.Itoa(len(ids)),
	})
	r.logger.Info("batch state sync requested",
		slog.Int("accounts", len(ids)),
		slog.Int("stale_pending", len(stale)),
	)
	return nil
}

// StalePending lists unconfirmed operations past the staleness threshold.
// Backs the operator "stale, retry?" view.
func (s *Service) StalePending(ctx context.Context) ([]*models.PendingOperation, error) {
	ops, err := s.pending.ListStale(ctx, s.staleAfter, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	s.metrics.SetStalePending(len(ops))
	return ops, nil
}
