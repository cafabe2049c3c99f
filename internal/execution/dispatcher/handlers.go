package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vaultbridge/internal/execution/models"
	"vaultbridge/internal/relay/codec"
	id "vaultbridge/pkg/domain"
	dErrors "vaultbridge/pkg/domain-errors"
	"vaultbridge/pkg/platform/sentinel"
)

func (d *Dispatcher) handleDeposit(ctx context.Context, op codec.Operation) (string, []codec.Snapshot, error) {
	var result string
	err := d.withAccountLock(op.Account, func() error {
		strategy, err := d.strategies.Get(ctx, op.Strategy)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "unknown strategy %q", op.Strategy)
			}
			return err
		}
		if err := strategy.CanDeposit(op.Amount); err != nil {
			return err
		}

		shares, err := d.callBackend(ctx, "deposit", func(ctx context.Context) (int64, error) {
			return d.backend.Deposit(ctx, op.Strategy, op.Amount)
		})
		if err != nil {
			return err
		}

		// The venue holds the funds now. A failure past this point is a
		// partial failure that must alert, not retry.
		now := time.Now().UTC()
		if _, err := d.positions.Execute(ctx, op.Account, op.Strategy, func(pos *models.Position) error {
			pos.ApplyDeposit(shares, op.Amount, now)
			return nil
		}); err != nil {
			d.alarmPartialFailure(op, "deposit", err)
			return dErrors.New(dErrors.CodeInternal, "deposit accepted by venue but position update failed")
		}

		result = fmt.Sprintf("minted %d shares", shares)
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return result, d.trySnapshot(ctx, op.Account), nil
}

func (d *Dispatcher) handleWithdraw(ctx context.Context, op codec.Operation) (string, []codec.Snapshot, error) {
	var result string
	err := d.withAccountLock(op.Account, func() error {
		positions, err := d.positions.ListByAccount(ctx, op.Account)
		if err != nil {
			return err
		}

		var held int64
		for _, pos := range positions {
			held += pos.Shares
		}
		if op.Shares > held {
			return dErrors.Newf(dErrors.CodeInvariantViolation,
				"withdrawal of %d shares exceeds held %d", op.Shares, held)
		}

		// Redeem across positions oldest strategy first until covered.
		var proceeds int64
		remaining := op.Shares
		now := time.Now().UTC()
		for _, pos := range positions {
			if remaining == 0 {
				break
			}
			take := min(remaining, pos.Shares)
			if take == 0 {
				continue
			}

			assets, err := d.callBackend(ctx, "redeem", func(ctx context.Context) (int64, error) {
				return d.backend.Redeem(ctx, pos.Strategy, take)
			})
			if err != nil {
				return err
			}

			if _, err := d.positions.Execute(ctx, op.Account, pos.Strategy, func(p *models.Position) error {
				if err := p.CanRedeem(take); err != nil {
					return err
				}
				p.ApplyRedeem(take, now)
				return nil
			}); err != nil {
				d.alarmPartialFailure(op, "withdraw", err)
				return dErrors.New(dErrors.CodeInternal, "venue redeemed but position update failed")
			}

			proceeds += assets
			remaining -= take
		}

		result = fmt.Sprintf("redeemed %d shares for %d assets to %s", op.Shares, proceeds, op.Recipient)
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return result, d.trySnapshot(ctx, op.Account), nil
}

func (d *Dispatcher) handleEmergencyWithdraw(ctx context.Context, op codec.Operation) (string, []codec.Snapshot, error) {
	// The control domain already checked the Guardian role at initiation,
	// but that check crossed an asynchronous boundary. Re-verify against
	// the local mirror and fail closed when it cannot answer.
	if _, err := d.mirror.HolderOf(op.Account, id.RoleGuardian, time.Now()); err != nil {
		return "", nil, err
	}

	var result string
	err := d.withAccountLock(op.Account, func() error {
		positions, err := d.positions.ListByAccount(ctx, op.Account)
		if err != nil {
			return err
		}

		var redeemed, proceeds int64
		now := time.Now().UTC()
		for _, pos := range positions {
			if pos.Shares == 0 {
				continue
			}
			take := pos.Shares

			assets, err := d.callBackend(ctx, "redeem", func(ctx context.Context) (int64, error) {
				return d.backend.Redeem(ctx, pos.Strategy, take)
			})
			if err != nil {
				return err
			}

			if _, err := d.positions.Execute(ctx, op.Account, pos.Strategy, func(p *models.Position) error {
				if err := p.CanRedeem(take); err != nil {
					return err
				}
				p.ApplyRedeem(take, now)
				return nil
			}); err != nil {
				d.alarmPartialFailure(op, "emergency_withdraw", err)
				return dErrors.New(dErrors.CodeInternal, "venue redeemed but position update failed")
			}

			redeemed += take
			proceeds += assets
		}

		result = fmt.Sprintf("liquidated %d shares for %d assets to %s", redeemed, proceeds, op.Recipient)
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return result, d.trySnapshot(ctx, op.Account), nil
}

// handleBatchStateSync computes a snapshot per requested account without
// mutating any position. Accounts with no position rows are skipped; the
// sync covers existing positions only. One account's failure does not
// poison the rest.
func (d *Dispatcher) handleBatchStateSync(ctx context.Context, op codec.Operation) (string, []codec.Snapshot, error) {
	snapshots := make([]codec.Snapshot, 0, len(op.Accounts))
	failed := 0
	for _, account := range op.Accounts {
		snap, found, err := d.snapshotFor(ctx, account)
		if err != nil {
			failed++
			d.logger.Warn("state sync failed for account", "account", account, "error", err)
			continue
		}
		if !found {
			continue
		}
		snapshots = append(snapshots, snap)
	}

	if len(snapshots) == 0 && failed > 0 {
		return "", nil, dErrors.New(dErrors.CodeUnavailable, "state sync failed for every account")
	}
	return fmt.Sprintf("synced %d accounts, %d failed", len(snapshots), failed), snapshots, nil
}

// trySnapshot builds the post-operation snapshot. The operation itself has
// already succeeded, so a snapshot failure is logged and swallowed; the
// next reconciliation sweep will cover the gap.
func (d *Dispatcher) trySnapshot(ctx context.Context, account id.AccountID) []codec.Snapshot {
	snap, _, err := d.snapshotFor(ctx, account)
	if err != nil {
		d.logger.Warn("post-operation snapshot failed", "account", account, "error", err)
		return nil
	}
	return []codec.Snapshot{snap}
}

func (d *Dispatcher) alarmPartialFailure(op codec.Operation, stage string, err error) {
	d.metrics.IncrementPartialFailure()
	d.logger.Error("PARTIAL FAILURE: external venue call succeeded but local state did not follow",
		"stage", stage,
		"kind", op.Kind,
		"account", op.Account,
		"strategy", op.Strategy,
		"error", err,
	)
}
