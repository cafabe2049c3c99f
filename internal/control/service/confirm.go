package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vaultbridge/internal/control/models"
	"vaultbridge/internal/control/ws"
	"vaultbridge/internal/relay"
	"vaultbridge/internal/relay/codec"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/audit"
	"vaultbridge/pkg/platform/sentinel"
	"vaultbridge/pkg/requestcontext"
)

// ExpectedExecutionAddress pins the address confirmations must originate
// from. An empty address disables the check (in-process relay).
func WithExpectedExecutionAddress(addr id.Address) Option {
	return func(s *Service) { s.expectedExecAddr = addr }
}

// OnConfirmation is the relay handler for the control domain. It is safe
// under redelivery: the ledger confirm is idempotent and snapshot applies
// are monotonic, so processing the same envelope twice changes nothing.
func (s *Service) OnConfirmation(ctx context.Context, env relay.Envelope) error {
	ctx, span := s.tracer.Start(ctx, "control.confirm")
	defer span.End()

	if env.OriginDomain != id.DomainExecution ||
		(!s.expectedExecAddr.IsNil() && env.OriginAddress != s.expectedExecAddr) {
		// Wrong provenance is consumed without a trace to the sender.
		s.logger.Warn("dropping confirmation with unexpected provenance",
			slog.String("origin_domain", string(env.OriginDomain)),
			slog.String("origin_address", env.OriginAddress.String()),
		)
		return nil
	}

	conf, err := codec.DecodeConfirmation(env.Payload)
	if err != nil {
		// Redelivery cannot repair a malformed payload; consume it.
		s.logger.Error("malformed confirmation payload",
			slog.String("message_id", env.MessageID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}

	now := requestcontext.Now(ctx)
	result, err := s.pending.Confirm(ctx, conf.OriginalMessageID, conf.Success, conf.ErrorCode, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// No pending row matches: either the correlation ID is bogus
			// or the record write failed after the send was accepted.
			s.metrics.IncrementUnknownConfirmation()
			s.logger.Warn("confirmation for unknown operation",
				slog.String("original_message_id", conf.OriginalMessageID.String()),
			)
			return s.applySnapshots(ctx, conf.Snapshots, now)
		}
		return err
	}

	if result.AlreadyConfirmed {
		s.metrics.IncrementDuplicateConfirmation()
	} else {
		outcome := "success"
		if !conf.Success {
			outcome = "failure"
		}
		s.metrics.IncrementConfirmed(string(result.Op.Kind), outcome)
		s.metrics.ObserveConfirmLatency(string(result.Op.Kind), now.Sub(result.Op.CreatedAt))
		s.emitAudit(ctx, audit.Event{
			Account:   result.Op.Account,
			Action:    string(audit.EventOperationConfirmed),
			MessageID: result.Op.MessageID,
			Kind:      result.Op.Kind,
			Detail:    conf.ErrorCode,
		})
		s.publishStatus(ws.StatusUpdate{
			MessageID: result.Op.MessageID.String(),
			Account:   result.Op.Account.String(),
			Kind:      string(result.Op.Kind),
			Status:    result.Op.Status(),
			ErrorCode: conf.ErrorCode,
			At:        now,
		})
		s.logger.Info("operation confirmed",
			slog.String("message_id", result.Op.MessageID.String()),
			slog.String("kind", string(result.Op.Kind)),
			slog.Bool("success", conf.Success),
		)
	}

	return s.applySnapshots(ctx, conf.Snapshots, now)
}

// applySnapshots installs piggybacked state snapshots. Each apply is an
// independent monotonic compare-and-set; rejections are counted, never
// treated as errors.
func (s *Service) applySnapshots(ctx context.Context, snaps []codec.Snapshot, now time.Time) error {
	for _, snap := range snaps {
		applied, err := s.cache.Apply(ctx, &models.StateSnapshot{
			Account:         snap.Account,
			Shares:          snap.Shares,
			Value:           snap.Value,
			PendingRewards:  snap.PendingRewards,
			SourceTimestamp: snap.SourceTimestamp,
			ReceivedAt:      now,
		})
		if err != nil {
			return err
		}
		if !applied {
			s.metrics.IncrementSnapshotRejected()
			s.logger.Debug("snapshot rejected as stale",
				slog.String("account", snap.Account.String()),
				slog.Time("source_timestamp", snap.SourceTimestamp),
			)
		}
	}
	return nil
}
