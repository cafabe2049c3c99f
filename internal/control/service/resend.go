package service

import (
	"context"
	"errors"
	"log/slog"

	"vaultbridge/internal/control/models"
	"vaultbridge/internal/control/ws"
	"vaultbridge/internal/relay/codec"
	id "vaultbridge/pkg/domain"
	dErrors "vaultbridge/pkg/domain-errors"
	"vaultbridge/pkg/platform/audit"
	"vaultbridge/pkg/platform/sentinel"
	"vaultbridge/pkg/requestcontext"
)

// Resend re-submits a stale unconfirmed operation under a brand-new message
// ID. The original row is marked abandoned for bookkeeping; if its
// confirmation eventually arrives it still lands, and the execution-domain
// dedup set decides whether the duplicate actually executes.
func (s *Service) Resend(ctx context.Context, msgID id.MessageID) (*models.PendingOperation, error) {
	if !requestcontext.IsAdmin(ctx) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "resend requires an administrator")
	}

	old, err := s.pending.Get(ctx, msgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no pending operation for message id")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load pending operation")
	}

	now := requestcontext.Now(ctx)
	if old.Confirmed {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "operation already confirmed")
	}
	if !old.IsStale(s.staleAfter, now) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "operation is not stale yet")
	}

	op := codec.Operation{
		Kind:      old.Kind,
		Account:   old.Account,
		Strategy:  old.Strategy,
		Amount:    old.Amount,
		Shares:    old.Shares,
		Recipient: old.Recipient,
	}
	payload, err := codec.EncodeOperation(op)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode operation")
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	newMsgID, err := s.relay.Send(sendCtx, id.DomainExecution, payload, op.Kind.Priority())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "relay did not accept the resend")
	}

	row := &models.PendingOperation{
		MessageID: newMsgID,
		Account:   old.Account,
		Kind:      old.Kind,
		Strategy:  old.Strategy,
		Amount:    old.Amount,
		Shares:    old.Shares,
		Recipient: old.Recipient,
		Priority:  old.Kind.Priority(),
		CreatedAt: now,
	}
	if err := s.pending.Record(ctx, row); err != nil {
		s.logger.Error("pending record failed for accepted resend",
			slog.String("message_id", newMsgID.String()),
			slog.String("error", err.Error()),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resend sent but not recorded")
	}

	if err := s.pending.MarkAbandoned(ctx, old.MessageID, now); err != nil {
		// The old row may have been confirmed in the meantime; that is
		// fine, the new row stands on its own.
		s.logger.Warn("could not mark original operation abandoned",
			slog.String("message_id", old.MessageID.String()),
			slog.String("error", err.Error()),
		)
	}

	s.metrics.IncrementInitiated(string(op.Kind))
	s.emitAudit(ctx, audit.Event{
		Account:   old.Account,
		Actor:     requestcontext.Actor(ctx),
		Action:    string(audit.EventOperationResent),
		MessageID: newMsgID,
		Kind:      old.Kind,
		Detail:    "replaces " + old.MessageID.String(),
	})
	s.publishStatus(ws.StatusUpdate{
		MessageID: newMsgID.String(),
		Account:   old.Account.String(),
		Kind:      string(old.Kind),
		Status:    models.StatusPending,
		At:        now,
	})
	return row, nil
}

// Abandon flags a pending operation without resending it. Bookkeeping only;
// a late confirmation is still honored.
func (s *Service) Abandon(ctx context.Context, msgID id.MessageID) error {
	if !requestcontext.IsAdmin(ctx) {
		return dErrors.New(dErrors.CodeUnauthorized, "abandon requires an administrator")
	}

	now := requestcontext.Now(ctx)
	if err := s.pending.MarkAbandoned(ctx, msgID, now); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "no pending operation for message id")
		case errors.Is(err, sentinel.ErrInvalidState):
			return dErrors.New(dErrors.CodeInvariantViolation, "operation already confirmed")
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "mark abandoned")
		}
	}

	op, err := s.pending.Get(ctx, msgID)
	if err == nil {
		s.emitAudit(ctx, audit.Event{
			Account:   op.Account,
			Actor:     requestcontext.Actor(ctx),
			Action:    string(audit.EventOperationAbandoned),
			MessageID: msgID,
			Kind:      op.Kind,
		})
	}
	return nil
}
