package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"vaultbridge/internal/control/models"
	"vaultbridge/internal/control/ws"
	"vaultbridge/internal/relay/codec"
	id "vaultbridge/pkg/domain"
	dErrors "vaultbridge/pkg/domain-errors"
	"vaultbridge/pkg/platform/audit"
	"vaultbridge/pkg/platform/sentinel"
	"vaultbridge/pkg/requestcontext"
)

// Initiate validates and authorizes an operation, hands it to the relay,
// and records the pending ledger row. The ledger write happens after the
// relay accepts the payload; a write failure at that point leaves an
// untracked in-flight message, which is logged as such.
func (s *Service) Initiate(ctx context.Context, op codec.Operation) (*models.PendingOperation, error) {
	ctx, span := s.tracer.Start(ctx, "control.initiate")
	defer span.End()
	span.SetAttributes(attribute.String("operation.kind", string(op.Kind)))

	if err := op.Validate(); err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, err.Error())
	}
	if err := s.checkAccount(ctx, op); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, op); err != nil {
		span.SetStatus(codes.Error, "authorization failed")
		return nil, err
	}

	payload, err := codec.EncodeOperation(op)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode operation")
	}

	// The relay hand-off is the only synchronous step; everything after
	// acceptance is asynchronous and survives a control-domain restart.
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	msgID, err := s.relay.Send(sendCtx, id.DomainExecution, payload, op.Kind.Priority())
	if err != nil {
		span.SetStatus(codes.Error, "relay send failed")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "relay did not accept the operation")
	}
	span.SetAttributes(attribute.String("relay.message_id", msgID.String()))

	now := requestcontext.Now(ctx)
	row := &models.PendingOperation{
		MessageID: msgID,
		Account:   op.Account,
		Kind:      op.Kind,
		Strategy:  op.Strategy,
		Amount:    op.Amount,
		Shares:    op.Shares,
		Recipient: op.Recipient,
		Priority:  op.Kind.Priority(),
		CreatedAt: now,
	}
	if err := s.pending.Record(ctx, row); err != nil {
		// The message is already in flight and cannot be retracted. The
		// confirmation will arrive for a ledger row that does not exist.
		s.logger.Error("pending record failed for accepted message",
			slog.String("message_id", msgID.String()),
			slog.String("kind", string(op.Kind)),
			slog.String("error", err.Error()),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "operation sent but not recorded")
	}

	s.metrics.IncrementInitiated(string(op.Kind))
	s.emitAudit(ctx, audit.Event{
		Account:   op.Account,
		Actor:     requestcontext.Actor(ctx),
		Action:    string(audit.EventOperationInitiated),
		MessageID: msgID,
		Kind:      op.Kind,
	})
	s.publishStatus(ws.StatusUpdate{
		MessageID: msgID.String(),
		Account:   op.Account.String(),
		Kind:      string(op.Kind),
		Status:    models.StatusPending,
		At:        now,
	})

	s.logger.Info("operation initiated",
		slog.String("message_id", msgID.String()),
		slog.String("kind", string(op.Kind)),
		slog.String("account", op.Account.String()),
	)
	return row, nil
}

// checkAccount rejects operations against unknown or deactivated accounts.
// Batch sync targets are validated by the reconciler that selects them.
func (s *Service) checkAccount(ctx context.Context, op codec.Operation) error {
	if op.Kind == id.OpBatchStateSync {
		return nil
	}
	account, err := s.accounts.Get(ctx, op.Account)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "account not registered")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load account")
	}
	if !account.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "account is deactivated")
	}
	return nil
}

// authorize re-derives the required role from the operation kind and checks
// the acting address against the authoritative assignment. Kinds without a
// required role are internal and carry no actor.
func (s *Service) authorize(ctx context.Context, op codec.Operation) error {
	role, required := op.Kind.RequiredRole()
	if !required {
		return nil
	}

	actor := requestcontext.Actor(ctx)
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "operation requires an authenticated actor")
	}

	holder, err := s.roles.HolderOf(ctx, op.Account, role)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeUnauthorized, "no "+string(role)+" assigned for account")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "resolve role holder")
	}
	if holder != actor {
		return dErrors.New(dErrors.CodeUnauthorized, "actor does not hold the "+string(role)+" role")
	}
	return nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.Warn("audit emit failed", slog.String("error", err.Error()))
	}
}
