package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vaultbridge/internal/relay"
	"vaultbridge/internal/relay/codec"
	id "vaultbridge/pkg/domain"
	dErrors "vaultbridge/pkg/domain-errors"
	"vaultbridge/pkg/platform/sentinel"
)

// OnDelivery processes one relay delivery. Returning an error tells the
// relay the delivery was not consumed and it will come again; everything
// consumed here must therefore already be safe against redelivery.
func (d *Dispatcher) OnDelivery(ctx context.Context, env relay.Envelope) error {
	ctx, span := d.tracer.Start(ctx, "execution.deliver",
		trace.WithAttributes(attribute.String("message_id", env.MessageID.String())),
	)
	defer span.End()

	if !d.trustedOrigin(env) {
		d.metrics.IncrementProvenanceDrop()
		d.logger.Warn("dropped delivery with untrusted origin",
			"messageId", env.MessageID,
			"originDomain", env.OriginDomain,
			"originAddress", env.OriginAddress,
		)
		return nil
	}

	// Concurrent deliveries of the same message must not both miss the
	// dedup lookup and execute; the lookup, the handler, and the dedup
	// record run under a per-message lock.
	lock := d.inflight.acquire(env.MessageID)
	defer d.inflight.release(env.MessageID, lock)

	// Redelivery of an already-processed message re-sends the recorded
	// confirmation instead of executing again.
	if cached, err := d.delivered.Lookup(ctx, env.MessageID); err == nil {
		d.metrics.IncrementDedupReplay()
		d.logger.Info("redelivery answered from dedup record", "messageId", env.MessageID)
		return d.emit(ctx, cached, env.Priority)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("dedup lookup for %s: %w", env.MessageID, err)
	}

	op, err := codec.DecodeOperation(env.Payload)
	if err != nil {
		// The payload will never decode differently on redelivery, so
		// confirm the failure instead of bouncing the message.
		d.logger.Warn("undecodable operation payload", "messageId", env.MessageID, "error", err)
		return d.finish(ctx, env, codec.Confirmation{
			OriginalMessageID: env.MessageID,
			Success:           false,
			ErrorCode:         string(dErrors.CodeBadRequest),
		})
	}

	span.SetAttributes(attribute.String("kind", string(op.Kind)))

	conf := d.execute(ctx, env.MessageID, op)
	outcome := "success"
	if !conf.Success {
		outcome = "failure"
		d.metrics.IncrementHandlerFailure(string(op.Kind), conf.ErrorCode)
	}
	d.metrics.IncrementDelivery(string(op.Kind), outcome)

	return d.finish(ctx, env, conf)
}

func (d *Dispatcher) trustedOrigin(env relay.Envelope) bool {
	if env.OriginDomain != id.DomainControl {
		return false
	}
	if !d.expectedOrigin.IsNil() && env.OriginAddress != d.expectedOrigin {
		return false
	}
	return true
}

// execute runs the handler for the operation kind and always returns a
// confirmation, successful or not.
func (d *Dispatcher) execute(ctx context.Context, messageID id.MessageID, op codec.Operation) codec.Confirmation {
	conf := codec.Confirmation{
		OriginalMessageID: messageID,
		Kind:              op.Kind,
		Account:           op.Account,
	}

	var (
		result    string
		snapshots []codec.Snapshot
		err       error
	)
	switch op.Kind {
	case id.OpDeposit:
		result, snapshots, err = d.handleDeposit(ctx, op)
	case id.OpWithdraw:
		result, snapshots, err = d.handleWithdraw(ctx, op)
	case id.OpEmergencyWithdraw:
		result, snapshots, err = d.handleEmergencyWithdraw(ctx, op)
	case id.OpBatchStateSync:
		result, snapshots, err = d.handleBatchStateSync(ctx, op)
	default:
		err = dErrors.Newf(dErrors.CodeBadRequest, "unknown operation kind %q", op.Kind)
	}

	if err != nil {
		conf.Success = false
		conf.ErrorCode = string(dErrors.CodeOf(err))
		conf.Result = err.Error()
		d.logger.Warn("operation failed",
			"messageId", messageID,
			"kind", op.Kind,
			"account", op.Account,
			"error", err,
		)
		return conf
	}

	conf.Success = true
	conf.Result = result
	conf.Snapshots = snapshots
	d.logger.Info("operation executed",
		"messageId", messageID,
		"kind", op.Kind,
		"account", op.Account,
	)
	return conf
}

// finish records the confirmation in the dedup store, then emits it. The
// record happens first: once execution has mutated state, a redelivery
// must replay this confirmation rather than execute again, even if the
// emit below fails and the relay redelivers.
func (d *Dispatcher) finish(ctx context.Context, env relay.Envelope, conf codec.Confirmation) error {
	payload, err := codec.EncodeConfirmation(conf)
	if err != nil {
		return fmt.Errorf("encode confirmation for %s: %w", env.MessageID, err)
	}

	if err := d.delivered.Record(ctx, env.MessageID, payload); err != nil {
		return fmt.Errorf("record delivery %s: %w", env.MessageID, err)
	}

	return d.emit(ctx, payload, env.Priority)
}

func (d *Dispatcher) emit(ctx context.Context, payload []byte, priority id.Priority) error {
	if _, err := d.client.Send(ctx, id.DomainControl, payload, priority); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	return nil
}

// snapshotFor aggregates the account's positions into one wire snapshot.
// Values are priced through the backend; the source timestamp is the
// moment of computation, which is what the control cache orders by.
// found reports whether the account has any position rows at all.
func (d *Dispatcher) snapshotFor(ctx context.Context, account id.AccountID) (snap codec.Snapshot, found bool, err error) {
	positions, err := d.positions.ListByAccount(ctx, account)
	if err != nil {
		return codec.Snapshot{}, false, fmt.Errorf("list positions for %s: %w", account, err)
	}

	var shares, value, deposited int64
	for _, pos := range positions {
		if pos.Shares == 0 {
			continue
		}
		v, err := d.callBackend(ctx, "value_of", func(ctx context.Context) (int64, error) {
			return d.backend.ValueOf(ctx, pos.Strategy, pos.Shares)
		})
		if err != nil {
			return codec.Snapshot{}, false, err
		}
		shares += pos.Shares
		value += v
		deposited += pos.DepositedValue
	}

	var rewards int64
	if value > deposited {
		rewards = value - deposited
	}

	return codec.Snapshot{
		Account:         account,
		Shares:          shares,
		Value:           value,
		PendingRewards:  rewards,
		SourceTimestamp: time.Now().UTC(),
	}, len(positions) > 0, nil
}
