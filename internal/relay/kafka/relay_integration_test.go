//go:build integration

package kafka

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultbridge/internal/relay"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/testutil/containers"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	broker := containers.NewRedpandaContainer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	require.NoError(t, EnsureTopics(ctx, broker.Brokers, "roundtrip"))

	client, err := NewClient(broker.Brokers, "roundtrip", id.DomainControl, "0xcontrol")
	require.NoError(t, err)
	defer client.Close()

	var (
		mu       sync.Mutex
		received []relay.Envelope
	)
	receiver, err := NewReceiver(broker.Brokers, "roundtrip", "roundtrip-group",
		id.DomainExecution,
		func(_ context.Context, env relay.Envelope) error {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, env)
			return nil
		}, logger)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- receiver.Run(runCtx) }()

	messageID, err := client.Send(ctx, id.DomainExecution, []byte(`{"kind":"deposit"}`), id.PriorityHigh)
	require.NoError(t, err)
	require.False(t, messageID.IsNil())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 30*time.Second, 100*time.Millisecond)

	mu.Lock()
	env := received[0]
	mu.Unlock()

	assert.Equal(t, messageID, env.MessageID)
	assert.Equal(t, id.DomainControl, env.OriginDomain)
	assert.Equal(t, id.Address("0xcontrol"), env.OriginAddress)
	assert.Equal(t, id.DomainExecution, env.Destination)
	assert.Equal(t, id.PriorityHigh, env.Priority)
	assert.JSONEq(t, `{"kind":"deposit"}`, string(env.Payload))
	assert.False(t, env.SentAt.IsZero())

	cancel()
	select {
	case err := <-done:
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("receiver did not stop after cancel")
	}
}

func TestHandlerErrorCausesRedelivery(t *testing.T) {
	broker := containers.NewRedpandaContainer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	require.NoError(t, EnsureTopics(ctx, broker.Brokers, "redelivery"))

	client, err := NewClient(broker.Brokers, "redelivery", id.DomainControl, "0xcontrol")
	require.NoError(t, err)
	defer client.Close()

	var (
		mu       sync.Mutex
		attempts int
	)
	fail := func(_ context.Context, _ relay.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return assert.AnError
		}
		return nil
	}

	_, err = client.Send(ctx, id.DomainExecution, []byte("payload"), id.PriorityStandard)
	require.NoError(t, err)

	// First receiver run fails the handler, so the offset is not
	// committed and a later run sees the message again.
	runOnce := func() {
		receiver, err := NewReceiver(broker.Brokers, "redelivery", "redelivery-group",
			id.DomainExecution, fail, logger)
		require.NoError(t, err)

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- receiver.Run(runCtx) }()

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return attempts >= 1
		}, 30*time.Second, 100*time.Millisecond)
		cancel()
		<-done
	}

	runOnce()
	runOnce()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, attempts, 2, "uncommitted message must be delivered again")
}
