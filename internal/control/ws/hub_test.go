package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultbridge/internal/control/models"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHubDeliversUpdatesToConnectedClient(t *testing.T) {
	hub := newTestHub(t)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return hub.clientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	sent := StatusUpdate{
		MessageID: "msg-42",
		Account:   "3f0c2c6a-1111-2222-3333-444455556666",
		Kind:      "deposit",
		Status:    models.StatusConfirmedSuccess,
		At:        time.Now().UTC(),
	}
	hub.Publish(sent)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var got StatusUpdate
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, sent.MessageID, got.MessageID)
	assert.Equal(t, sent.Status, got.Status)
	assert.Equal(t, sent.Kind, got.Kind)
}

func TestHubDropsUpdatesForSlowClient(t *testing.T) {
	hub := newTestHub(t)

	slow := &client{send: make(chan []byte, 1)}
	fast := &client{send: make(chan []byte, sendBufferSize)}
	hub.register <- slow
	hub.register <- fast

	require.Eventually(t, func() bool {
		return hub.clientCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	for i := 0; i < 10; i++ {
		hub.Publish(StatusUpdate{MessageID: "msg", Kind: "deposit", Status: models.StatusPending})
	}

	// The fast client receives every update even though the slow one's
	// buffer filled after the first.
	received := 0
	timeout := time.After(2 * time.Second)
	for received < 10 {
		select {
		case <-fast.send:
			received++
		case <-timeout:
			t.Fatalf("fast client received %d of 10 updates", received)
		}
	}
	assert.Len(t, slow.send, 1)
}

func TestPublishWithoutListenersDoesNotBlock(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.Publish(StatusUpdate{MessageID: "msg", Status: models.StatusPending})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked without a running hub")
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub := newTestHub(t)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}

	require.Eventually(t, func() bool {
		return hub.clientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.clientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
