package mirror

import (
	"context"
	"log/slog"
	"time"

	"vaultbridge/internal/execution/metrics"
)

// DefaultSyncInterval is how often the syncer refreshes the mirror.
const DefaultSyncInterval = time.Minute

// Syncer refreshes the mirror from the authoritative role source on a
// fixed cadence. A failed pull leaves the previous snapshot in place; the
// mirror's own trust window bounds how long that can go on.
type Syncer struct {
	mirror   *Mirror
	source   RoleSource
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type SyncerOption func(*Syncer)

func WithSyncInterval(d time.Duration) SyncerOption {
	return func(s *Syncer) { s.interval = d }
}

func WithMetrics(m *metrics.Metrics) SyncerOption {
	return func(s *Syncer) { s.metrics = m }
}

func NewSyncer(mirror *Mirror, source RoleSource, logger *slog.Logger, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		mirror:   mirror,
		source:   source,
		interval: DefaultSyncInterval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run syncs immediately, then on every tick until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	if err := s.SyncOnce(ctx); err != nil {
		s.logger.Error("initial mirror sync failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				s.logger.Error("mirror sync failed", "error", err)
			}
		}
	}
}

// SyncOnce pulls one snapshot and installs it.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	assignments, err := s.source.Snapshot(ctx)
	if err != nil {
		s.metrics.IncrementMirrorSyncError()
		return err
	}

	now := time.Now().UTC()
	s.mirror.Sync(assignments, now)
	s.metrics.SetMirrorAge(0)
	s.logger.Debug("authorization mirror synced", "assignments", len(assignments))
	return nil
}
