//go:build integration

package pending_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vaultbridge/internal/control/models"
	"vaultbridge/internal/control/store/pending"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
	"vaultbridge/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *pending.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.postgres.Exec(s.T(), pending.Schema)
	s.store = pending.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.postgres.Exec(s.T(), "TRUNCATE pending_operations")
}

func (s *PostgresStoreSuite) record(msgID string, createdAt time.Time) *models.PendingOperation {
	op := &models.PendingOperation{
		MessageID: id.MessageID(msgID),
		Account:   id.NewAccountID(),
		Kind:      id.OpDeposit,
		Strategy:  "strat-1",
		Amount:    100,
		Priority:  id.PriorityStandard,
		CreatedAt: createdAt,
	}
	s.Require().NoError(s.store.Record(context.Background(), op))
	return op
}

func (s *PostgresStoreSuite) TestRecordAndGet() {
	op := s.record("msg-1", time.Now().UTC())

	got, err := s.store.Get(context.Background(), op.MessageID)
	s.Require().NoError(err)
	s.Equal(op.Account, got.Account)
	s.Equal(int64(100), got.Amount)
	s.Equal(models.StatusPending, got.Status())
}

func (s *PostgresStoreSuite) TestDuplicateMessageIDConflicts() {
	op := s.record("msg-1", time.Now().UTC())
	err := s.store.Record(context.Background(), op)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestConfirmIdempotent() {
	ctx := context.Background()
	s.record("msg-1", time.Now().UTC())

	first, err := s.store.Confirm(ctx, "msg-1", true, "", time.Now().UTC())
	s.Require().NoError(err)
	s.False(first.AlreadyConfirmed)

	second, err := s.store.Confirm(ctx, "msg-1", false, "late", time.Now().UTC())
	s.Require().NoError(err)
	s.True(second.AlreadyConfirmed)
	s.Equal(models.StatusConfirmedSuccess, second.Op.Status())
}

func (s *PostgresStoreSuite) TestConfirmUnknownMessage() {
	_, err := s.store.Confirm(context.Background(), "never-sent", true, "", time.Now().UTC())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListStaleExcludesConfirmedAndAbandoned() {
	ctx := context.Background()
	now := time.Now().UTC()

	s.record("stale", now.Add(-2*time.Hour))
	s.record("confirmed", now.Add(-2*time.Hour))
	s.record("abandoned", now.Add(-2*time.Hour))
	s.record("fresh", now)

	_, err := s.store.Confirm(ctx, "confirmed", true, "", now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.MarkAbandoned(ctx, "abandoned", now))

	stale, err := s.store.ListStale(ctx, time.Hour, now)
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.Equal(id.MessageID("stale"), stale[0].MessageID)
}
