package postgres

import (
	"context"
	"database/sql"
	"fmt"

	id "vaultbridge/pkg/domain"
	audit "vaultbridge/pkg/platform/audit"
)

// Store persists audit events. Rows are insert-only; there is no update or
// delete path.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	seq        BIGSERIAL PRIMARY KEY,
	category   TEXT NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	account    UUID,
	actor      TEXT NOT NULL DEFAULT '',
	action     TEXT NOT NULL,
	message_id TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_events_account_idx ON audit_events (account, ts DESC);
`

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (category, ts, account, actor, action, message_id, kind, detail, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var account any
	if !event.Account.IsNil() {
		account = event.Account.String()
	}
	_, err := s.db.ExecContext(ctx, query,
		string(event.Category), event.Timestamp, account, event.Actor.String(),
		event.Action, event.MessageID.String(), string(event.Kind),
		event.Detail, event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByAccount(ctx context.Context, account id.AccountID) ([]audit.Event, error) {
	query := `
		SELECT category, ts, account, actor, action, message_id, kind, detail, request_id
		FROM audit_events WHERE account = $1 ORDER BY seq
	`
	rows, err := s.db.QueryContext(ctx, query, account.String())
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT category, ts, account, actor, action, message_id, kind, detail, request_id
		FROM audit_events ORDER BY seq DESC LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent audit events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]audit.Event, error) {
	var out []audit.Event
	for rows.Next() {
		var (
			event      audit.Event
			category   string
			rawAccount sql.NullString
			actor      string
			messageID  string
			kind       string
		)
		err := rows.Scan(&category, &event.Timestamp, &rawAccount, &actor,
			&event.Action, &messageID, &kind, &event.Detail, &event.RequestID)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Actor = id.Address(actor)
		event.MessageID = id.MessageID(messageID)
		event.Kind = id.OperationKind(kind)
		if rawAccount.Valid {
			account, err := id.ParseAccountID(rawAccount.String)
			if err != nil {
				return nil, fmt.Errorf("scan audit event: %w", err)
			}
			event.Account = account
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
