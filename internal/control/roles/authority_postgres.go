package roles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/sentinel"
)

// PostgresAuthority persists role assignments. Grant is an upsert keyed on
// (account, role) so replacement never races an insert.
type PostgresAuthority struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresAuthority {
	return &PostgresAuthority{db: db}
}

const Schema = `
CREATE TABLE IF NOT EXISTS role_assignments (
	account    UUID NOT NULL,
	role       TEXT NOT NULL,
	holder     TEXT NOT NULL,
	granted_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (account, role)
);
`

func (a *PostgresAuthority) Grant(ctx context.Context, assignment id.RoleAssignment) error {
	query := `
		INSERT INTO role_assignments (account, role, holder, granted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account, role) DO UPDATE SET holder = $3, granted_at = $4
	`
	_, err := a.db.ExecContext(ctx, query,
		assignment.Account.String(), string(assignment.Role),
		assignment.Holder.String(), assignment.GrantedAt,
	)
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

func (a *PostgresAuthority) Revoke(ctx context.Context, account id.AccountID, role id.RoleKind) error {
	res, err := a.db.ExecContext(ctx,
		`DELETE FROM role_assignments WHERE account = $1 AND role = $2`,
		account.String(), string(role),
	)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (a *PostgresAuthority) HolderOf(ctx context.Context, account id.AccountID, role id.RoleKind) (id.Address, error) {
	var holder string
	err := a.db.QueryRowContext(ctx,
		`SELECT holder FROM role_assignments WHERE account = $1 AND role = $2`,
		account.String(), string(role),
	).Scan(&holder)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("holder of role: %w", err)
	}
	return id.Address(holder), nil
}

func (a *PostgresAuthority) Snapshot(ctx context.Context) ([]id.RoleAssignment, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT account, role, holder, granted_at FROM role_assignments ORDER BY account, role`,
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot roles: %w", err)
	}
	defer rows.Close()

	var out []id.RoleAssignment
	for rows.Next() {
		var (
			assignment id.RoleAssignment
			rawAccount string
			rawRole    string
			rawHolder  string
		)
		if err := rows.Scan(&rawAccount, &rawRole, &rawHolder, &assignment.GrantedAt); err != nil {
			return nil, fmt.Errorf("snapshot roles: %w", err)
		}
		assignment.Account, err = id.ParseAccountID(rawAccount)
		if err != nil {
			return nil, fmt.Errorf("snapshot roles: %w", err)
		}
		assignment.Role, err = id.ParseRoleKind(rawRole)
		if err != nil {
			return nil, fmt.Errorf("snapshot roles: %w", err)
		}
		assignment.Holder = id.Address(rawHolder)
		out = append(out, assignment)
	}
	return out, rows.Err()
}
