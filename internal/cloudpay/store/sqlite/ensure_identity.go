package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
)

// ensureIdentity guarantees an identities row exists for ref.  New rows start
// active; deactivation is the directory owner's call.
//
// Must be called inside an existing transaction.
func ensureIdentity(ctx context.Context, tx *sql.Tx, ref store.IdentityRef, nowMs int64) error {
	if ref.ID == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO identities(
  identity_kind, identity_id, active, created_at_ms, updated_at_ms
) VALUES (?, ?, 1, ?, ?);
`, string(ref.Kind), ref.ID, nowMs, nowMs); err != nil {
		return fmt.Errorf("ensureIdentity %s: %w", ref, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func msToTime(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
