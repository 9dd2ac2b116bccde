package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SeedDevOptions struct {
	// Customers are pre-registered as active so a fresh dev database can
	// enroll and authenticate them without a customer service.
	Customers []string
	Users     []string
}

// SeedDev inserts active identity rows.  Existing rows, including ones an
// operator deactivated, are left untouched.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	seed := func(kind string, ids []string) error {
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO identities(identity_kind, identity_id, active, created_at_ms, updated_at_ms)
VALUES (?, ?, 1, ?, ?);`, kind, id, now, now); err != nil {
				return fmt.Errorf("seed %s %s: %w", kind, id, err)
			}
		}
		return nil
	}

	if err := seed("customer", opt.Customers); err != nil {
		return err
	}
	return seed("user", opt.Users)
}
