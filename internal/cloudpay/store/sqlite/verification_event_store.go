package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	dbpkg "github.com/protega/cloudpay/server/internal/db"
)

type VerificationEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewVerificationEventStore(db *sql.DB, writer *dbpkg.Worker) *VerificationEventStore {
	return &VerificationEventStore{db: db, writer: writer}
}

func (s *VerificationEventStore) RecordEvent(ctx context.Context, rec store.VerificationEventRecord) error {
	if rec.AttemptedAt.IsZero() {
		rec.AttemptedAt = time.Now().UTC()
	}

	var matched int
	if rec.Matched {
		matched = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO verification_events(
  digest_prefix, record_id, customer_id, user_id,
  matched, reason, attempted_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?);
`,
			rec.DigestPrefix, nullString(rec.RecordID),
			nullString(rec.CustomerID), nullString(rec.UserID),
			matched, rec.Reason, rec.AttemptedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}
		return nil
	})
}
