package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	dbpkg "github.com/protega/cloudpay/server/internal/db"
)

type IdentityStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewIdentityStore(db *sql.DB, writer *dbpkg.Worker) *IdentityStore {
	return &IdentityStore{db: db, writer: writer}
}

// IsActive: an identity with no row has never enrolled and is not active.
func (s *IdentityStore) IsActive(ctx context.Context, ref store.IdentityRef) (bool, error) {
	id := strings.TrimSpace(ref.ID)
	if id == "" {
		return false, nil
	}

	var active int
	err := s.db.QueryRowContext(ctx, `
SELECT active FROM identities WHERE identity_kind = ? AND identity_id = ?;
`, string(ref.Kind), id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsActive query: %w", err)
	}
	return active == 1, nil
}

// SetActive creates the identity if needed and sets its flag.
func (s *IdentityStore) SetActive(ctx context.Context, ref store.IdentityRef, active bool) error {
	id := strings.TrimSpace(ref.ID)
	if id == "" {
		return nil
	}
	ref.ID = id
	ms := time.Now().UTC().UnixMilli()
	flag := 0
	if active {
		flag = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureIdentity(ctx, tx, ref, ms); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE identities
SET active = ?, updated_at_ms = ?
WHERE identity_kind = ? AND identity_id = ?;
`, flag, ms, string(ref.Kind), id); err != nil {
			return fmt.Errorf("SetActive update: %w", err)
		}
		return nil
	})
}
