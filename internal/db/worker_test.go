package db_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/protega/cloudpay/server/internal/db"
)

func openWorker(t *testing.T) (*sql.DB, *db.Worker) {
	t.Helper()
	conn, err := db.Open(context.Background(), db.Config{Path: filepath.Join(t.TempDir(), "w.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, db.NewWorker(conn)
}

func countIdentities(t *testing.T, conn *sql.DB) int {
	t.Helper()
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM identities`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func insertIdentity(id string) db.TxFn {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO identities(identity_kind, identity_id, active, created_at_ms, updated_at_ms)
VALUES ('customer', ?, 1, 0, 0)`, id)
		return err
	}
}

func TestWorker_CommitAndRollback(t *testing.T) {
	conn, w := openWorker(t)
	defer w.Close()
	ctx := context.Background()

	if err := w.Do(ctx, insertIdentity("cus-1")); err != nil {
		t.Fatalf("Do: %v", err)
	}

	boom := errors.New("boom")
	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := insertIdentity("cus-2")(ctx, tx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	if n := countIdentities(t, conn); n != 1 {
		t.Errorf("identities = %d, want 1 after rollback", n)
	}
}

func TestWorker_CancelledContext(t *testing.T) {
	conn, w := openWorker(t)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Do(ctx, insertIdentity("cus-1")); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n := countIdentities(t, conn); n != 0 {
		t.Errorf("identities = %d, want 0", n)
	}
}

func TestWorker_DoAfterClose(t *testing.T) {
	_, w := openWorker(t)
	w.Close()
	w.Close()

	if err := w.Do(context.Background(), insertIdentity("x")); !errors.Is(err, db.ErrWorkerClosed) {
		t.Fatalf("err = %v, want ErrWorkerClosed", err)
	}
}
