package db_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/protega/cloudpay/server/internal/db"
)

func TestOpen_MigratesAndSeeds(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cloudpay.db")

	conn, err := db.Open(ctx, db.Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	for _, table := range []string{"identities", "biometric_records", "verification_events", "transactions"} {
		var n int
		err := conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		if err != nil || n != 1 {
			t.Errorf("table %s missing (n=%d err=%v)", table, n, err)
		}
	}

	opt := db.SeedDevOptions{Customers: []string{"cus-1", " ", "cus-2"}, Users: []string{"usr-1"}}
	if err := db.SeedDev(ctx, conn, opt); err != nil {
		t.Fatalf("SeedDev: %v", err)
	}
	if _, err := conn.ExecContext(ctx,
		`UPDATE identities SET active = 0 WHERE identity_kind = 'customer' AND identity_id = 'cus-1'`); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	// Seeding again must not reactivate cus-1.
	if err := db.SeedDev(ctx, conn, opt); err != nil {
		t.Fatalf("SeedDev again: %v", err)
	}

	var total, active int
	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(active), 0) FROM identities`).Scan(&total, &active); err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 3 || active != 2 {
		t.Errorf("identities total=%d active=%d, want 3 and 2", total, active)
	}
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cloudpay.db")

	first, err := db.Open(ctx, db.Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	first.Close()

	second, err := db.Open(ctx, db.Config{Path: path})
	if err != nil {
		t.Fatalf("reopen should skip applied migrations: %v", err)
	}
	defer second.Close()

	v, err := db.SchemaVersion(ctx, second)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 2 {
		t.Errorf("schema version = %d, want 2", v)
	}
}
