package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	dbpkg "github.com/protega/cloudpay/server/internal/db"
	"github.com/protega/cloudpay/server/internal/pos"
)

type TransactionStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewTransactionStore(db *sql.DB, writer *dbpkg.Worker) *TransactionStore {
	return &TransactionStore{db: db, writer: writer}
}

const transactionColumns = `
transaction_id, customer_id, merchant_id, provider, provider_ref,
provider_status, status, failure_reason, amount, tax, total, currency,
items_json, metadata_json, raw_json, created_at_ms, updated_at_ms`

func (s *TransactionStore) Create(ctx context.Context, rec store.TransactionRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	items, err := marshalJSON(rec.Items, "[]")
	if err != nil {
		return fmt.Errorf("Create encode items: %w", err)
	}
	md, err := marshalJSON(rec.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("Create encode metadata: %w", err)
	}
	var raw any
	if rec.Raw != nil {
		b, err := json.Marshal(rec.Raw)
		if err != nil {
			return fmt.Errorf("Create encode raw: %w", err)
		}
		raw = string(b)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO transactions(`+transactionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID, rec.CustomerID, rec.MerchantID, rec.Provider,
			nullString(rec.ProviderRef), nullString(rec.ProviderStatus),
			rec.Status, nullString(rec.FailureReason),
			rec.Amount.String(), rec.Tax.String(), rec.Total.String(), rec.Currency,
			items, md, raw,
			rec.CreatedAt.UTC().UnixMilli(), rec.UpdatedAt.UTC().UnixMilli(),
		)
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("Create transaction: %w", err)
		}
		return nil
	})
}

func (s *TransactionStore) Get(ctx context.Context, id string) (store.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = ?;
`, id)
	if err != nil {
		return store.TransactionRecord{}, fmt.Errorf("Get query: %w", err)
	}
	out, err := scanTransactions(rows)
	if err != nil {
		return store.TransactionRecord{}, fmt.Errorf("Get scan: %w", err)
	}
	if len(out) == 0 {
		return store.TransactionRecord{}, store.ErrNotFound
	}
	return out[0], nil
}

func (s *TransactionStore) List(ctx context.Context, f store.TransactionFilter) ([]store.TransactionRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.MerchantID != "" {
		where = append(where, "merchant_id = ?")
		args = append(args, f.MerchantID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	q := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at_ms DESC, transaction_id DESC LIMIT ?;"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("List query: %w", err)
	}
	out, err := scanTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("List scan: %w", err)
	}
	return out, nil
}

func (s *TransactionStore) ApplyResult(ctx context.Context, id, provider string, res pos.PaymentResult, status string, at time.Time) error {
	var raw any
	if res.Raw != nil {
		b, err := json.Marshal(res.Raw)
		if err != nil {
			return fmt.Errorf("ApplyResult encode raw: %w", err)
		}
		raw = string(b)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx, `
UPDATE transactions
SET provider        = ?,
    provider_ref    = ?,
    provider_status = ?,
    status          = ?,
    raw_json        = ?,
    updated_at_ms   = ?
WHERE transaction_id = ?;
`, provider, nullString(res.TransactionRef), nullString(res.Status), status, raw,
			at.UTC().UnixMilli(), id)
		if err != nil {
			return fmt.Errorf("ApplyResult update: %w", err)
		}
		if n, _ := r.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *TransactionStore) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx, `
UPDATE transactions
SET status = ?, failure_reason = ?, updated_at_ms = ?
WHERE transaction_id = ?;
`, store.StatusFailed, nullString(reason), at.UTC().UnixMilli(), id)
		if err != nil {
			return fmt.Errorf("MarkFailed update: %w", err)
		}
		if n, _ := r.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *TransactionStore) UpdateStatusByProviderRef(ctx context.Context, provider, ref, status, providerStatus string, at time.Time) (store.TransactionRecord, error) {
	if ref == "" {
		return store.TransactionRecord{}, store.ErrNotFound
	}

	var id string
	var final bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
UPDATE transactions
SET status = ?, provider_status = ?, updated_at_ms = ?
WHERE provider = ? AND provider_ref = ?
  AND (status NOT IN ('completed', 'cancelled', 'failed') OR (status = 'failed' AND ? = 'completed'))
RETURNING transaction_id;
`, status, nullString(providerStatus), at.UTC().UnixMilli(), provider, ref, status).Scan(&id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("UpdateStatusByProviderRef: %w", err)
		}

		err = tx.QueryRowContext(ctx, `
SELECT transaction_id FROM transactions WHERE provider = ? AND provider_ref = ?;
`, provider, ref).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("UpdateStatusByProviderRef lookup: %w", err)
		}
		final = true
		return nil
	})
	if err != nil {
		return store.TransactionRecord{}, err
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return store.TransactionRecord{}, err
	}
	if final {
		return rec, store.ErrStatusFinal
	}
	return rec, nil
}

func (s *TransactionStore) ListStale(ctx context.Context, status string, cutoff time.Time, limit int) ([]store.TransactionRecord, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+transactionColumns+`
FROM transactions
WHERE status = ? AND updated_at_ms < ?
ORDER BY updated_at_ms ASC
LIMIT ?;
`, status, cutoff.UTC().UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("ListStale query: %w", err)
	}
	out, err := scanTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("ListStale scan: %w", err)
	}
	return out, nil
}

func scanTransactions(rows *sql.Rows) ([]store.TransactionRecord, error) {
	defer rows.Close()

	var out []store.TransactionRecord
	for rows.Next() {
		var (
			rec                       store.TransactionRecord
			providerRef, providerStat sql.NullString
			failure, raw              sql.NullString
			amount, tax, total        string
			itemsJSON, metadataJSON   string
			createdMs, updatedMs      int64
		)
		if err := rows.Scan(
			&rec.ID, &rec.CustomerID, &rec.MerchantID, &rec.Provider, &providerRef,
			&providerStat, &rec.Status, &failure, &amount, &tax, &total, &rec.Currency,
			&itemsJSON, &metadataJSON, &raw, &createdMs, &updatedMs,
		); err != nil {
			return nil, err
		}

		var err error
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %s amount: %w", rec.ID, err)
		}
		if rec.Tax, err = decimal.NewFromString(tax); err != nil {
			return nil, fmt.Errorf("transaction %s tax: %w", rec.ID, err)
		}
		if rec.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("transaction %s total: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(itemsJSON), &rec.Items); err != nil {
			return nil, fmt.Errorf("transaction %s items: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("transaction %s metadata: %w", rec.ID, err)
		}
		if raw.Valid {
			if err := json.Unmarshal([]byte(raw.String), &rec.Raw); err != nil {
				return nil, fmt.Errorf("transaction %s raw: %w", rec.ID, err)
			}
		}

		rec.ProviderRef = providerRef.String
		rec.ProviderStatus = providerStat.String
		rec.FailureReason = failure.String
		rec.CreatedAt = msToTime(createdMs)
		rec.UpdatedAt = msToTime(updatedMs)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func marshalJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}
