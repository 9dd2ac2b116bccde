package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	dbpkg "github.com/protega/cloudpay/server/internal/db"
	"github.com/protega/cloudpay/server/internal/enclave"
)

type BiometricStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewBiometricStore(db *sql.DB, writer *dbpkg.Worker) *BiometricStore {
	return &BiometricStore{db: db, writer: writer}
}

const biometricColumns = `
record_id, customer_id, user_id, salt, payload, digest, active,
verification_count, registered_at_ms, last_verified_at_ms`

// Insert stores rec and ensures identities rows exist for its owners.  The
// partial unique indexes reject a second active record for the same digest
// or identity.
func (s *BiometricStore) Insert(ctx context.Context, rec store.BiometricRecord) error {
	if rec.RegisteredAt.IsZero() {
		rec.RegisteredAt = time.Now().UTC()
	}
	ms := rec.RegisteredAt.UTC().UnixMilli()

	var active int
	if rec.Active {
		active = 1
	}

	var lastVerified any
	if rec.LastVerifiedAt != nil {
		lastVerified = rec.LastVerifiedAt.UTC().UnixMilli()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if rec.CustomerID != "" {
			if err := ensureIdentity(ctx, tx, store.IdentityRef{Kind: store.IdentityCustomer, ID: rec.CustomerID}, ms); err != nil {
				return err
			}
		}
		if rec.UserID != "" {
			if err := ensureIdentity(ctx, tx, store.IdentityRef{Kind: store.IdentityUser, ID: rec.UserID}, ms); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `
INSERT INTO biometric_records(`+biometricColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID, nullString(rec.CustomerID), nullString(rec.UserID),
			rec.Salt, rec.Payload, rec.Digest[:], active,
			rec.VerificationCount, ms, lastVerified,
		)
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("Insert biometric record: %w", err)
		}
		return nil
	})
}

func (s *BiometricStore) FindActiveByDigest(ctx context.Context, d enclave.Digest) (store.BiometricRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+biometricColumns+`
FROM biometric_records
WHERE digest = ? AND active = 1;
`, d[:])

	rec, err := scanBiometric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.BiometricRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.BiometricRecord{}, fmt.Errorf("FindActiveByDigest query: %w", err)
	}
	return rec, nil
}

func (s *BiometricStore) HasActiveForIdentity(ctx context.Context, ref store.IdentityRef) (bool, error) {
	col, err := identityColumn(ref.Kind)
	if err != nil {
		return false, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM biometric_records WHERE `+col+` = ? AND active = 1;
`, ref.ID).Scan(&n); err != nil {
		return false, fmt.Errorf("HasActiveForIdentity query: %w", err)
	}
	return n > 0, nil
}

func (s *BiometricStore) RecordVerification(ctx context.Context, id string, at time.Time) (int64, error) {
	ms := at.UTC().UnixMilli()
	var count int64

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
UPDATE biometric_records
SET verification_count  = verification_count + 1,
    last_verified_at_ms = ?
WHERE record_id = ?
RETURNING verification_count;
`, ms, id).Scan(&count)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("RecordVerification update: %w", err)
		}
		return nil
	})
	return count, err
}

func (s *BiometricStore) SetActive(ctx context.Context, id string, active bool) error {
	flag := 0
	if active {
		flag = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE biometric_records SET active = ? WHERE record_id = ?;
`, flag, id)
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("SetActive update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// DeleteByIdentity hard-deletes every record owned by ref.  Audit events
// keep their row with record_id cleared, and the identity's events lose
// their digest prefix in the same transaction.
func (s *BiometricStore) DeleteByIdentity(ctx context.Context, ref store.IdentityRef) (int64, error) {
	col, err := identityColumn(ref.Kind)
	if err != nil {
		return 0, err
	}

	var deleted int64
	err = s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM biometric_records WHERE `+col+` = ?;
`, ref.ID)
		if err != nil {
			return fmt.Errorf("DeleteByIdentity: %w", err)
		}
		deleted, _ = res.RowsAffected()

		if _, err := tx.ExecContext(ctx, `
UPDATE verification_events SET digest_prefix = '' WHERE `+col+` = ?;
`, ref.ID); err != nil {
			return fmt.Errorf("DeleteByIdentity redact events: %w", err)
		}
		return nil
	})
	return deleted, err
}

func identityColumn(k store.IdentityKind) (string, error) {
	switch k {
	case store.IdentityCustomer:
		return "customer_id", nil
	case store.IdentityUser:
		return "user_id", nil
	}
	return "", fmt.Errorf("unknown identity kind %q", k)
}

func scanBiometric(row *sql.Row) (store.BiometricRecord, error) {
	var (
		rec          store.BiometricRecord
		customerID   sql.NullString
		userID       sql.NullString
		digest       []byte
		active       int
		registeredMs int64
		verifiedMs   sql.NullInt64
	)
	if err := row.Scan(
		&rec.ID, &customerID, &userID, &rec.Salt, &rec.Payload, &digest, &active,
		&rec.VerificationCount, &registeredMs, &verifiedMs,
	); err != nil {
		return store.BiometricRecord{}, err
	}

	d, err := enclave.DigestFromBytes(digest)
	if err != nil {
		return store.BiometricRecord{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	rec.Digest = d
	rec.CustomerID = customerID.String
	rec.UserID = userID.String
	rec.Active = active == 1
	rec.RegisteredAt = msToTime(registeredMs)
	if verifiedMs.Valid {
		t := msToTime(verifiedMs.Int64)
		rec.LastVerifiedAt = &t
	}
	return rec, nil
}
