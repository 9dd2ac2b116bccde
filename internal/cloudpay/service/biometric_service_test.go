package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/protega/cloudpay/server/internal/cloudpay/service"
	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	"github.com/protega/cloudpay/server/internal/enclave"
)

// ── Enroll ───────────────────────────────────────────────────────────────────

func TestEnroll_StoresEncryptedTemplate(t *testing.T) {
	f := newFixture(t)

	rec, err := f.bio.Enroll(context.Background(), service.EnrollRequest{CustomerID: "cust-1", Sample: " abcd1234 "})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if rec.ID == "" || !rec.Active || rec.Digest != enclave.Hash("ABCD1234") {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Payload == "" || rec.Salt == "" {
		t.Fatal("envelope not stored")
	}

	stored, ok := f.records.Get(rec.ID)
	if !ok {
		t.Fatal("record not persisted")
	}
	plain, err := f.cipher.Decrypt(enclave.Envelope{Salt: stored.Salt, Payload: stored.Payload})
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(plain) != "ABCD1234" {
		t.Errorf("decrypted %q, want normalized sample", plain)
	}
}

func TestEnroll_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.bio.Enroll(ctx, service.EnrollRequest{CustomerID: "c", Sample: "   "}); !errors.Is(err, service.ErrInvalidSample) {
		t.Errorf("blank sample: got %v", err)
	}
	if _, err := f.bio.Enroll(ctx, service.EnrollRequest{Sample: "ABCD"}); !errors.Is(err, service.ErrInvalidIdentity) {
		t.Errorf("no identity: got %v", err)
	}
}

func TestEnroll_DuplicateTemplateConflicts(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "cust-1", "ABCD1234")

	_, err := f.bio.Enroll(context.Background(), service.EnrollRequest{CustomerID: "cust-2", Sample: "abcd1234"})
	if !errors.Is(err, service.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestEnroll_SecondTemplateForIdentityConflicts(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "cust-1", "ABCD1234")

	_, err := f.bio.Enroll(context.Background(), service.EnrollRequest{CustomerID: "cust-1", Sample: "ZZZZ9999"})
	if !errors.Is(err, service.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

// ── Authenticate ─────────────────────────────────────────────────────────────

func TestAuthenticate_IncrementsCounter(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "cust-1", "ABCD1234")
	ctx := context.Background()

	for want := int64(1); want <= 2; want++ {
		id, err := f.bio.Authenticate(ctx, " abcd1234 ")
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if id.CustomerID != "cust-1" {
			t.Errorf("customer: got %q", id.CustomerID)
		}
		if id.VerificationCount != want {
			t.Errorf("count: got %d, want %d", id.VerificationCount, want)
		}
	}

	rec, _ := f.records.Get(mustFind(t, f, "ABCD1234").ID)
	if rec.LastVerifiedAt == nil {
		t.Error("last_verified_at not stamped")
	}
}

func TestAuthenticate_NoMatch(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "cust-1", "ABCD1234")

	_, err := f.bio.Authenticate(context.Background(), "UNKNOWN")
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	events := f.events.Events()
	if len(events) != 1 || events[0].Matched || events[0].Reason != store.ReasonNoMatch {
		t.Fatalf("unexpected audit %+v", events)
	}
	if events[0].DigestPrefix != enclave.Hash("UNKNOWN").Prefix() {
		t.Errorf("digest prefix: %q", events[0].DigestPrefix)
	}
}

func TestAuthenticate_InactiveIdentity(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "cust-1", "ABCD1234")
	f.identities.Deactivate(store.IdentityRef{Kind: store.IdentityCustomer, ID: "cust-1"})

	_, err := f.bio.Authenticate(context.Background(), "ABCD1234")
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if rec := mustFind(t, f, "ABCD1234"); rec.VerificationCount != 0 {
		t.Errorf("counter moved for inactive identity: %d", rec.VerificationCount)
	}

	events := f.events.Events()
	if len(events) != 1 || events[0].Reason != store.ReasonIdentityInactive {
		t.Fatalf("unexpected audit %+v", events)
	}
}

func TestAuthenticate_RecordsMatchedEvent(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "cust-1", "ABCD1234")

	id, err := f.bio.Authenticate(context.Background(), "ABCD1234")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	events := f.events.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if !ev.Matched || ev.Reason != store.ReasonMatched || ev.RecordID != id.RecordID {
		t.Errorf("unexpected event %+v", ev)
	}
	if len(ev.DigestPrefix) != enclave.DigestPrefixLen {
		t.Errorf("prefix length %d", len(ev.DigestPrefix))
	}
}

func TestExists(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "cust-1", "ABCD1234")
	ctx := context.Background()

	if ok, err := f.bio.Exists(ctx, "abcd1234"); err != nil || !ok {
		t.Errorf("Exists(enrolled): %v, %v", ok, err)
	}
	if ok, err := f.bio.Exists(ctx, "other"); err != nil || ok {
		t.Errorf("Exists(other): %v, %v", ok, err)
	}
}

// ── Deactivate / Erase ───────────────────────────────────────────────────────

func TestDeactivate_StopsMatching(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "cust-1", "ABCD1234")
	ctx := context.Background()

	rec := mustFind(t, f, "ABCD1234")
	if err := f.bio.Deactivate(ctx, rec.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if _, err := f.bio.Authenticate(ctx, "ABCD1234"); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("deactivated template still matches: %v", err)
	}
	if err := f.bio.Deactivate(ctx, "missing"); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("missing: got %v", err)
	}

	// The identity may enroll again once its old template is inactive.
	f.enroll(t, "cust-1", "ABCD1234")
}

func TestErase(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "cust-1", "ABCD1234")
	if _, err := f.bio.Authenticate(context.Background(), "ABCD1234"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	n, err := f.bio.Erase(context.Background(), store.IdentityRef{Kind: store.IdentityCustomer, ID: "cust-1"})
	if err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if n != 1 {
		t.Errorf("erased %d, want 1", n)
	}
	if ok, _ := f.bio.Exists(context.Background(), "ABCD1234"); ok {
		t.Error("template survived erase")
	}

	events := f.events.Events()
	if len(events) == 0 {
		t.Fatal("expected the verification to stay in the audit log")
	}
	for _, e := range events {
		if e.CustomerID == "cust-1" && e.DigestPrefix != "" {
			t.Errorf("audit event still carries digest prefix %q", e.DigestPrefix)
		}
	}
}

func mustFind(t *testing.T, f *fixture, sample string) store.BiometricRecord {
	t.Helper()
	rec, err := f.records.FindActiveByDigest(context.Background(), enclave.Hash(sample))
	if err != nil {
		t.Fatalf("FindActiveByDigest: %v", err)
	}
	return rec
}
