package service_test

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/protega/cloudpay/server/internal/cloudpay/service"
	"github.com/protega/cloudpay/server/internal/cloudpay/store/memory"
	"github.com/protega/cloudpay/server/internal/enclave"
	"github.com/protega/cloudpay/server/internal/pos"
)

func silentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type fixture struct {
	bio        *service.BiometricService
	cipher     *enclave.Cipher
	records    *memory.BiometricStore
	events     *memory.VerificationEventStore
	identities *memory.IdentityStore
	txns       *memory.TransactionStore
	registry   *pos.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	secret, err := enclave.NewMasterSecret(strings.Repeat("m", enclave.MinSecretLength))
	if err != nil {
		t.Fatalf("NewMasterSecret: %v", err)
	}
	events := memory.NewVerificationEventStore()
	f := &fixture{
		records:    memory.NewBiometricStore(memory.WithEventLog(events)),
		events:     events,
		identities: memory.NewIdentityStore(),
		txns:       memory.NewTransactionStore(),
		registry:   pos.NewRegistry(),
		cipher:     enclave.NewCipher(enclave.NewKeyDeriver(secret), silentLogger()),
	}
	f.bio = service.NewBiometricService(service.BiometricDeps{
		Cipher:    f.cipher,
		Records:   f.records,
		Events:    f.events,
		Directory: service.NewIdentityDirectory(f.identities),
		Logger:    silentLogger(),
	})
	return f
}

func (f *fixture) enroll(t *testing.T, customerID, sample string) {
	t.Helper()
	if _, err := f.bio.Enroll(context.Background(), service.EnrollRequest{CustomerID: customerID, Sample: sample}); err != nil {
		t.Fatalf("Enroll(%s): %v", customerID, err)
	}
}

// stubAdapter answers every payment with a canned response.
type stubAdapter struct {
	name    string
	status  string
	ref     string
	sendErr error
	fetched string

	mu       sync.Mutex
	requests []pos.PaymentRequest
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Prepare(req pos.PaymentRequest) (pos.Payload, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	return pos.Payload{}, nil
}

func (a *stubAdapter) Send(context.Context, pos.Payload) (pos.RawResponse, error) {
	if a.sendErr != nil {
		return nil, a.sendErr
	}
	return pos.RawResponse{"id": a.ref, "status": a.status}, nil
}

func (a *stubAdapter) Parse(raw pos.RawResponse) (pos.PaymentResult, error) {
	return pos.PaymentResult{
		Status:         pos.StringField(raw, "status"),
		TransactionRef: pos.StringField(raw, "id"),
		ClientSecret:   "secret_" + pos.StringField(raw, "id"),
		Raw:            raw,
	}, nil
}

func (a *stubAdapter) FetchStatus(_ context.Context, ref string) (pos.PaymentResult, error) {
	if a.fetched == "" {
		return pos.PaymentResult{}, pos.NewAdapterError(a.name, pos.StageStatus, "unavailable", 503, errors.New("down"))
	}
	return pos.PaymentResult{Status: a.fetched, TransactionRef: ref}, nil
}

func (a *stubAdapter) lastRequest(t *testing.T) pos.PaymentRequest {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.requests) == 0 {
		t.Fatal("adapter received no request")
	}
	return a.requests[len(a.requests)-1]
}
