package stripe_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/protega/cloudpay/server/internal/pos"
	"github.com/protega/cloudpay/server/internal/pos/stripe"
)

// ── Helpers ──

type fakeStripe struct {
	mu        sync.Mutex
	customers []string // existing customer emails
	intents   []*http.Request
	forms     []map[string]string
	confirmed bool
	status    string
	fail      int
}

func (f *fakeStripe) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/customers", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		data := []map[string]any{}
		for _, e := range f.customers {
			if e == r.URL.Query().Get("email") {
				data = append(data, map[string]any{"id": "cus_existing", "email": e})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	})

	mux.HandleFunc("POST /v1/customers", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "cus_new"})
	})

	mux.HandleFunc("POST /v1/payment_intents", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.intents = append(f.intents, r)
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		f.forms = append(f.forms, form)

		if f.fail != 0 {
			w.WriteHeader(f.fail)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
				"type": "card_error", "code": "card_declined", "decline_code": "insufficient_funds",
				"message": "Your card has insufficient funds.",
			}})
			return
		}
		status := f.status
		if status == "" {
			status = "requires_payment_method"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "pi_123", "status": status, "client_secret": "pi_123_secret_abc",
		})
	})

	mux.HandleFunc("POST /v1/payment_intents/{id}/confirm", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.confirmed = true
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("id"), "status": "succeeded"})
	})

	mux.HandleFunc("GET /v1/payment_intents/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("id"), "status": "succeeded"})
	})

	return mux
}

func newAdapter(t *testing.T, f *fakeStripe) *stripe.Adapter {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return stripe.New(stripe.Config{SecretKey: "sk_test_123", APIBase: srv.URL},
		stripe.WithHTTPClient(srv.Client()))
}

func request(t *testing.T, pm string) pos.PaymentRequest {
	t.Helper()
	req, err := pos.NewPaymentRequest(pos.RequestParams{
		Amount:             decimal.RequireFromString("10.00"),
		Total:              decimal.RequireFromString("10.80"),
		Currency:           "usd",
		PayerRef:           "cust-1",
		PayerEmail:         "ada@example.com",
		MerchantRef:        "merch-1",
		PaymentMethodToken: pm,
		BiometricHash:      "0123456789abcdef0123456789abcdef",
		Metadata:           map[string]string{"transaction_id": "TXN-ABCDEF12"},
	})
	if err != nil {
		t.Fatalf("NewPaymentRequest: %v", err)
	}
	return req
}

// ── Pipeline ──

func TestStripe_CreatesIntent(t *testing.T) {
	f := &fakeStripe{}
	a := newAdapter(t, f)

	res, err := pos.Run(context.Background(), a, request(t, ""))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TransactionRef != "pi_123" || res.Status != "requires_payment_method" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.ClientSecret != "pi_123_secret_abc" {
		t.Errorf("client secret: %q", res.ClientSecret)
	}
	if _, ok := res.Raw["client_secret"]; ok {
		t.Error("raw audit copy must not retain the client secret")
	}
	if res.Raw["stripe_customer_id"] != "cus_new" {
		t.Errorf("raw stripe_customer_id: %v", res.Raw["stripe_customer_id"])
	}

	if len(f.intents) != 1 {
		t.Fatalf("payment intents created: %d", len(f.intents))
	}
	r, form := f.intents[0], f.forms[0]
	if got := r.Header.Get("Authorization"); got != "Bearer sk_test_123" {
		t.Errorf("Authorization: %q", got)
	}
	if got := r.Header.Get("Idempotency-Key"); got != "TXN-ABCDEF12" {
		t.Errorf("Idempotency-Key: %q", got)
	}
	want := map[string]string{
		"amount":                             "1080",
		"currency":                           "usd",
		"customer":                           "cus_new",
		"automatic_payment_methods[enabled]": "true",
		"metadata[cloudpay_customer_id]":     "cust-1",
		"metadata[cloudpay_merchant_id]":     "merch-1",
		"metadata[fingerprint_hash]":         "0123456789abcdef",
		"metadata[transaction_id]":           "TXN-ABCDEF12",
		"metadata[stripe_customer_id]":       "cus_new",
	}
	for k, v := range want {
		if form[k] != v {
			t.Errorf("%s: got %q, want %q", k, form[k], v)
		}
	}
	if f.confirmed {
		t.Error("intent confirmed without a payment method")
	}
}

func TestStripe_ReusesExistingCustomer(t *testing.T) {
	f := &fakeStripe{customers: []string{"ada@example.com"}}
	a := newAdapter(t, f)

	if _, err := pos.Run(context.Background(), a, request(t, "")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := f.forms[0]["customer"]; got != "cus_existing" {
		t.Errorf("customer: got %q, want cus_existing", got)
	}
}

func TestStripe_ConfirmsWithPaymentMethod(t *testing.T) {
	f := &fakeStripe{status: "requires_confirmation"}
	a := newAdapter(t, f)

	res, err := pos.Run(context.Background(), a, request(t, "pm_card_visa"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !f.confirmed {
		t.Fatal("expected confirm call")
	}
	if res.Status != "succeeded" {
		t.Errorf("status: got %q, want succeeded", res.Status)
	}
	if f.forms[0]["payment_method"] != "pm_card_visa" {
		t.Errorf("payment_method: %q", f.forms[0]["payment_method"])
	}
}

func TestStripe_ProviderErrorIsAdapterError(t *testing.T) {
	f := &fakeStripe{fail: http.StatusPaymentRequired}
	a := newAdapter(t, f)

	_, err := pos.Run(context.Background(), a, request(t, ""))
	var ae *pos.AdapterError
	if !errors.As(err, &ae) {
		t.Fatalf("got %v (%T), want *AdapterError", err, err)
	}
	if ae.StatusCode != http.StatusPaymentRequired {
		t.Errorf("status code: %d", ae.StatusCode)
	}
	if ae.Message != "stripe request failed: card_error/card_declined/insufficient_funds" {
		t.Errorf("message: %q", ae.Message)
	}
}

func TestStripe_UnreachableIsAdapterError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	a := stripe.New(stripe.Config{SecretKey: "sk_test_123", APIBase: base})
	_, err := pos.Run(context.Background(), a, request(t, ""))
	if !errors.Is(err, pos.ErrAdapter) {
		t.Fatalf("got %v, want ErrAdapter", err)
	}
}

func TestStripe_NotConfigured(t *testing.T) {
	a := stripe.New(stripe.Config{})
	_, err := pos.Run(context.Background(), a, request(t, ""))
	if !errors.Is(err, pos.ErrNotConfigured) {
		t.Fatalf("got %v, want ErrNotConfigured", err)
	}
}

func TestStripe_ParseDefaultsStatus(t *testing.T) {
	res, err := stripe.New(stripe.Config{}).Parse(pos.RawResponse{"id": "pi_9"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Status != pos.StatusProcessing {
		t.Errorf("status: got %q", res.Status)
	}
}

func TestStripe_FetchStatus(t *testing.T) {
	a := newAdapter(t, &fakeStripe{})
	res, err := a.FetchStatus(context.Background(), "pi_777")
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	if res.TransactionRef != "pi_777" || res.Status != "succeeded" {
		t.Errorf("unexpected result %+v", res)
	}
}

// ── Webhook ──

func TestConstructEvent(t *testing.T) {
	const secret = "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","api_version":"2020-08-27","data":{"object":{"id":"pi_123","status":"succeeded"}}}`)

	ev, err := stripe.ConstructEvent(payload, stripe.Sign(payload, secret, time.Now()), secret)
	if err != nil {
		t.Fatalf("ConstructEvent: %v", err)
	}
	if ev.ID != "evt_1" || ev.Data.Object.ID != "pi_123" {
		t.Errorf("event: %+v", ev)
	}
	status, ok := ev.NativeStatus()
	if !ok || status != "succeeded" {
		t.Errorf("NativeStatus: %q %v", status, ok)
	}
}

func TestConstructEvent_Rejects(t *testing.T) {
	const secret = "whsec_test"
	now := time.Now()
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	good := stripe.Sign(payload, secret, now)

	cases := []struct {
		name    string
		payload []byte
		header  string
		secret  string
		want    error
	}{
		{"no secret", payload, good, "", stripe.ErrWebhookNotConfigured},
		{"wrong secret", payload, good, "whsec_other", stripe.ErrInvalidSignature},
		{"tampered payload", []byte(`{"id":"evt_2","type":"payment_intent.succeeded"}`), good, secret, stripe.ErrInvalidSignature},
		{"stale", payload, stripe.Sign(payload, secret, now.Add(-10*time.Minute)), secret, stripe.ErrInvalidSignature},
		{"empty header", payload, "", secret, stripe.ErrInvalidSignature},
		{"bad json", []byte(`not json`), stripe.Sign([]byte(`not json`), secret, now), secret, stripe.ErrInvalidPayload},
		{"no type", []byte(`{"id":"evt_3"}`), stripe.Sign([]byte(`{"id":"evt_3"}`), secret, now), secret, stripe.ErrInvalidPayload},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := stripe.ConstructEvent(c.payload, c.header, c.secret)
			if !errors.Is(err, c.want) {
				t.Fatalf("got %v, want %v", err, c.want)
			}
		})
	}
}

func TestEvent_NativeStatusIgnoresOtherEvents(t *testing.T) {
	if _, ok := (stripe.Event{Type: "customer.created"}).NativeStatus(); ok {
		t.Error("customer.created should be ignored")
	}
	if s, ok := (stripe.Event{Type: "payment_intent.payment_failed"}).NativeStatus(); !ok || s != "failed" {
		t.Errorf("payment_failed: %q %v", s, ok)
	}
}
