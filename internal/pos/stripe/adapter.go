// Package stripe implements the Stripe PaymentIntents adapter.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/protega/cloudpay/server/internal/pos"
)

const (
	Name           = "stripe"
	DefaultAPIBase = stripeapi.APIURL

	// Receipt-less walk-in payers still need a Stripe customer.
	anonymousEmail = "anonymous@cloudpay.invalid"
)

type Config struct {
	SecretKey     string
	APIBase       string
	WebhookSecret string
}

type Option func(*Adapter)

// WithHTTPClient replaces the default 30s-timeout client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpClient = c }
}

type Adapter struct {
	cfg        Config
	httpClient *http.Client
	api        *client.API
}

// New never fails: an empty secret key only disables the adapter at first
// use.
func New(cfg Config, opts ...Option) *Adapter {
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.APIBase = strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	a := &Adapter{cfg: cfg, httpClient: pos.NewHTTPClient()}
	for _, o := range opts {
		o(a)
	}

	// Retries stay off: a charge is attempted once and settled by
	// reconciliation.
	backends := stripeapi.NewBackendsWithConfig(&stripeapi.BackendConfig{
		HTTPClient:        a.httpClient,
		URL:               stripeapi.String(cfg.APIBase),
		MaxNetworkRetries: stripeapi.Int64(0),
		EnableTelemetry:   stripeapi.Bool(false),
		LeveledLogger:     &stripeapi.LeveledLogger{Level: stripeapi.LevelNull},
	})
	a.api = client.New(cfg.SecretKey, backends)
	return a
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) CheckConfigured() error {
	if a.cfg.SecretKey == "" {
		return &pos.ConfigError{Provider: Name, Missing: []string{"secret_key"}}
	}
	return nil
}

func (a *Adapter) Prepare(req pos.PaymentRequest) (pos.Payload, error) {
	md := req.Metadata()
	setDefault(md, "cloudpay_customer_id", req.PayerRef())
	setDefault(md, "cloudpay_merchant_id", req.MerchantRef())
	setDefault(md, "fingerprint_hash", req.BiometricFragment())

	return pos.Payload{
		"amount":            pos.ToMinorUnits(req.Total(), req.Currency()),
		"currency":          req.Currency(),
		"customer_email":    req.PayerEmail(),
		"customer_name":     req.PayerName(),
		"payment_method_id": req.PaymentMethodToken(),
		"idempotency_key":   req.MetadataValue("transaction_id"),
		"metadata":          md,
	}, nil
}

// Send finds or creates the customer, creates the PaymentIntent and, when a
// stored payment method is supplied, confirms it.
func (a *Adapter) Send(ctx context.Context, p pos.Payload) (pos.RawResponse, error) {
	ctx, cancel := pos.SendContext(ctx)
	defer cancel()

	amount, ok := p["amount"].(int64)
	if !ok || amount <= 0 {
		return nil, pos.NewAdapterError(Name, pos.StageSend, "payload amount missing", 0, nil)
	}
	currency, _ := p["currency"].(string)
	email, _ := p["customer_email"].(string)
	name, _ := p["customer_name"].(string)
	pm, _ := p["payment_method_id"].(string)
	idem, _ := p["idempotency_key"].(string)
	md, _ := p["metadata"].(map[string]string)

	customerID, err := a.customerFor(ctx, email, name)
	if err != nil {
		return nil, err
	}

	params := &stripeapi.PaymentIntentParams{
		Amount:   stripeapi.Int64(amount),
		Currency: stripeapi.String(currency),
		Customer: stripeapi.String(customerID),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripeapi.Bool(true),
			AllowRedirects: stripeapi.String("never"),
		},
		Metadata: map[string]string{},
	}
	params.Context = ctx
	if email != "" {
		params.ReceiptEmail = stripeapi.String(email)
	}
	if pm != "" {
		params.PaymentMethod = stripeapi.String(pm)
	}
	for k, v := range md {
		if v != "" {
			params.Metadata[k] = v
		}
	}
	if _, ok := params.Metadata["stripe_customer_id"]; !ok {
		params.Metadata["stripe_customer_id"] = customerID
	}
	if idem != "" {
		params.SetIdempotencyKey(idem)
	}

	intent, err := a.api.PaymentIntents.New(params)
	if err != nil {
		return nil, apiError(pos.StageSend, err)
	}

	if pm != "" && intent.Status == stripeapi.PaymentIntentStatusRequiresConfirmation {
		cp := &stripeapi.PaymentIntentConfirmParams{PaymentMethod: stripeapi.String(pm)}
		cp.Context = ctx
		if idem != "" {
			cp.SetIdempotencyKey(idem + "-confirm")
		}
		confirmed, err := a.api.PaymentIntents.Confirm(intent.ID, cp)
		if err != nil {
			return nil, apiError(pos.StageSend, err)
		}
		if confirmed.Status != "" {
			intent.Status = confirmed.Status
		}
	}

	raw := intentRaw(intent)
	raw["stripe_customer_id"] = customerID
	return raw, nil
}

func (a *Adapter) Parse(raw pos.RawResponse) (pos.PaymentResult, error) {
	status := pos.StringField(raw, "status")
	if status == "" {
		status = pos.StatusProcessing
	}
	return pos.PaymentResult{
		Status:         status,
		TransactionRef: pos.StringField(raw, "id"),
		ClientSecret:   pos.StringField(raw, "client_secret"),
		Raw:            pos.AuditCopy(raw, "client_secret"),
	}, nil
}

// FetchStatus retrieves a PaymentIntent for reconciliation.
func (a *Adapter) FetchStatus(ctx context.Context, ref string) (pos.PaymentResult, error) {
	if err := a.CheckConfigured(); err != nil {
		return pos.PaymentResult{}, err
	}
	ctx, cancel := pos.SendContext(ctx)
	defer cancel()

	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx
	intent, err := a.api.PaymentIntents.Get(ref, params)
	if err != nil {
		return pos.PaymentResult{}, apiError(pos.StageStatus, err)
	}
	return a.Parse(intentRaw(intent))
}

func (a *Adapter) customerFor(ctx context.Context, email, name string) (string, error) {
	if email == "" {
		email = anonymousEmail
	}

	list := &stripeapi.CustomerListParams{Email: stripeapi.String(email)}
	list.Context = ctx
	list.Limit = stripeapi.Int64(1)
	it := a.api.Customers.List(list)
	if it.Next() {
		if c := it.Customer(); c != nil && c.ID != "" {
			return c.ID, nil
		}
	}
	if err := it.Err(); err != nil {
		return "", apiError(pos.StageSend, err)
	}

	params := &stripeapi.CustomerParams{Email: stripeapi.String(email)}
	params.Context = ctx
	if name != "" {
		params.Name = stripeapi.String(name)
	}
	created, err := a.api.Customers.New(params)
	if err != nil {
		return "", apiError(pos.StageSend, err)
	}
	if created.ID == "" {
		return "", pos.NewAdapterError(Name, pos.StageSend, "customer create returned no id", 0, nil)
	}
	return created.ID, nil
}

// intentRaw prefers the verbatim response body so the audit copy keeps
// every field Stripe returned.
func intentRaw(pi *stripeapi.PaymentIntent) pos.RawResponse {
	raw := pos.RawResponse{}
	if pi.LastResponse != nil && len(pi.LastResponse.RawJSON) > 0 {
		_ = json.Unmarshal(pi.LastResponse.RawJSON, &raw)
	}
	raw["id"] = pi.ID
	raw["status"] = string(pi.Status)
	if pi.ClientSecret != "" {
		raw["client_secret"] = pi.ClientSecret
	}
	return raw
}

// apiError keeps Stripe's error type and code, which are safe to surface,
// and drops the free-text message into the diagnostic cause.
func apiError(stage string, err error) error {
	var se *stripeapi.Error
	if !errors.As(err, &se) {
		return pos.NewAdapterError(Name, stage, "provider unreachable", 0, err)
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{string(se.Type), string(se.Code), string(se.DeclineCode)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	msg := "stripe request failed"
	if len(parts) > 0 {
		msg += ": " + strings.Join(parts, "/")
	}
	return pos.NewAdapterError(Name, stage, msg, se.HTTPStatusCode,
		fmt.Errorf("stripe %d: %s", se.HTTPStatusCode, se.Msg))
}

func setDefault(m map[string]string, k, v string) {
	if v == "" {
		return
	}
	if _, ok := m[k]; !ok {
		m[k] = v
	}
}
