// Package square implements the Square Payments API adapter.
package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	squareapi "github.com/square/square-go-sdk"
	squareclient "github.com/square/square-go-sdk/client"
	"github.com/square/square-go-sdk/core"
	"github.com/square/square-go-sdk/option"

	"github.com/protega/cloudpay/server/internal/pos"
)

const (
	Name           = "square"
	DefaultAPIBase = "https://connect.squareupsandbox.com"
	DefaultVersion = "2023-12-13"

	maxNoteLen = 500
)

type Config struct {
	AccessToken string
	LocationID  string
	APIBase     string
	Version     string
}

type Option func(*Adapter)

func WithHTTPClient(c pos.HTTPDoer) Option {
	return func(a *Adapter) { a.httpClient = c }
}

// WithIDGenerator overrides how idempotency keys are minted when the
// request carries no transaction id.
func WithIDGenerator(f func() string) Option {
	return func(a *Adapter) { a.newID = f }
}

type Adapter struct {
	cfg        Config
	httpClient pos.HTTPDoer
	newID      func() string
	api        *squareclient.Client
}

func New(cfg Config, opts ...Option) *Adapter {
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	cfg.LocationID = strings.TrimSpace(cfg.LocationID)
	cfg.APIBase = strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	a := &Adapter{cfg: cfg, httpClient: pos.NewHTTPClient(), newID: uuid.NewString}
	for _, o := range opts {
		o(a)
	}

	a.api = squareclient.NewClient(
		option.WithToken(cfg.AccessToken),
		option.WithBaseURL(cfg.APIBase),
		option.WithHTTPClient(a.httpClient),
		option.WithHTTPHeader(http.Header{"Square-Version": []string{cfg.Version}}),
	)
	return a
}

func (a *Adapter) Name() string { return Name }

// CheckConfigured reports template mode: without both credentials the
// adapter registers but refuses to send.
func (a *Adapter) CheckConfigured() error {
	var missing []string
	if a.cfg.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if a.cfg.LocationID == "" {
		missing = append(missing, "location_id")
	}
	if len(missing) > 0 {
		return &pos.ConfigError{Provider: Name, Missing: missing}
	}
	return nil
}

func (a *Adapter) Prepare(req pos.PaymentRequest) (pos.Payload, error) {
	if req.PaymentMethodToken() == "" {
		return nil, pos.NewAdapterError(Name, pos.StagePrepare, "payment method token required", 0, nil)
	}

	txnID := req.MetadataValue("transaction_id")
	key := txnID
	if key == "" {
		key = a.newID()
	}

	currency := squareapi.Currency(strings.ToUpper(req.Currency()))
	body := &squareapi.CreatePaymentRequest{
		IdempotencyKey: key,
		SourceID:       req.PaymentMethodToken(),
		AmountMoney: &squareapi.Money{
			Amount:   squareapi.Int64(pos.ToMinorUnits(req.Total(), req.Currency())),
			Currency: &currency,
		},
		Autocomplete: squareapi.Bool(true),
		LocationID:   optional(a.cfg.LocationID),
		CustomerID:   optional(req.MetadataValue("square_customer_id")),
		ReferenceID:  optional(txnID),
		Note:         optional(itemsNote(req.Items())),
	}
	if email := req.PayerEmail(); email != "" {
		body.BuyerEmailAddress = squareapi.String(email)
	}
	return pos.Payload{"body": body}, nil
}

func (a *Adapter) Send(ctx context.Context, p pos.Payload) (pos.RawResponse, error) {
	body, ok := p["body"].(*squareapi.CreatePaymentRequest)
	if !ok || body == nil {
		return nil, pos.NewAdapterError(Name, pos.StageSend, "payload body missing", 0, nil)
	}

	ctx, cancel := pos.SendContext(ctx)
	defer cancel()

	resp, err := a.api.Payments.Create(ctx, body)
	if err != nil {
		return nil, apiError(pos.StageSend, err)
	}
	return toRaw(pos.StageSend, resp)
}

func (a *Adapter) Parse(raw pos.RawResponse) (pos.PaymentResult, error) {
	payment := pos.ObjectField(raw, "payment")
	status := strings.ToLower(pos.StringField(payment, "status"))
	if status == "" {
		status = pos.StatusProcessing
	}
	return pos.PaymentResult{
		Status:         status,
		TransactionRef: pos.StringField(payment, "id"),
		Raw:            map[string]any(raw),
	}, nil
}

func (a *Adapter) FetchStatus(ctx context.Context, ref string) (pos.PaymentResult, error) {
	if err := a.CheckConfigured(); err != nil {
		return pos.PaymentResult{}, err
	}
	ctx, cancel := pos.SendContext(ctx)
	defer cancel()

	resp, err := a.api.Payments.Get(ctx, &squareapi.GetPaymentsRequest{PaymentID: ref})
	if err != nil {
		return pos.PaymentResult{}, apiError(pos.StageStatus, err)
	}
	raw, err := toRaw(pos.StageStatus, resp)
	if err != nil {
		return pos.PaymentResult{}, err
	}
	return a.Parse(raw)
}

// toRaw flattens an SDK response into the generic map Parse and the audit
// trail work with.
func toRaw(stage string, resp any) (pos.RawResponse, error) {
	buf, err := json.Marshal(resp)
	if err != nil {
		return nil, pos.NewAdapterError(Name, stage, "malformed provider response", 0, err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, pos.NewAdapterError(Name, stage, "malformed provider response", 0, err)
	}
	return out, nil
}

// apiError surfaces the first Square error's category and code.  The SDK
// carries the response body in the error text, so the envelope is read back
// from there.
func apiError(stage string, err error) error {
	var ae *core.APIError
	if !errors.As(err, &ae) {
		return pos.NewAdapterError(Name, stage, "provider unreachable", 0, err)
	}

	var env struct {
		Errors []struct {
			Category string `json:"category"`
			Code     string `json:"code"`
			Detail   string `json:"detail"`
		} `json:"errors"`
	}
	text := ae.Error()
	if i := strings.IndexByte(text, '{'); i >= 0 {
		_ = json.Unmarshal([]byte(text[i:]), &env)
	}

	msg := "square request failed"
	var detail string
	if len(env.Errors) > 0 {
		e := env.Errors[0]
		msg += ": " + e.Category + "/" + e.Code
		detail = e.Detail
	}
	return pos.NewAdapterError(Name, stage, msg, ae.StatusCode, fmt.Errorf("square %d: %s", ae.StatusCode, detail))
}

// itemsNote summarises the basket; the Payments API has no line items.
func itemsNote(items []pos.LineItem) string {
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%dx %s @ %s", it.Quantity, it.Name, it.Price.StringFixed(2)))
	}
	return truncate(strings.Join(parts, "; "), maxNoteLen)
}

// truncate caps s at limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - len("...")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
