package pos

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// StatusProcessing is what Parse reports when a provider response carries no
// status.  The real outcome arrives later by webhook or poll.
const StatusProcessing = "processing"

// DefaultCurrency is used when a request does not name one.
const DefaultCurrency = "usd"

const fingerprintFragmentLen = 16

var ErrInvalidRequest = errors.New("invalid payment request")

type LineItem struct {
	Name     string
	Price    decimal.Decimal
	Quantity int
	Metadata map[string]string
}

// RequestParams is the mutable input to NewPaymentRequest.
type RequestParams struct {
	Amount             decimal.Decimal
	Total              decimal.Decimal
	Currency           string
	PayerRef           string
	PayerEmail         string
	PayerName          string
	MerchantRef        string
	PaymentMethodToken string
	BiometricHash      string // full hex digest; only a prefix is kept
	Metadata           map[string]string
	Items              []LineItem
}

// PaymentRequest is the normalized, provider-neutral request every adapter
// consumes.  It is immutable: maps and slices are copied in and out.
type PaymentRequest struct {
	amount             decimal.Decimal
	total              decimal.Decimal
	currency           string
	payerRef           string
	payerEmail         string
	payerName          string
	merchantRef        string
	paymentMethodToken string
	biometricFragment  string
	metadata           map[string]string
	items              []LineItem
}

func NewPaymentRequest(p RequestParams) (PaymentRequest, error) {
	if p.Amount.IsNegative() {
		return PaymentRequest{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidRequest)
	}
	if !p.Total.IsPositive() {
		return PaymentRequest{}, fmt.Errorf("%w: total must be positive", ErrInvalidRequest)
	}

	currency := strings.ToLower(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return PaymentRequest{}, fmt.Errorf("%w: currency %q is not an ISO 4217 code", ErrInvalidRequest, p.Currency)
	}

	frag := strings.ToLower(strings.TrimSpace(p.BiometricHash))
	if len(frag) > fingerprintFragmentLen {
		frag = frag[:fingerprintFragmentLen]
	}

	items := make([]LineItem, 0, len(p.Items))
	for _, it := range p.Items {
		if it.Quantity <= 0 {
			it.Quantity = 1
		}
		it.Metadata = maps.Clone(it.Metadata)
		items = append(items, it)
	}

	md := maps.Clone(p.Metadata)
	if md == nil {
		md = map[string]string{}
	}

	return PaymentRequest{
		amount:             p.Amount,
		total:              p.Total,
		currency:           currency,
		payerRef:           strings.TrimSpace(p.PayerRef),
		payerEmail:         strings.TrimSpace(p.PayerEmail),
		payerName:          strings.TrimSpace(p.PayerName),
		merchantRef:        strings.TrimSpace(p.MerchantRef),
		paymentMethodToken: strings.TrimSpace(p.PaymentMethodToken),
		biometricFragment:  frag,
		metadata:           md,
		items:              items,
	}, nil
}

func (r PaymentRequest) Amount() decimal.Decimal    { return r.amount }
func (r PaymentRequest) Total() decimal.Decimal     { return r.total }
func (r PaymentRequest) Currency() string           { return r.currency }
func (r PaymentRequest) PayerRef() string           { return r.payerRef }
func (r PaymentRequest) PayerEmail() string         { return r.payerEmail }
func (r PaymentRequest) PayerName() string          { return r.payerName }
func (r PaymentRequest) MerchantRef() string        { return r.merchantRef }
func (r PaymentRequest) PaymentMethodToken() string { return r.paymentMethodToken }

// BiometricFragment is the truncated digest kept for audit.
func (r PaymentRequest) BiometricFragment() string { return r.biometricFragment }

// Metadata returns a copy.
func (r PaymentRequest) Metadata() map[string]string { return maps.Clone(r.metadata) }

// MetadataValue looks up a single key without copying the map.
func (r PaymentRequest) MetadataValue(key string) string { return r.metadata[key] }

// Items returns a copy, in order.
func (r PaymentRequest) Items() []LineItem {
	out := slices.Clone(r.items)
	for i := range out {
		out[i].Metadata = maps.Clone(out[i].Metadata)
	}
	return out
}

// PaymentResult is the normalized outcome of one adapter pipeline run.
// Optional fields are empty when the provider did not supply them.
type PaymentResult struct {
	Status         string
	TransactionRef string
	ClientSecret   string
	Raw            map[string]any
}
