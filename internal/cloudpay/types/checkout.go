package types

import "github.com/shopspring/decimal"

type LineItem struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity,omitempty"`
}

type CheckoutRequest struct {
	Sample             string          `json:"fingerprint_template"`
	MerchantID         string          `json:"merchant_id"`
	Provider           string          `json:"provider,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency,omitempty"`
	Items              []LineItem      `json:"items,omitempty"`
	PaymentMethodToken string          `json:"payment_method_id,omitempty"`
	Email              string          `json:"customer_email,omitempty"`
	Name               string          `json:"customer_name,omitempty"`
}

type CheckoutResponse struct {
	OK           bool        `json:"ok"`
	Transaction  Transaction `json:"transaction"`
	ClientSecret string      `json:"client_secret,omitempty"`
	ServerTime   string      `json:"server_time"`
}

type Transaction struct {
	ID             string          `json:"transaction_id"`
	CustomerID     string          `json:"customer_id"`
	MerchantID     string          `json:"merchant_id"`
	Provider       string          `json:"provider"`
	ProviderRef    string          `json:"provider_reference,omitempty"`
	ProviderStatus string          `json:"provider_status,omitempty"`
	Status         string          `json:"status"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	Items          []LineItem      `json:"items,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

type TransactionList struct {
	OK           bool          `json:"ok"`
	Transactions []Transaction `json:"transactions"`
}

// TransactionQuery is decoded from GET /v1/transactions query parameters.
type TransactionQuery struct {
	CustomerID string `schema:"customer_id"`
	MerchantID string `schema:"merchant_id"`
	Status     string `schema:"status"`
	Limit      int    `schema:"limit"`
}

type Provider struct {
	Name       string   `json:"name"`
	Configured bool     `json:"configured"`
	Missing    []string `json:"missing,omitempty"`
}

type ProviderList struct {
	OK        bool       `json:"ok"`
	Providers []Provider `json:"providers"`
}

type WebhookResponse struct {
	OK            bool   `json:"ok"`
	Event         string `json:"event"`
	Ignored       bool   `json:"ignored,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Status        string `json:"status,omitempty"`
}

type ErrorResponse struct {
	OK            bool   `json:"ok"`
	Error         string `json:"error"`
	Message       string `json:"message"`
	TransactionID string `json:"transaction_id,omitempty"`
}
