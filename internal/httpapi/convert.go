package httpapi

import (
	"time"

	"github.com/protega/cloudpay/server/internal/cloudpay/service"
	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	"github.com/protega/cloudpay/server/internal/cloudpay/types"
	"github.com/protega/cloudpay/server/internal/pos"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func lineItemsIn(items []types.LineItem) []pos.LineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]pos.LineItem, len(items))
	for i, it := range items {
		out[i] = pos.LineItem{Name: it.Name, Price: it.Price, Quantity: it.Quantity}
	}
	return out
}

func checkoutRequestIn(req types.CheckoutRequest) service.CheckoutRequest {
	return service.CheckoutRequest{
		Sample:             req.Sample,
		MerchantID:         req.MerchantID,
		Provider:           req.Provider,
		Amount:             req.Amount,
		Currency:           req.Currency,
		Items:              lineItemsIn(req.Items),
		PaymentMethodToken: req.PaymentMethodToken,
		Email:              req.Email,
		Name:               req.Name,
	}
}

func transactionOut(rec store.TransactionRecord) types.Transaction {
	t := types.Transaction{
		ID:             rec.ID,
		CustomerID:     rec.CustomerID,
		MerchantID:     rec.MerchantID,
		Provider:       rec.Provider,
		ProviderRef:    rec.ProviderRef,
		ProviderStatus: rec.ProviderStatus,
		Status:         rec.Status,
		FailureReason:  rec.FailureReason,
		Amount:         rec.Amount,
		Tax:            rec.Tax,
		Total:          rec.Total,
		Currency:       rec.Currency,
		CreatedAt:      formatTime(rec.CreatedAt),
		UpdatedAt:      formatTime(rec.UpdatedAt),
	}
	for _, it := range rec.Items {
		t.Items = append(t.Items, types.LineItem{Name: it.Name, Price: it.Price, Quantity: it.Quantity})
	}
	return t
}

func transactionsOut(recs []store.TransactionRecord) []types.Transaction {
	out := make([]types.Transaction, 0, len(recs))
	for _, rec := range recs {
		out = append(out, transactionOut(rec))
	}
	return out
}

func providersOut(ps []service.ProviderStatus) []types.Provider {
	out := make([]types.Provider, 0, len(ps))
	for _, p := range ps {
		out = append(out, types.Provider{Name: p.Name, Configured: p.Configured, Missing: p.Missing})
	}
	return out
}
