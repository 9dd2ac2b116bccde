// Package graph mirrors settled transactions into a graph database as
// (Customer)-[:PAID]->(Transaction)-[:TO]->(Merchant).
package graph

import (
	"context"
	"fmt"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	"github.com/protega/cloudpay/server/internal/graph"
)

const recordPaymentCypher = `
MERGE (c:Customer {id: $customer_id})
MERGE (m:Merchant {id: $merchant_id})
MERGE (t:Transaction {id: $transaction_id})
SET t.provider     = $provider,
    t.provider_ref = $provider_ref,
    t.status       = $status,
    t.total        = $total,
    t.currency     = $currency,
    t.updated_at   = $updated_at
MERGE (c)-[:PAID]->(t)
MERGE (t)-[:TO]->(m)`

type Ledger struct {
	client graph.Client
}

func NewLedger(c graph.Client) *Ledger {
	return &Ledger{client: c}
}

// RecordPayment upserts the transaction node and its edges.  Amounts are
// written as decimal strings.
func (l *Ledger) RecordPayment(ctx context.Context, rec store.TransactionRecord) error {
	_, err := l.client.Write(ctx, recordPaymentCypher, map[string]any{
		"customer_id":    rec.CustomerID,
		"merchant_id":    rec.MerchantID,
		"transaction_id": rec.ID,
		"provider":       rec.Provider,
		"provider_ref":   rec.ProviderRef,
		"status":         rec.Status,
		"total":          rec.Total.String(),
		"currency":       rec.Currency,
		"updated_at":     rec.UpdatedAt.UTC().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("RecordPayment %s: %w", rec.ID, err)
	}
	return nil
}
