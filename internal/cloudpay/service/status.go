package service

import (
	"strings"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
)

var canonicalStatuses = map[string]string{
	"succeeded": store.StatusCompleted,
	"paid":      store.StatusCompleted,
	"completed": store.StatusCompleted,
	"captured":  store.StatusCompleted,

	"processing":              store.StatusProcessing,
	"pending":                 store.StatusProcessing,
	"requires_action":         store.StatusProcessing,
	"requires_payment_method": store.StatusProcessing,

	"canceled":  store.StatusCancelled,
	"cancelled": store.StatusCancelled,

	"failed":   store.StatusFailed,
	"declined": store.StatusFailed,
	"refused":  store.StatusFailed,
}

// CanonicalStatus maps a provider-native status onto the four transaction
// states.  Anything unrecognized is still processing.
func CanonicalStatus(native string) string {
	if s, ok := canonicalStatuses[strings.ToLower(strings.TrimSpace(native))]; ok {
		return s
	}
	return store.StatusProcessing
}

// IsTerminal reports whether status can no longer change by reconciliation.
func IsTerminal(status string) bool {
	return status != store.StatusProcessing
}
