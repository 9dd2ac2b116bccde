// Package pos routes normalized payment requests to pluggable payment
// provider adapters.
//
// Every adapter runs the same three stages: Prepare turns a PaymentRequest
// into the provider's native payload, Send performs the network call, and
// Parse maps the provider's response back into a PaymentResult.  The Registry
// resolves adapters by lowercase name and runs that pipeline; it never
// retries.
//
// Statuses in PaymentResult are provider-native.  Mapping them to the
// canonical completed/processing/cancelled/failed set happens in the caller.
package pos
