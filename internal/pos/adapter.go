package pos

import (
	"context"
	"errors"
)

// Payload is a provider-native request body produced by Prepare.
type Payload map[string]any

// RawResponse is a provider-native response body returned by Send.
type RawResponse map[string]any

// Adapter translates between the normalized contracts and one provider.
// Implementations must hold no per-call mutable state: the same instance
// serves concurrent Process calls.
type Adapter interface {
	Name() string
	Prepare(req PaymentRequest) (Payload, error)
	Send(ctx context.Context, payload Payload) (RawResponse, error)
	Parse(raw RawResponse) (PaymentResult, error)
}

// Configurable adapters report missing credentials.  Run calls
// CheckConfigured before Prepare.
type Configurable interface {
	CheckConfigured() error
}

// StatusFetcher adapters can look up a payment's current status by provider
// reference.  Used for poll-based reconciliation.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, ref string) (PaymentResult, error)
}

// Run executes the prepare/send/parse pipeline for a.  Errors other than
// configuration errors always come back as *AdapterError.
func Run(ctx context.Context, a Adapter, req PaymentRequest) (PaymentResult, error) {
	if c, ok := a.(Configurable); ok {
		if err := c.CheckConfigured(); err != nil {
			return PaymentResult{}, err
		}
	}

	payload, err := a.Prepare(req)
	if err != nil {
		return PaymentResult{}, asAdapterError(a.Name(), StagePrepare, err)
	}

	raw, err := a.Send(ctx, payload)
	if err != nil {
		return PaymentResult{}, asAdapterError(a.Name(), StageSend, err)
	}

	res, err := a.Parse(raw)
	if err != nil {
		return PaymentResult{}, asAdapterError(a.Name(), StageParse, err)
	}
	if res.Status == "" {
		res.Status = StatusProcessing
	}
	return res, nil
}

// asAdapterError keeps adapter-built errors as they are and wraps anything
// else, so a provider-specific error type can never escape the pipeline.
func asAdapterError(provider, stage string, err error) error {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, ErrNotConfigured) {
		return err
	}
	return NewAdapterError(provider, stage, "provider request failed", 0, err)
}
