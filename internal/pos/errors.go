package pos

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAdapter            = errors.New("payment adapter failure")
	ErrNotConfigured      = errors.New("payment adapter is not configured")
	ErrProviderNotFound   = errors.New("payment provider is not registered")
	ErrInvalidAdapterName = errors.New("adapter must define a unique name")
	ErrDuplicateAdapter   = errors.New("adapter name is already registered")
)

// Pipeline stages, used in AdapterError.
const (
	StagePrepare = "prepare"
	StageSend    = "send"
	StageParse   = "parse"
	StageStatus  = "status"
)

// AdapterError is the single error type that leaves an adapter pipeline for
// provider-side failures.  It matches ErrAdapter under errors.Is but does not
// unwrap to the underlying transport or provider error; that is available
// only through Cause, for diagnostic logging.
type AdapterError struct {
	Provider   string
	Stage      string
	StatusCode int    // provider HTTP status, 0 when the request never completed
	Message    string // safe to show callers
	cause      error
}

func NewAdapterError(provider, stage, msg string, statusCode int, cause error) *AdapterError {
	return &AdapterError{
		Provider:   provider,
		Stage:      stage,
		StatusCode: statusCode,
		Message:    msg,
		cause:      cause,
	}
}

func (e *AdapterError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pos adapter %s: %s", e.Provider, e.Stage)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *AdapterError) Is(target error) bool { return target == ErrAdapter }

// Cause returns the wrapped provider error.  Log it; never return it.
func (e *AdapterError) Cause() error { return e.cause }

// ConfigError reports the settings an adapter is missing.  It surfaces on
// first use, never at registration.
type ConfigError struct {
	Provider string
	Missing  []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pos adapter %q is not configured: missing %s",
		e.Provider, strings.Join(e.Missing, ", "))
}

func (e *ConfigError) Is(target error) bool { return target == ErrNotConfigured }

// ProviderNotFoundError lists every registered provider so the caller can
// see what was available.
type ProviderNotFoundError struct {
	Name      string
	Available []string
}

func (e *ProviderNotFoundError) Error() string {
	available := "none"
	if len(e.Available) > 0 {
		available = strings.Join(e.Available, ", ")
	}
	return fmt.Sprintf("pos adapter %q is not registered; available adapters: %s", e.Name, available)
}

func (e *ProviderNotFoundError) Is(target error) bool { return target == ErrProviderNotFound }
