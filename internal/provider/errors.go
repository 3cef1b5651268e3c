package provider

import "fmt"

// ConfigError indicates a provider could not be constructed from its
// configuration, e.g. a required credential is empty. It is a build-time
// failure, distinct from the runtime IsAvailable probe.
type ConfigError struct {
	Provider string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %s: invalid configuration: %s", e.Provider, e.Reason)
}

// NotSupportedError is returned by stub providers for every lifecycle
// operation. It is never retried.
type NotSupportedError struct {
	Provider  string
	Operation string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("provider %s: %s not yet implemented", e.Provider, e.Operation)
}

// NotAvailableError indicates the provider's health check failed; the caller
// should pick another provider.
type NotAvailableError struct {
	Provider string
	Reason   string
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("provider %s is not available: %s", e.Provider, e.Reason)
}

// NotFoundError indicates an unknown provider id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("provider %q not found", e.ID)
}

// TransientError wraps an I/O hiccup talking to a real runtime. Eligible for
// bounded orchestrator-level retry with backoff.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("provider %s: transient error: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError wraps a non-retryable runtime failure such as quota exceeded or
// access denied.
type FatalError struct {
	Provider string
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("provider %s: fatal error: %v", e.Provider, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
