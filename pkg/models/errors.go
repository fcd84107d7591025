package models

// ErrorKind is the user-visible error taxonomy. The names are part of the
// API contract: they appear verbatim in progress events and session records.
type ErrorKind string

const (
	// ErrorKindNoStockData means the quote snapshot could not be obtained;
	// the session aborts before any LLM call.
	ErrorKindNoStockData ErrorKind = "no_stock_data"

	// ErrorKindAuthMissing means the provider credential is not configured.
	ErrorKindAuthMissing ErrorKind = "auth_missing"

	// ErrorKindTimeout means an LLM or evidence deadline was exceeded.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindProviderRefused means the upstream rejected the request
	// (4xx, content policy). Never retried.
	ErrorKindProviderRefused ErrorKind = "provider_refused"

	// ErrorKindTokenLimitExceeded is a specialisation of provider_refused:
	// the requested max output tokens exceeded the model context. Clamping
	// should prevent this; seeing it indicates a configuration bug.
	ErrorKindTokenLimitExceeded ErrorKind = "token_limit_exceeded"

	// ErrorKindTransport means a network-level failure talking to the
	// provider. Retryable.
	ErrorKindTransport ErrorKind = "transport"

	// ErrorKindCancelled means cooperative cancellation.
	ErrorKindCancelled ErrorKind = "cancelled"

	// ErrorKindConfigWrite means persisting the agent configuration failed.
	ErrorKindConfigWrite ErrorKind = "config_write_error"

	// ErrorKindInvariantViolation means a configuration change violated an
	// engine invariant (e.g. disabling a core agent).
	ErrorKindInvariantViolation ErrorKind = "invariant_violation"
)

// Retryable reports whether an error of this kind may be retried by the
// LLM client. Only timeouts and transport failures qualify.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindTimeout || k == ErrorKindTransport
}
