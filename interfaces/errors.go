package interfaces

import "errors"

// Failure classifications surfaced by the orchestrator and the executor.
var (
	// ErrConfiguration is returned when a provider or collaborator is not configured.
	// It is fatal and not retryable.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidCredential is returned for a malformed or undecodable JWT.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrSaltUnavailable is returned when the salt service fails.
	// The flow can be resumed from the salt step.
	ErrSaltUnavailable = errors.New("salt unavailable")

	// ErrProofUnavailable is returned when the proof service fails.
	// The flow can be resumed from the proof step.
	ErrProofUnavailable = errors.New("proof unavailable")

	// ErrSessionExpired is returned once the JWT expiry has passed. A new
	// authentication flow is required.
	ErrSessionExpired = errors.New("session expired")

	// ErrRejected is returned when the chain refuses a call. The message carries
	// the chain-reported reason.
	ErrRejected = errors.New("rejected by chain")

	// ErrNetwork marks transient transport failures, including timeouts.
	ErrNetwork = errors.New("network error")

	// ErrSigning is returned when no valid signing capability is available.
	ErrSigning = errors.New("signing error")
)

var (
	// ErrInvalidArgument is returned by call builders for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSessionNotFound is returned by session stores holding no session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrObjectNotFound is returned when an object id does not resolve on chain.
	ErrObjectNotFound = errors.New("object not found")

	// ErrTransactionNotFound is returned by ledgers for unknown record ids.
	ErrTransactionNotFound = errors.New("transaction not found")
)
