// Package errdefs defines the error kinds surfaced by the warm-up core.
// Callers classify with errors.Is; the API layer maps each kind to an
// HTTP status in exactly one place.
package errdefs

import "errors"

var (
	// ErrInvalidInput means a request payload violates schema or preconditions.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means a referenced id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState means the operation is not allowed in the entity's
	// current state (e.g. mutating a completed campaign).
	ErrInvalidState = errors.New("invalid state")

	// ErrTransport means an SMTP or IMAP call failed (timeout, auth, network).
	// The scheduler records it as a per-slot bounce; the conversation engine
	// as a per-message skip. It never aborts a whole batch.
	ErrTransport = errors.New("transport failure")

	// ErrProviderExhausted means every AI key denied or errored. The
	// generator transparently degrades to template content, so this kind
	// only appears in logs.
	ErrProviderExhausted = errors.New("provider exhausted")

	// ErrRateLimited means an external request limit was hit. Internal to
	// the generator/ledger pair; never surfaced to API callers.
	ErrRateLimited = errors.New("rate limited")

	// ErrEncryptionUnavailable means ENCRYPTION_KEY is missing on the
	// encrypt path. Account creation fails rather than persist plaintext.
	ErrEncryptionUnavailable = errors.New("encryption unavailable")

	// ErrIntegrity means a database constraint tripped (duplicate email,
	// foreign key).
	ErrIntegrity = errors.New("integrity violation")
)
