package errors

import "errors"

var (
	ErrNotFound = errors.New("iftar date not found")

	ErrInvalidID = errors.New("invalid iftar date ID format")

	ErrReconciliationNotFound = errors.New("reconciliation record not found")

	// ErrStoreUnavailable wraps failures to reach the store. Callers may retry.
	ErrStoreUnavailable = errors.New("ledger store unavailable")
)
