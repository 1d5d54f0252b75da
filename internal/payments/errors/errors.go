package errors

import "errors"

var (
	ErrInvalidClaimToken = errors.New("invalid claim token")

	// ErrTokenMismatch means the token and the intent name different dates.
	ErrTokenMismatch = errors.New("claim token does not match payment intent")
)
