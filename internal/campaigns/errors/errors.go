package errors

import "errors"

var (
	ErrNotFound = errors.New("campaign not found")

	ErrNoActiveCampaign = errors.New("no active campaign")

	ErrStoreUnavailable = errors.New("campaign store unavailable")
)
