package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidSignal      = errors.New("invalid signal")
	ErrDuplicateSignal    = errors.New("duplicate signal")
	ErrStatusRegression   = errors.New("signal status cannot move backwards")
	ErrVenueUnavailable   = errors.New("execution venue unavailable")
	ErrOrderRejected      = errors.New("order rejected by venue")
	ErrInsufficientMargin = errors.New("insufficient free margin")
	ErrMissingCredentials = errors.New("venue credentials not configured")
)
