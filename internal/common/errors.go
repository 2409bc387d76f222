package common

import "errors"

// Callers should use errors.Is to match these values.
var (

	// repository specific errors
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// service specific errors
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")

	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// quota
	ErrLimitReached   = errors.New("generation limit reached")
	ErrAlreadyClaimed = errors.New("visitor already claimed by another user")

	// pricing and checkout
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrMissingCredentials   = errors.New("email and password are required")
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
	ErrIncludedUnavailable  = errors.New("included poster not available")

	// settlement
	ErrSignatureInvalid        = errors.New("invalid signature")
	ErrWebhookNotConfigured    = errors.New("webhook secret not configured")
	ErrAccountResolutionFailed = errors.New("account resolution failed")
)
