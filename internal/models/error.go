package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Identity provider signals
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrMFARequired       = errors.New("multi-factor challenge required")
	ErrMFAInvalidCode    = errors.New("invalid multi-factor code")
	// ErrUpstreamThrottled is the identity provider's own rate limiting signal.
	// It is surfaced directly and never counted against the local limiter.
	ErrUpstreamThrottled = errors.New("identity provider throttled the request")

	// Lockout states
	ErrAccountLocked            = errors.New("account is temporarily locked")
	ErrAccountPermanentlyLocked = errors.New("account is permanently locked")
)
