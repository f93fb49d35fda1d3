// Package identity is the credential-verification collaborator of the login
// flow. The rate limiter never inspects provider internals; it reacts only
// to the tagged result and the sentinel errors defined in internal/models.
package identity

import (
	"context"

	"github.com/parishworks/lychgate/internal/models"
)

// ResultKind tags a SignInResult.
type ResultKind int

const (
	// KindPassword means the password alone satisfied the sign-in.
	KindPassword ResultKind = iota
	// KindMFAChallenge means the password was correct but a second factor
	// is pending; the challenge carries an opaque resolver handle.
	KindMFAChallenge
)

// MFAChallenge is the handle a client passes back to resolve the second
// factor. ResolverID is opaque; clients never introspect it.
type MFAChallenge struct {
	ResolverID string `json:"resolver_id"`
}

// SignInResult is the tagged outcome of a successful credential check.
type SignInResult struct {
	Kind      ResultKind
	User      *models.User
	Challenge *MFAChallenge
}

// Provider verifies credentials. Implementations signal failure with the
// sentinel errors models.ErrInvalidCredential, models.ErrUpstreamThrottled
// and models.ErrMFAInvalidCode.
type Provider interface {
	// SignIn checks email and password. A user with MFA enabled gets a
	// KindMFAChallenge result instead of an immediate credential.
	SignIn(ctx context.Context, email, password string) (*SignInResult, error)

	// ResolveMFA completes a pending challenge with a TOTP code.
	ResolveMFA(ctx context.Context, resolverID, code string) (*SignInResult, error)
}
