package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parishworks/lychgate/internal/models"
	pkgauth "github.com/parishworks/lychgate/pkg/auth"
)

// challengeTTL bounds how long an unresolved MFA challenge stays valid.
const challengeTTL = 5 * time.Minute

// UserStore is the subset of the user repository the provider needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// LocalProvider verifies credentials against the parish user table:
// bcrypt for passwords, TOTP for the optional second factor.
type LocalProvider struct {
	users  UserStore
	totp   *TOTPManager
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]pendingChallenge
}

type pendingChallenge struct {
	userID    string
	expiresAt time.Time
}

// NewLocalProvider creates a provider. totp may be nil when MFA is not
// configured; MFA-enabled users then fail closed with ErrUnauthorized.
func NewLocalProvider(users UserStore, totp *TOTPManager, logger *slog.Logger) *LocalProvider {
	return &LocalProvider{
		users:   users,
		totp:    totp,
		logger:  logger,
		now:     time.Now,
		pending: make(map[string]pendingChallenge),
	}
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	user, err := p.users.GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Burn a hash comparison so unknown accounts take as long
			// as wrong passwords.
			pkgauth.CompareDummyPassword(password)
			return nil, models.ErrInvalidCredential
		}
		p.logger.Error("failed to load user for sign-in", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, models.ErrInvalidCredential
	}

	if user.MFAEnabled {
		if p.totp == nil {
			p.logger.Error("MFA-enabled user but no TOTP manager configured",
				slog.String("user_id", user.ID))
			return nil, models.ErrUnauthorized
		}
		return &SignInResult{
			Kind:      KindMFAChallenge,
			Challenge: &MFAChallenge{ResolverID: p.createChallenge(user.ID)},
		}, nil
	}

	return &SignInResult{Kind: KindPassword, User: user}, nil
}

func (p *LocalProvider) ResolveMFA(ctx context.Context, resolverID, code string) (*SignInResult, error) {
	userID, ok := p.peekChallenge(resolverID)
	if !ok {
		return nil, models.ErrUnauthorized
	}

	user, err := p.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		p.logger.Error("failed to load user for MFA resolve", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	secret, err := p.totp.DecryptSecret(user.MFASecretEnc, user.MFASecretNonc)
	if err != nil {
		p.logger.Error("failed to decrypt MFA secret",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	valid, err := p.totp.ValidateCode(secret, code, p.now())
	if err != nil {
		return nil, models.ErrInternalServer
	}
	if !valid {
		// The challenge stays pending so the user can retry until it expires.
		return nil, models.ErrMFAInvalidCode
	}

	p.consumeChallenge(resolverID)
	return &SignInResult{Kind: KindPassword, User: user}, nil
}

func (p *LocalProvider) createChallenge(userID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pruneLocked()

	id := uuid.New().String()
	p.pending[id] = pendingChallenge{
		userID:    userID,
		expiresAt: p.now().Add(challengeTTL),
	}
	return id
}

func (p *LocalProvider) peekChallenge(resolverID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.pending[resolverID]
	if !ok || p.now().After(ch.expiresAt) {
		delete(p.pending, resolverID)
		return "", false
	}
	return ch.userID, true
}

// consumeChallenge removes a challenge once it resolves; it never resolves twice.
func (p *LocalProvider) consumeChallenge(resolverID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, resolverID)
}

func (p *LocalProvider) pruneLocked() {
	now := p.now()
	for id, ch := range p.pending {
		if now.After(ch.expiresAt) {
			delete(p.pending, id)
		}
	}
}
