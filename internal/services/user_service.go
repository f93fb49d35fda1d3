package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/parishworks/lychgate/internal/identity"
	"github.com/parishworks/lychgate/internal/models"
)

const enrollmentTTL = 10 * time.Minute

// MFASecretWriter stores a verified TOTP secret for a user.
type MFASecretWriter interface {
	SetMFASecret(ctx context.Context, userID string, secretEnc, nonce []byte) error
}

// UserService handles parishioner profile lookups and two-step TOTP
// enrollment. A generated secret is held pending in memory and is only
// written to the user once the first code verifies.
type UserService struct {
	users   UserRepository
	secrets MFASecretWriter
	totp    *identity.TOTPManager
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingEnrollment
}

type pendingEnrollment struct {
	enrollment *identity.Enrollment
	expiresAt  time.Time
}

// NewUserService creates a new UserService
func NewUserService(users UserRepository, secrets MFASecretWriter, totp *identity.TOTPManager, logger *slog.Logger) *UserService {
	return &UserService{
		users:   users,
		secrets: secrets,
		totp:    totp,
		logger:  logger,
		pending: make(map[string]pendingEnrollment),
	}
}

// GetProfile returns the caller's own profile.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return userModelToResponse(user), nil
}

// MFAEnrollmentResponse carries the provisioning QR for an authenticator app.
type MFAEnrollmentResponse struct {
	QRDataURL string `json:"qr_data_url"`
}

// InitiateMFAEnrollment generates a fresh TOTP secret and returns the
// provisioning QR. The secret stays pending until the first code verifies.
func (s *UserService) InitiateMFAEnrollment(ctx context.Context, userID string) (*MFAEnrollmentResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user for mfa enrollment", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if user.MFAEnabled {
		return nil, models.ErrConflict
	}

	enrollment, err := s.totp.GenerateEnrollment(user.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP enrollment", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.mu.Lock()
	s.prunePendingLocked()
	s.pending[userID] = pendingEnrollment{
		enrollment: enrollment,
		expiresAt:  time.Now().Add(enrollmentTTL),
	}
	s.mu.Unlock()

	s.logger.Info("mfa enrollment initiated", slog.String("user_id", userID))
	return &MFAEnrollmentResponse{QRDataURL: enrollment.QRDataURL}, nil
}

// ActivateMFA verifies the first authenticator code and commits the pending
// secret. The pending enrollment survives a wrong code so the user can retry.
func (s *UserService) ActivateMFA(ctx context.Context, userID, code string) error {
	s.mu.Lock()
	entry, ok := s.pending[userID]
	if ok && time.Now().After(entry.expiresAt) {
		delete(s.pending, userID)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return models.ErrNotFound
	}

	valid, err := s.totp.ValidateCode([]byte(entry.enrollment.Secret), code, time.Now())
	if err != nil {
		s.logger.Error("failed to validate TOTP code", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !valid {
		return models.ErrMFAInvalidCode
	}

	if err := s.secrets.SetMFASecret(ctx, userID, entry.enrollment.SecretEnc, entry.enrollment.Nonce); err != nil {
		s.logger.Error("failed to store mfa secret", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.mu.Lock()
	delete(s.pending, userID)
	s.mu.Unlock()

	s.logger.Info("mfa enabled", slog.String("user_id", userID))
	return nil
}

func (s *UserService) prunePendingLocked() {
	now := time.Now()
	for id, entry := range s.pending {
		if now.After(entry.expiresAt) {
			delete(s.pending, id)
		}
	}
}
