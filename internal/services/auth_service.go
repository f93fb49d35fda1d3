package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/parishworks/lychgate/internal/auth"
	"github.com/parishworks/lychgate/internal/identity"
	"github.com/parishworks/lychgate/internal/metrics"
	"github.com/parishworks/lychgate/internal/models"
	pkgauth "github.com/parishworks/lychgate/pkg/auth"
	pkglogger "github.com/parishworks/lychgate/pkg/logger"
)

// UserRepository defines the user persistence operations the auth service needs.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// TokenRevocationRepository defines the interface for token revocation operations
type TokenRevocationRepository interface {
	RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthService orchestrates login around the attempt recorder: the lockout
// gate runs before any credential work, and every failed credential check
// is counted before the error reaches the client.
type AuthService struct {
	users       UserRepository
	revokeRepo  TokenRevocationRepository
	provider    identity.Provider
	recorder    *AttemptRecorder
	tm          *auth.TokenManager
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users UserRepository,
	revokeRepo TokenRevocationRepository,
	provider identity.Provider,
	recorder *AttemptRecorder,
	tm *auth.TokenManager,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		users:       users,
		revokeRepo:  revokeRepo,
		provider:    provider,
		recorder:    recorder,
		tm:          tm,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	MFAEnabled bool   `json:"mfa_enabled"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *UserResponse `json:"user"`
}

// LoginOutcome is the result of a login step. Exactly one of Response and
// Challenge is set on success; Status always carries the lockout state the
// handler needs for countdown and Retry-After headers.
type LoginOutcome struct {
	Response  *AuthResponse
	Challenge *identity.MFAChallenge
	Status    models.LockoutStatus
}

// Login authenticates a user. The lockout check runs first so a blocked
// account never reaches the credential provider, and a failed credential
// check is recorded before the error is returned.
func (s *AuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*LoginOutcome, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		s.logger.Warn("login attempt with empty email")
		return nil, models.ErrInvalidCredential
	}

	if outcome, err := s.gate(ctx, email, ipAddress); err != nil {
		return outcome, err
	}

	result, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return s.handleSignInError(ctx, err, email, ipAddress, userAgent)
	}

	return s.handleSignInResult(ctx, result, email, ipAddress, userAgent)
}

// LoginMFA completes a pending second-factor challenge. A wrong code counts
// against the same lockout record as a wrong password.
func (s *AuthService) LoginMFA(ctx context.Context, email, resolverID, code, ipAddress, userAgent string) (*LoginOutcome, error) {
	email = models.NormalizeEmail(email)
	if email == "" || resolverID == "" {
		return nil, models.ErrInvalidCredential
	}

	if outcome, err := s.gate(ctx, email, ipAddress); err != nil {
		return outcome, err
	}

	result, err := s.provider.ResolveMFA(ctx, resolverID, code)
	if err != nil {
		return s.handleSignInError(ctx, err, email, ipAddress, userAgent)
	}

	return s.handleSignInResult(ctx, result, email, ipAddress, userAgent)
}

// gate rejects the attempt up front when the account is blocked. The
// returned outcome carries the status so the handler can render countdown
// fields without a second store read.
func (s *AuthService) gate(ctx context.Context, email, ipAddress string) (*LoginOutcome, error) {
	status := s.recorder.CheckStatus(ctx, email)
	if !status.IsBlocked {
		return nil, nil
	}

	metrics.LoginAttempts.WithLabelValues(metrics.OutcomeBlocked).Inc()
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_rejected",
		Email:         email,
		IPAddress:     ipAddress,
		FailureReason: "account_blocked",
		Success:       false,
	})

	if status.Permanent {
		return &LoginOutcome{Status: status}, models.ErrAccountPermanentlyLocked
	}
	return &LoginOutcome{Status: status}, models.ErrAccountLocked
}

// handleSignInError routes provider failures. Invalid credentials and wrong
// MFA codes are counted; an upstream throttle is surfaced untouched so the
// provider's own limiter and ours never double-penalize one attempt.
func (s *AuthService) handleSignInError(ctx context.Context, signInErr error, email, ipAddress, userAgent string) (*LoginOutcome, error) {
	switch {
	case errors.Is(signInErr, models.ErrInvalidCredential), errors.Is(signInErr, models.ErrMFAInvalidCode):
		status := s.recorder.RecordFailure(ctx, email)
		metrics.LoginAttempts.WithLabelValues(metrics.OutcomeInvalidCredential).Inc()
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Email:         email,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		s.timing.Wait(false)

		if status.IsBlocked {
			if status.Permanent {
				return &LoginOutcome{Status: status}, models.ErrAccountPermanentlyLocked
			}
			return &LoginOutcome{Status: status}, models.ErrAccountLocked
		}
		return &LoginOutcome{Status: status}, signInErr

	case errors.Is(signInErr, models.ErrUpstreamThrottled):
		metrics.LoginAttempts.WithLabelValues(metrics.OutcomeUpstreamThrottled).Inc()
		s.logger.Warn("sign-in throttled upstream", slog.String("email", email))
		return nil, models.ErrUpstreamThrottled

	default:
		s.logger.Error("sign-in failed", slog.Any("error", signInErr))
		return nil, models.ErrInternalServer
	}
}

func (s *AuthService) handleSignInResult(ctx context.Context, result *identity.SignInResult, email, ipAddress, userAgent string) (*LoginOutcome, error) {
	if result.Kind == identity.KindMFAChallenge {
		// The password was correct but the login is not complete yet, so
		// counters stay where they are until the challenge resolves.
		metrics.LoginAttempts.WithLabelValues(metrics.OutcomeMFAChallenge).Inc()
		s.logger.Info("mfa challenge issued", slog.String("email", email))
		return &LoginOutcome{Challenge: result.Challenge}, models.ErrMFARequired
	}

	s.recorder.RecordSuccess(ctx, email)

	response, err := s.issueTokens(result.User)
	if err != nil {
		return nil, err
	}

	metrics.LoginAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.logger.Info("user logged in", slog.String("user_id", result.User.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    result.User.ID,
		Email:     email,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})

	return &LoginOutcome{Response: response}, nil
}

// Status reports the lockout state for an email without counting an attempt.
// Clients poll it to reconcile their local countdown with the server.
func (s *AuthService) Status(ctx context.Context, email string) models.LockoutStatus {
	return s.recorder.CheckStatus(ctx, models.NormalizeEmail(email))
}

// Register creates a new user account
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*AuthResponse, error) {
	email = models.NormalizeEmail(email)
	name = strings.TrimSpace(name)

	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration failed: user already exists")
		return nil, models.ErrConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check if user exists", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hashedPassword,
		Name:         name,
		Role:         "parishioner",
	}

	createdUser, err := s.users.Create(ctx, user)
	if err != nil {
		s.logger.Error("failed to create user", slog.Any("error", err))
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		return nil, models.ErrInternalServer
	}

	response, err := s.issueTokens(createdUser)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", createdUser.ID))
	s.auditLogger.LogAccountAction("user_registered", createdUser.ID, "", nil)

	return response, nil
}

// RefreshToken generates a new token pair from a refresh token
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*AuthResponse, error) {
	if refreshTokenString = strings.TrimSpace(refreshTokenString); refreshTokenString == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := s.tm.ValidateToken(refreshTokenString)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	if claims.Type != "refresh" {
		s.logger.Warn("refresh attempt with non-refresh token", slog.String("user_id", claims.UserID))
		return nil, models.ErrUnauthorized
	}

	revoked, err := s.revokeRepo.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		s.logger.Error("failed to check token revocation", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if revoked {
		s.logger.Info("refresh attempt with revoked token", slog.String("user_id", claims.UserID))
		return nil, models.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found for token refresh", slog.String("user_id", claims.UserID))
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for token refresh", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// A permanent block revokes refresh as well as login.
	status := s.recorder.CheckStatus(ctx, user.Email)
	if status.IsBlocked {
		s.logger.Info("token refresh blocked by lockout", slog.String("user_id", user.ID))
		return nil, models.ErrUnauthorized
	}

	response, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("token refreshed", slog.String("user_id", user.ID))
	return response, nil
}

// Logout revokes the current access token
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.tm.ValidateToken(accessToken)
	if err != nil {
		return models.ErrUnauthorized
	}

	expiresAt := claims.ExpiresAt.Time
	err = s.revokeRepo.RevokeToken(ctx, claims.ID, claims.UserID, claims.Type, expiresAt, "logout")
	if err != nil {
		s.logger.Error("failed to revoke token", slog.String("jti", claims.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user logged out", slog.String("user_id", claims.UserID))
	return nil
}

func (s *AuthService) issueTokens(user *models.User) (*AuthResponse, error) {
	accessToken, err := s.tm.GenerateAccessToken(user)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(user)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// userModelToResponse converts a user model to response DTO
func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		Role:       user.Role,
		MFAEnabled: user.MFAEnabled,
		CreatedAt:  user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  user.UpdatedAt.Format(time.RFC3339),
	}
}
