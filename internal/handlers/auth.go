package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/parishworks/lychgate/internal/auth"
	"github.com/parishworks/lychgate/internal/identity"
	"github.com/parishworks/lychgate/internal/models"
	"github.com/parishworks/lychgate/internal/services"
	pkghttp "github.com/parishworks/lychgate/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, ipAddress, userAgent string) (*services.LoginOutcome, error)
	LoginMFA(ctx context.Context, email, resolverID, code, ipAddress, userAgent string) (*services.LoginOutcome, error)
	Register(ctx context.Context, email, password, name string) (*services.AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	Logout(ctx context.Context, accessToken string) error
	Status(ctx context.Context, email string) models.LockoutStatus
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginMFARequest completes a pending second-factor challenge
type LoginMFARequest struct {
	Email      string `json:"email" validate:"required,email"`
	ResolverID string `json:"resolver_id" validate:"required"`
	Code       string `json:"code" validate:"required,len=6,numeric"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,min=1"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Response DTOs

// LockoutStatusResponse mirrors the server lockout state for a client.
// BlockUntil is absent for permanent blocks; Permanent distinguishes them.
type LockoutStatusResponse struct {
	Attempts          int        `json:"attempts"`
	AttemptsRemaining int        `json:"attempts_remaining"`
	IsBlocked         bool       `json:"is_blocked"`
	BlockUntil        *time.Time `json:"block_until,omitempty"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
	Permanent         bool       `json:"permanent"`
}

// MFAChallengeResponse tells the client to collect a TOTP code
type MFAChallengeResponse struct {
	MFARequired bool   `json:"mfa_required"`
	ResolverID  string `json:"resolver_id"`
}

func lockoutStatusResponse(status models.LockoutStatus, now time.Time) LockoutStatusResponse {
	resp := LockoutStatusResponse{
		Attempts:          status.Attempts,
		AttemptsRemaining: status.AttemptsRemaining,
		IsBlocked:         status.IsBlocked,
		Permanent:         status.Permanent,
	}
	if status.BlockUntil != nil {
		until := *status.BlockUntil
		resp.BlockUntil = &until
		if secs := int(math.Ceil(until.Sub(now).Seconds())); secs > 0 {
			resp.RetryAfterSeconds = secs
		}
	}
	return resp
}

// writeBlocked renders a temporary block as 429 with a Retry-After header
// and a permanent block as 403 with a contact-support message and no
// countdown fields.
func writeBlocked(w http.ResponseWriter, status models.LockoutStatus) {
	if status.Permanent {
		pkghttp.WriteJSON(w, http.StatusForbidden, map[string]any{
			"error":   "account_permanently_locked",
			"message": "This account has been locked. Please contact parish support.",
			"lockout": lockoutStatusResponse(status, time.Now()),
		})
		return
	}

	resp := lockoutStatusResponse(status, time.Now())
	if resp.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfterSeconds))
	}
	pkghttp.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":   "account_locked",
		"message": "Too many failed login attempts. Please try again later.",
		"lockout": resp,
	})
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.AuthResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	outcome, err := h.service.Login(r.Context(), req.Email, req.Password, ipAddress, userAgent)
	h.writeLoginResult(w, outcome, err)
}

// LoginMFA completes a login with a TOTP code
// @Summary Complete MFA challenge
// @Accept json
// @Param request body LoginMFARequest true "MFA request"
// @Produce json
// @Success 200 {object} services.AuthResponse
// @Router /auth/login/mfa [post]
func (h *AuthHandler) LoginMFA(w http.ResponseWriter, r *http.Request) {
	var req LoginMFARequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	outcome, err := h.service.LoginMFA(r.Context(), req.Email, req.ResolverID, req.Code, ipAddress, userAgent)
	h.writeLoginResult(w, outcome, err)
}

// writeLoginResult maps a login outcome onto the wire. The generic
// invalid-credential message prevents account enumeration; the lockout
// payload still carries the remaining-attempts count.
func (h *AuthHandler) writeLoginResult(w http.ResponseWriter, outcome *services.LoginOutcome, err error) {
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredential), errors.Is(err, models.ErrMFAInvalidCode):
			payload := map[string]any{
				"error":   "invalid_credentials",
				"message": "Invalid email or password",
			}
			if outcome != nil {
				payload["lockout"] = lockoutStatusResponse(outcome.Status, time.Now())
			}
			pkghttp.WriteJSON(w, http.StatusUnauthorized, payload)
		case errors.Is(err, models.ErrAccountLocked), errors.Is(err, models.ErrAccountPermanentlyLocked):
			status := models.LockoutStatus{IsBlocked: true, Permanent: errors.Is(err, models.ErrAccountPermanentlyLocked)}
			if outcome != nil {
				status = outcome.Status
			}
			writeBlocked(w, status)
		case errors.Is(err, models.ErrMFARequired):
			var challenge *identity.MFAChallenge
			if outcome != nil {
				challenge = outcome.Challenge
			}
			if challenge == nil {
				pkghttp.WriteInternalError(w, "Internal server error")
				return
			}
			pkghttp.WriteJSON(w, http.StatusOK, MFAChallengeResponse{
				MFARequired: true,
				ResolverID:  challenge.ResolverID,
			})
		case errors.Is(err, models.ErrUpstreamThrottled):
			pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, outcome.Response)
}

// LockoutStatus reports the lockout state for an email without counting an
// attempt. Clients use it to reconcile their local countdown.
// @Summary Lockout status for an email
// @Param email query string true "Account email"
// @Produce json
// @Success 200 {object} LockoutStatusResponse
// @Router /auth/lockout-status [get]
func (h *AuthHandler) LockoutStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		pkghttp.WriteBadRequest(w, "email query parameter is required")
		return
	}

	status := h.service.Status(r.Context(), email)
	pkghttp.WriteJSON(w, http.StatusOK, lockoutStatusResponse(status, time.Now()))
}

// Register handles user registration
// @Summary User registration
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 201 {object} services.AuthResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	authResp, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			// Generic response to prevent account enumeration
			pkghttp.WriteConflict(w, "Registration could not be completed")
		case errors.Is(err, models.ErrInternalServer):
			pkghttp.WriteInternalError(w, "Internal server error")
		default:
			pkghttp.WriteBadRequest(w, err.Error())
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, authResp)
}

// RefreshToken handles token refresh
// @Summary Refresh access token
// @Accept json
// @Param request body RefreshTokenRequest true "Refresh token request"
// @Produce json
// @Success 200 {object} services.AuthResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	authResp, err := h.service.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Authentication failed")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, authResp)
}

// Logout handles user logout by revoking the access token
// @Summary User logout
// @Security BearerAuth
// @Success 204
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil || claims.Type != "access" {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	accessToken := auth.GetTokenFromContext(r)
	if accessToken == "" {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Logout(r.Context(), accessToken); err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Invalid token")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
