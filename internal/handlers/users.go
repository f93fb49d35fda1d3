package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/parishworks/lychgate/internal/auth"
	"github.com/parishworks/lychgate/internal/models"
	"github.com/parishworks/lychgate/internal/services"
	pkghttp "github.com/parishworks/lychgate/pkg/http"
)

// UserServiceInterface defines the profile and MFA enrollment contract.
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*services.UserResponse, error)
	InitiateMFAEnrollment(ctx context.Context, userID string) (*services.MFAEnrollmentResponse, error)
	ActivateMFA(ctx context.Context, userID, code string) error
}

// UserHandler handles profile and MFA enrollment HTTP requests
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// ActivateMFARequest carries the first authenticator code
type ActivateMFARequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// GetProfile handles GET /users/me
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	profile, err := h.service.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, profile)
}

// EnrollMFA handles POST /users/me/mfa/enroll
func (h *UserHandler) EnrollMFA(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	enrollment, err := h.service.InitiateMFAEnrollment(r.Context(), claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "MFA is already enabled")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, enrollment)
}

// ActivateMFA handles POST /users/me/mfa/activate
func (h *UserHandler) ActivateMFA(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ActivateMFARequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ActivateMFA(r.Context(), claims.UserID, req.Code); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "No pending enrollment")
		case errors.Is(err, models.ErrMFAInvalidCode):
			pkghttp.WriteBadRequest(w, "Invalid authenticator code")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
