package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/parishworks/lychgate/internal/auth"
	"github.com/parishworks/lychgate/internal/services"
	pkghttp "github.com/parishworks/lychgate/pkg/http"
)

// AdminServiceInterface defines the lockout admin contract.
type AdminServiceInterface interface {
	GetLockout(ctx context.Context, email string) (*services.LockoutView, error)
	UnlockAccount(ctx context.Context, email, adminID string) error
}

// AdminLockoutHandler handles the support dashboard's lockout endpoints.
type AdminLockoutHandler struct {
	service AdminServiceInterface
}

// NewAdminLockoutHandler creates a new AdminLockoutHandler.
func NewAdminLockoutHandler(service AdminServiceInterface) *AdminLockoutHandler {
	return &AdminLockoutHandler{service: service}
}

// emailParam pulls the {email} path parameter. chi keeps it URL-encoded.
func emailParam(r *http.Request) string {
	raw := chi.URLParam(r, "email")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

// GetLockout handles GET /admin/lockouts/{email}
func (h *AdminLockoutHandler) GetLockout(w http.ResponseWriter, r *http.Request) {
	email := emailParam(r)
	if email == "" {
		pkghttp.WriteBadRequest(w, "email is required")
		return
	}

	view, err := h.service.GetLockout(r.Context(), email)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to retrieve lockout record")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, view)
}

// UnlockAccount handles POST /admin/lockouts/{email}/unlock
func (h *AdminLockoutHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	email := emailParam(r)
	if email == "" {
		pkghttp.WriteBadRequest(w, "email is required")
		return
	}

	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.UnlockAccount(r.Context(), email, claims.UserID); err != nil {
		pkghttp.WriteInternalError(w, "Failed to unlock account")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
