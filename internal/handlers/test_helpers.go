package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parishworks/lychgate/internal/auth"
	"github.com/parishworks/lychgate/internal/models"
	"github.com/parishworks/lychgate/internal/services"
	pkghttp "github.com/parishworks/lychgate/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, email, role string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Role:   role,
		Type:   "access",
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	ctx = context.WithValue(ctx, auth.TokenContextKey, "test_access_token")
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc        func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.LoginOutcome, error)
	LoginMFAFunc     func(ctx context.Context, email, resolverID, code, ipAddress, userAgent string) (*services.LoginOutcome, error)
	RegisterFunc     func(ctx context.Context, email, password, name string) (*services.AuthResponse, error)
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	LogoutFunc       func(ctx context.Context, accessToken string) error
	StatusFunc       func(ctx context.Context, email string) models.LockoutStatus
}

func (m *MockAuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*services.LoginOutcome, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredential
	}
	return m.LoginFunc(ctx, email, password, ipAddress, userAgent)
}

func (m *MockAuthService) LoginMFA(ctx context.Context, email, resolverID, code, ipAddress, userAgent string) (*services.LoginOutcome, error) {
	if m.LoginMFAFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginMFAFunc(ctx, email, resolverID, code, ipAddress, userAgent)
}

func (m *MockAuthService) Register(ctx context.Context, email, password, name string) (*services.AuthResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, email, password, name)
}

func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*services.AuthResponse, error) {
	if m.RefreshTokenFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.RefreshTokenFunc(ctx, refreshToken)
}

func (m *MockAuthService) Logout(ctx context.Context, accessToken string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, accessToken)
}

func (m *MockAuthService) Status(ctx context.Context, email string) models.LockoutStatus {
	if m.StatusFunc == nil {
		return models.LockoutStatus{}
	}
	return m.StatusFunc(ctx, email)
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	GetLockoutFunc    func(ctx context.Context, email string) (*services.LockoutView, error)
	UnlockAccountFunc func(ctx context.Context, email, adminID string) error
}

func (m *MockAdminService) GetLockout(ctx context.Context, email string) (*services.LockoutView, error) {
	if m.GetLockoutFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetLockoutFunc(ctx, email)
}

func (m *MockAdminService) UnlockAccount(ctx context.Context, email, adminID string) error {
	if m.UnlockAccountFunc == nil {
		return nil
	}
	return m.UnlockAccountFunc(ctx, email, adminID)
}

// MockUserService implements UserServiceInterface for testing
type MockUserService struct {
	GetProfileFunc            func(ctx context.Context, userID string) (*services.UserResponse, error)
	InitiateMFAEnrollmentFunc func(ctx context.Context, userID string) (*services.MFAEnrollmentResponse, error)
	ActivateMFAFunc           func(ctx context.Context, userID, code string) error
}

func (m *MockUserService) GetProfile(ctx context.Context, userID string) (*services.UserResponse, error) {
	if m.GetProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetProfileFunc(ctx, userID)
}

func (m *MockUserService) InitiateMFAEnrollment(ctx context.Context, userID string) (*services.MFAEnrollmentResponse, error) {
	if m.InitiateMFAEnrollmentFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.InitiateMFAEnrollmentFunc(ctx, userID)
}

func (m *MockUserService) ActivateMFA(ctx context.Context, userID, code string) error {
	if m.ActivateMFAFunc == nil {
		return nil
	}
	return m.ActivateMFAFunc(ctx, userID, code)
}
