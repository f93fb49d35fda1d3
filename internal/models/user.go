package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is a parishioner or staff account
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	Name          string
	Role          string // "parishioner", "staff", "admin"
	MFAEnabled    bool
	MFASecretEnc  []byte // AES-GCM encrypted TOTP secret
	MFASecretNonc []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TokenClaims are the JWT claims issued on successful login
type TokenClaims struct {
	Type   string `json:"typ"` // "access" or "refresh"
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
