package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims is the authenticated principal carried by access tokens. Token
// issuance belongs to the external SSO layer; this service only validates.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// DevLoginRequest authenticates a seeded user in non-production environments.
type DevLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// DevLoginResponse returns the issued token and user info.
type DevLoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}
