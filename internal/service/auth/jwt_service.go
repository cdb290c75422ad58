// Package auth provides JWT issuance/validation and password hashing for
// the API's authentication endpoints.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Token types embedded in claims so a refresh token can never be used as
// an access token.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the validated content of a token.
type Claims struct {
	// UserID is the user the token was issued for.
	UserID uuid.UUID

	// TokenType is TokenTypeAccess or TokenTypeRefresh.
	TokenType string

	// ExpiresAt is when the token stops being valid.
	ExpiresAt time.Time
}

// JWTService defines operations for managing authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed access token for the user.
	GenerateToken(ctx context.Context, userID uuid.UUID) (string, error)

	// ValidateToken validates an access token and extracts its claims.
	// Returns ErrExpiredToken, ErrInvalidToken or ErrWrongTokenType on
	// failure.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)

	// GenerateRefreshToken creates a signed refresh token for the user.
	// Refresh tokens live longer and are exchanged for new token pairs.
	GenerateRefreshToken(ctx context.Context, userID uuid.UUID) (string, error)

	// ValidateRefreshToken validates a refresh token and extracts its
	// claims, with the same error contract as ValidateToken.
	ValidateRefreshToken(ctx context.Context, tokenString string) (*Claims, error)
}
