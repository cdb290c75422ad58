package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// jwtClaims is the wire format of our tokens: registered claims plus the
// user ID and token type.
type jwtClaims struct {
	UserID    uuid.UUID `json:"uid"`
	TokenType string    `json:"typ"`
	jwt.RegisteredClaims
}

// HMACJWTService implements JWTService with HS256 signing.
type HMACJWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewHMACJWTService creates a JWTService signing with the given secret.
func NewHMACJWTService(secret string, accessTTL, refreshTTL time.Duration) *HMACJWTService {
	return &HMACJWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

var _ JWTService = (*HMACJWTService)(nil)

// GenerateToken implements JWTService.GenerateToken.
func (s *HMACJWTService) GenerateToken(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.sign(userID, TokenTypeAccess, s.accessTTL)
}

// GenerateRefreshToken implements JWTService.GenerateRefreshToken.
func (s *HMACJWTService) GenerateRefreshToken(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.sign(userID, TokenTypeRefresh, s.refreshTTL)
}

// ValidateToken implements JWTService.ValidateToken.
func (s *HMACJWTService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	return s.validate(tokenString, TokenTypeAccess)
}

// ValidateRefreshToken implements JWTService.ValidateRefreshToken.
func (s *HMACJWTService) ValidateRefreshToken(ctx context.Context, tokenString string) (*Claims, error) {
	return s.validate(tokenString, TokenTypeRefresh)
}

// sign builds and signs a token of the given type.
func (s *HMACJWTService) sign(userID uuid.UUID, tokenType string, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	claims := jwtClaims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// validate parses a token and checks the signature, expiry and type.
func (s *HMACJWTService) validate(tokenString, wantType string) (*Claims, error) {
	var claims jwtClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != wantType {
		return nil, ErrWrongTokenType
	}

	return &Claims{
		UserID:    claims.UserID,
		TokenType: claims.TokenType,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
