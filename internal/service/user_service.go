package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskloom/taskloom/internal/domain"
	"github.com/taskloom/taskloom/internal/service/auth"
	"github.com/taskloom/taskloom/internal/store"
)

// ErrInvalidCredentials is returned for both an unknown email and a
// wrong password so login responses never reveal which one it was.
var ErrInvalidCredentials = errors.New("invalid email or password")

// TokenPair is an access/refresh token pair issued at login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserService implements account registration and the login/refresh
// token flow.
type UserService struct {
	users    store.UserStore
	hasher   auth.PasswordHasher
	verifier auth.PasswordVerifier
	jwt      auth.JWTService
}

// NewUserService creates a UserService.
func NewUserService(users store.UserStore, hasher auth.PasswordHasher, verifier auth.PasswordVerifier, jwt auth.JWTService) *UserService {
	return &UserService{
		users:    users,
		hasher:   hasher,
		verifier: verifier,
		jwt:      jwt,
	}
}

// Register creates an account for the given email and plaintext
// password. Returns store.ErrEmailExists when the email is taken.
func (s *UserService) Register(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := domain.NewUser(email, password)
	if err != nil {
		return nil, err
	}

	hashed, err := s.hasher.Hash(user.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	user.HashedPassword = hashed
	user.Password = ""

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies the credentials and issues a token pair. An unknown
// email and a wrong password both return ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, email, password string) (*domain.User, *TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := s.verifier.Compare(user.HashedPassword, password); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh exchanges a valid refresh token for a new token pair. The user
// must still exist; deleted accounts cannot refresh.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, auth.ErrInvalidToken
		}
		return nil, err
	}

	return s.issueTokens(ctx, user)
}

func (s *UserService) issueTokens(ctx context.Context, user *domain.User) (*TokenPair, error) {
	access, err := s.jwt.GenerateToken(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}
	refresh, err := s.jwt.GenerateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
