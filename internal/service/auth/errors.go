package auth

import "errors"

// Common authentication service errors.
var (
	// ErrInvalidToken indicates the token is malformed or its signature
	// does not match.
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired.
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrWrongTokenType indicates an access token was presented where a
	// refresh token was expected, or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")
)
