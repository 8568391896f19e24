package token

import "errors"

var (
	// ErrInvalidToken covers malformed, unknown, and revoked secrets.
	// Validation never distinguishes those cases to the caller.
	ErrInvalidToken = errors.New("invalid or unknown API token")

	// ErrExpired means the secret matched but the token is past its TTL.
	ErrExpired = errors.New("API token expired")

	// ErrLimitExceeded means the owner already holds the maximum number
	// of active tokens.
	ErrLimitExceeded = errors.New("maximum number of API tokens reached")

	// ErrNotFound means the token does not exist or does not belong to
	// the requesting owner.
	ErrNotFound = errors.New("API token not found")
)
