package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gateway-service/internal/hashing"
	"gateway-service/internal/model"
	"gateway-service/internal/util"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
)

// UserRepository is the persistence boundary for legacy users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.LegacyUser) error
	// GetUserByUsername returns ErrUserNotFound for unknown usernames.
	GetUserByUsername(ctx context.Context, username string) (*model.LegacyUser, error)
}

// LegacyAuthenticator keeps the pre-Firebase username/password flow
// alive: argon2id password hashes, HS256 bearer tokens with the
// username as subject.
type LegacyAuthenticator struct {
	users  UserRepository
	secret []byte
	expiry time.Duration
}

func NewLegacyAuthenticator(users UserRepository, secret []byte, expiry time.Duration) *LegacyAuthenticator {
	return &LegacyAuthenticator{
		users:  users,
		secret: secret,
		expiry: expiry,
	}
}

// Register creates a legacy account. Fails with ErrUsernameTaken when
// the username exists.
func (a *LegacyAuthenticator) Register(ctx context.Context, username, password string) error {
	if _, err := a.users.GetUserByUsername(ctx, username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("failed to check username: %w", err)
	}

	hash, err := hashing.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.LegacyUser{
		UserID:       uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("Legacy user registered",
		zap.String("user_id", user.UserID),
		zap.String("username", username))
	return nil
}

// Login checks the password and mints a short-lived bearer token.
func (a *LegacyAuthenticator) Login(ctx context.Context, username, password string) (string, error) {
	user, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to load user: %w", err)
	}

	ok, err := hashing.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return "", ErrInvalidCredentials
	}

	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   user.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates an HS256 bearer token and returns its subject.
func (a *LegacyAuthenticator) ParseToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
