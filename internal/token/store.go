package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gateway-service/internal/config"
	"gateway-service/internal/model"
	"gateway-service/internal/util"
)

// SecretPrefix marks issued secrets so clients and logs can recognize
// them without ever revealing the random part.
const SecretPrefix = "dgw_"

const secretBytes = 32

// Store issues, lists, revokes and validates API tokens. Secrets are
// hashed with SHA-256 before storage; the digest is deterministic so the
// validation path can look tokens up by hash, and the final comparison
// is constant-time.
type Store struct {
	repo       Repository
	maxPerUser int
	defaultTTL time.Duration
	now        func() time.Time
}

func NewStore(repo Repository, cfg config.TokenConfig) *Store {
	return &Store{
		repo:       repo,
		maxPerUser: cfg.MaxPerUser,
		defaultTTL: time.Duration(cfg.DefaultTTLDays) * 24 * time.Hour,
		now:        time.Now,
	}
}

// Issue creates a new token for the owner and returns its metadata plus
// the plaintext secret. The secret is not retrievable afterwards.
func (s *Store) Issue(ctx context.Context, ownerID, name string, ttlDays int) (*model.APIToken, string, error) {
	existing, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to count existing tokens: %w", err)
	}

	now := s.now().UTC()
	active := 0
	for _, t := range existing {
		if t.Active(now) {
			active++
		}
	}
	if active >= s.maxPerUser {
		return nil, "", fmt.Errorf("%w: limit is %d", ErrLimitExceeded, s.maxPerUser)
	}

	secret, hash, err := generateSecret()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token secret: %w", err)
	}

	ttl := s.defaultTTL
	if ttlDays > 0 {
		ttl = time.Duration(ttlDays) * 24 * time.Hour
	}

	tok := &model.APIToken{
		TokenID:     uuid.New().String(),
		OwnerUserID: ownerID,
		Name:        name,
		SecretHash:  hash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	if err := s.repo.Insert(ctx, tok); err != nil {
		util.Error("Failed to store API token",
			zap.String("owner_user_id", ownerID),
			zap.Error(err))
		return nil, "", fmt.Errorf("failed to store API token: %w", err)
	}

	util.Info("API token issued",
		zap.String("token_id", tok.TokenID),
		zap.String("owner_user_id", ownerID),
		zap.Time("expires_at", tok.ExpiresAt))

	return tok, secret, nil
}

// List returns metadata for every token the owner holds, newest first.
func (s *Store) List(ctx context.Context, ownerID string) ([]model.APITokenInfo, error) {
	tokens, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	now := s.now().UTC()
	infos := make([]model.APITokenInfo, 0, len(tokens))
	for _, t := range tokens {
		infos = append(infos, t.Info(now))
	}
	for i, j := 0, len(infos)-1; i < j; i, j = i+1, j-1 {
		if infos[i].CreatedAt.Before(infos[j].CreatedAt) {
			infos[i], infos[j] = infos[j], infos[i]
		}
	}
	return infos, nil
}

// Revoke disables one token. Unknown, foreign, and already-revoked
// tokens all report ErrNotFound; nothing else is touched.
func (s *Store) Revoke(ctx context.Context, ownerID, tokenID string) error {
	revoked, err := s.repo.MarkRevoked(ctx, ownerID, tokenID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if !revoked {
		return ErrNotFound
	}

	util.Info("API token revoked",
		zap.String("token_id", tokenID),
		zap.String("owner_user_id", ownerID))
	return nil
}

// RevokeAll disables every active token the owner holds and returns the
// number revoked.
func (s *Store) RevokeAll(ctx context.Context, ownerID string) (int, error) {
	count, err := s.repo.RevokeAllForOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke tokens: %w", err)
	}

	util.Info("All API tokens revoked",
		zap.String("owner_user_id", ownerID),
		zap.Int("count", count))
	return count, nil
}

// Validate checks a presented secret and returns the token it belongs
// to. Expiry is checked here, lazily; there is no background sweep.
func (s *Store) Validate(ctx context.Context, secret string) (*model.APIToken, error) {
	hash := HashSecret(secret)

	tok, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("token lookup failed: %w", err)
	}

	// The lookup already matched on the digest, but the equality that
	// gates acceptance must not leak timing.
	if subtle.ConstantTimeCompare([]byte(tok.SecretHash), []byte(hash)) != 1 {
		return nil, ErrInvalidToken
	}

	if tok.Revoked {
		return nil, ErrInvalidToken
	}

	now := s.now().UTC()
	if !now.Before(tok.ExpiresAt) {
		return nil, ErrExpired
	}

	if err := s.repo.UpdateLastUsed(ctx, tok, now); err != nil {
		// Best effort; a stale last_used_at must not fail the request.
		util.Warn("Failed to update token last_used_at",
			zap.String("token_id", tok.TokenID),
			zap.Error(err))
	}
	tok.LastUsedAt = &now

	return tok, nil
}

// HashSecret returns the storable digest of a plaintext secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func generateSecret() (secret, hash string, err error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	secret = SecretPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return secret, HashSecret(secret), nil
}
