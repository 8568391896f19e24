package token

import (
	"context"
	"time"

	"gateway-service/internal/model"
)

// Repository is the persistence boundary for API tokens. The production
// implementation lives in internal/repository/scylla; MemoryRepository
// below serves tests and database-less development.
type Repository interface {
	Insert(ctx context.Context, t *model.APIToken) error
	// GetByHash returns ErrNotFound when no token carries the digest.
	GetByHash(ctx context.Context, secretHash string) (*model.APIToken, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.APIToken, error)
	// MarkRevoked reports false when the token is unknown, foreign, or
	// already revoked.
	MarkRevoked(ctx context.Context, ownerID, tokenID string) (bool, error)
	RevokeAllForOwner(ctx context.Context, ownerID string) (int, error)
	// UpdateLastUsed takes the whole token because backends keyed by
	// owner and by hash need more than the token ID to address it.
	UpdateLastUsed(ctx context.Context, t *model.APIToken, usedAt time.Time) error
}
