package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"gateway-service/internal/model"
	"gateway-service/internal/token"
	"gateway-service/internal/util"
)

// TokenRepository persists API tokens across the two token tables.
// Writes go through logged batches so the owner view and the hash view
// cannot drift.
type TokenRepository struct {
	client *ScyllaClient
}

func NewTokenRepository(client *ScyllaClient) *TokenRepository {
	return &TokenRepository{client: client}
}

func (r *TokenRepository) Insert(ctx context.Context, t *model.APIToken) error {
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Stmts.InsertTokenByOwner,
		t.OwnerUserID, t.TokenID, t.Name, t.SecretHash,
		t.CreatedAt, t.ExpiresAt, lastUsedValue(t.LastUsedAt), t.Revoked)

	batch.Query(r.client.Stmts.InsertTokenByHash,
		t.SecretHash, t.TokenID, t.OwnerUserID, t.Name,
		t.CreatedAt, t.ExpiresAt, lastUsedValue(t.LastUsedAt), t.Revoked)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to insert API token",
			zap.String("token_id", t.TokenID),
			zap.String("owner_user_id", t.OwnerUserID),
			zap.Error(err))
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

func (r *TokenRepository) GetByHash(ctx context.Context, secretHash string) (*model.APIToken, error) {
	t := &model.APIToken{}
	var lastUsed time.Time

	query := r.client.Query(ctx, r.client.Stmts.GetTokenByHash, secretHash)
	err := r.client.ScanWithRetry(query,
		&t.SecretHash, &t.TokenID, &t.OwnerUserID, &t.Name,
		&t.CreatedAt, &t.ExpiresAt, &lastUsed, &t.Revoked)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, token.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token by hash: %w", err)
	}

	if !lastUsed.IsZero() {
		t.LastUsedAt = &lastUsed
	}
	return t, nil
}

func (r *TokenRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.APIToken, error) {
	iter := r.client.Query(ctx, r.client.Stmts.ListTokensByOwner, ownerID).Iter()

	var out []*model.APIToken
	for {
		t := &model.APIToken{}
		var lastUsed time.Time
		if !iter.Scan(&t.OwnerUserID, &t.TokenID, &t.Name, &t.SecretHash,
			&t.CreatedAt, &t.ExpiresAt, &lastUsed, &t.Revoked) {
			break
		}
		if !lastUsed.IsZero() {
			t.LastUsedAt = &lastUsed
		}
		out = append(out, t)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	// Clustering is by token_id; callers expect creation order.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.Before(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (r *TokenRepository) MarkRevoked(ctx context.Context, ownerID, tokenID string) (bool, error) {
	t := &model.APIToken{}
	var lastUsed time.Time

	query := r.client.Query(ctx, r.client.Stmts.GetTokenByOwnerID, ownerID, tokenID)
	err := r.client.ScanWithRetry(query,
		&t.OwnerUserID, &t.TokenID, &t.Name, &t.SecretHash,
		&t.CreatedAt, &t.ExpiresAt, &lastUsed, &t.Revoked)
	if err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up token: %w", err)
	}
	if t.Revoked {
		return false, nil
	}

	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(r.client.Stmts.RevokeTokenByOwner, ownerID, tokenID)
	batch.Query(r.client.Stmts.RevokeTokenByHash, t.SecretHash)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to revoke API token",
			zap.String("token_id", tokenID),
			zap.String("owner_user_id", ownerID),
			zap.Error(err))
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	return true, nil
}

func (r *TokenRepository) RevokeAllForOwner(ctx context.Context, ownerID string) (int, error) {
	tokens, err := r.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	count := 0
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	for _, t := range tokens {
		if t.Revoked {
			continue
		}
		batch.Query(r.client.Stmts.RevokeTokenByOwner, ownerID, t.TokenID)
		batch.Query(r.client.Stmts.RevokeTokenByHash, t.SecretHash)
		count++
	}
	if count == 0 {
		return 0, nil
	}

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to revoke all API tokens",
			zap.String("owner_user_id", ownerID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to revoke tokens: %w", err)
	}
	return count, nil
}

func (r *TokenRepository) UpdateLastUsed(ctx context.Context, t *model.APIToken, usedAt time.Time) error {
	batch := r.client.Batch(gocql.UnloggedBatch).WithContext(ctx)
	batch.Query(r.client.Stmts.TouchTokenByOwner, usedAt, t.OwnerUserID, t.TokenID)
	batch.Query(r.client.Stmts.TouchTokenByHash, usedAt, t.SecretHash)

	if err := r.client.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to update last_used_at: %w", err)
	}
	return nil
}

func lastUsedValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
