package token

import (
	"context"
	"sync"
	"time"

	"gateway-service/internal/model"
)

// MemoryRepository keeps tokens in process memory. State is lost on
// restart and not shared between instances; single-instance use only.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*model.APIToken
	byHash  map[string]string // secret hash -> token ID
	byOwner map[string][]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*model.APIToken),
		byHash:  make(map[string]string),
		byOwner: make(map[string][]string),
	}
}

func (r *MemoryRepository) Insert(_ context.Context, t *model.APIToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *t
	r.byID[t.TokenID] = &cp
	r.byHash[t.SecretHash] = t.TokenID
	r.byOwner[t.OwnerUserID] = append(r.byOwner[t.OwnerUserID], t.TokenID)
	return nil
}

func (r *MemoryRepository) GetByHash(_ context.Context, secretHash string) (*model.APIToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHash[secretHash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepository) ListByOwner(_ context.Context, ownerID string) ([]*model.APIToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byOwner[ownerID]
	out := make([]*model.APIToken, 0, len(ids))
	for _, id := range ids {
		cp := *r.byID[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryRepository) MarkRevoked(_ context.Context, ownerID, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[tokenID]
	if !ok || t.OwnerUserID != ownerID || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (r *MemoryRepository) RevokeAllForOwner(_ context.Context, ownerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, id := range r.byOwner[ownerID] {
		if t := r.byID[id]; !t.Revoked {
			t.Revoked = true
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) UpdateLastUsed(_ context.Context, tok *model.APIToken, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.byID[tok.TokenID]; ok {
		ts := usedAt
		t.LastUsedAt = &ts
	}
	return nil
}
