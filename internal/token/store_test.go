package token

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gateway-service/internal/config"
)

func newTestStore(maxPerUser int) *Store {
	return NewStore(NewMemoryRepository(), config.TokenConfig{
		MaxPerUser:     maxPerUser,
		DefaultTTLDays: 30,
	})
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	s := newTestStore(5)
	ctx := context.Background()

	tok, secret, err := s.Issue(ctx, "user-1", "ci token", 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.HasPrefix(secret, SecretPrefix) {
		t.Fatalf("secret %q missing prefix %q", secret, SecretPrefix)
	}
	if tok.SecretHash == secret {
		t.Fatal("plaintext secret stored as hash")
	}

	// Validation succeeds repeatedly while the token is live.
	for i := 0; i < 3; i++ {
		got, err := s.Validate(ctx, secret)
		if err != nil {
			t.Fatalf("Validate #%d: %v", i+1, err)
		}
		if got.TokenID != tok.TokenID {
			t.Fatalf("Validate returned token %s, want %s", got.TokenID, tok.TokenID)
		}
		if got.LastUsedAt == nil {
			t.Fatal("LastUsedAt not set after validation")
		}
	}

	// A mutated secret must not validate.
	if _, err := s.Validate(ctx, secret+"x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("mutated secret: got %v, want ErrInvalidToken", err)
	}
}

func TestIssueCapAndReissueAfterRevoke(t *testing.T) {
	s := newTestStore(2)
	ctx := context.Background()

	first, _, err := s.Issue(ctx, "user-1", "a", 0)
	if err != nil {
		t.Fatalf("Issue a: %v", err)
	}
	if _, _, err := s.Issue(ctx, "user-1", "b", 0); err != nil {
		t.Fatalf("Issue b: %v", err)
	}

	if _, _, err := s.Issue(ctx, "user-1", "c", 0); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("over-cap issue: got %v, want ErrLimitExceeded", err)
	}

	// A different owner is unaffected by the cap.
	if _, _, err := s.Issue(ctx, "user-2", "other", 0); err != nil {
		t.Fatalf("Issue for other owner: %v", err)
	}

	if err := s.Revoke(ctx, "user-1", first.TokenID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, _, err := s.Issue(ctx, "user-1", "c", 0); err != nil {
		t.Fatalf("issue after revoke: %v", err)
	}
}

func TestRevokeUnknownAndRepeated(t *testing.T) {
	s := newTestStore(5)
	ctx := context.Background()

	tok, _, err := s.Issue(ctx, "user-1", "a", 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	keep, keepSecret, err := s.Issue(ctx, "user-1", "b", 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := s.Revoke(ctx, "user-1", "no-such-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown token: got %v, want ErrNotFound", err)
	}
	if err := s.Revoke(ctx, "someone-else", tok.TokenID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign token: got %v, want ErrNotFound", err)
	}

	if err := s.Revoke(ctx, "user-1", tok.TokenID); err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	if err := s.Revoke(ctx, "user-1", tok.TokenID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second revoke: got %v, want ErrNotFound", err)
	}

	// Sibling token remains valid throughout.
	if _, err := s.Validate(ctx, keepSecret); err != nil {
		t.Fatalf("sibling token invalidated by revoke: %v (token %s)", err, keep.TokenID)
	}
}

func TestRevokeAllCountsActiveOnly(t *testing.T) {
	s := newTestStore(5)
	ctx := context.Background()

	a, _, _ := s.Issue(ctx, "user-1", "a", 0)
	s.Issue(ctx, "user-1", "b", 0)
	s.Issue(ctx, "user-1", "c", 0)
	if err := s.Revoke(ctx, "user-1", a.TokenID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	count, err := s.RevokeAll(ctx, "user-1")
	if err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if count != 2 {
		t.Fatalf("RevokeAll count = %d, want 2", count)
	}

	infos, err := s.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, info := range infos {
		if info.IsActive {
			t.Fatalf("token %s still active after RevokeAll", info.TokenID)
		}
	}
}

func TestValidateExpired(t *testing.T) {
	s := newTestStore(5)
	ctx := context.Background()

	_, secret, err := s.Issue(ctx, "user-1", "short", 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	base := time.Now()
	s.now = func() time.Time { return base.Add(25 * time.Hour) }

	if _, err := s.Validate(ctx, secret); !errors.Is(err, ErrExpired) {
		t.Fatalf("expired token: got %v, want ErrExpired", err)
	}
}

func TestListNeverIncludesHashes(t *testing.T) {
	s := newTestStore(5)
	ctx := context.Background()

	_, secret, err := s.Issue(ctx, "user-1", "a", 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	infos, err := s.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("List returned %d entries, want 1", len(infos))
	}
	if infos[0].TokenID == secret || infos[0].Name == HashSecret(secret) {
		t.Fatal("List leaked secret material")
	}
}
