package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"gateway-service/internal/config"
	"gateway-service/internal/model"
	"gateway-service/internal/token"
)

type stubVerifier struct {
	uid   string
	err   error
	calls int
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.uid, nil
}

func newTestTokenStore() (*token.Store, *token.MemoryRepository) {
	repo := token.NewMemoryRepository()
	store := token.NewStore(repo, config.TokenConfig{MaxPerUser: 5, DefaultTTLDays: 30})
	return store, repo
}

func TestResolveAnonymous(t *testing.T) {
	store, _ := newTestTokenStore()
	r := NewResolver(store, &stubVerifier{uid: "u"}, nil, "firebase")

	id, err := r.Resolve(context.Background(), "", "203.0.113.9")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Kind != model.KindAnonymous || id.ID != "203.0.113.9" || id.Tier != "anonymous" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestResolveAPIToken(t *testing.T) {
	store, _ := newTestTokenStore()
	tok, secret, err := store.Issue(context.Background(), "user-1", "ci", 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	fb := &stubVerifier{uid: "uid-1"}
	r := NewResolver(store, fb, nil, "firebase")

	id, err := r.Resolve(context.Background(), secret, "203.0.113.9")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Kind != model.KindAPIToken || id.ID != tok.TokenID || id.Tier != "api_token" {
		t.Fatalf("identity = %+v", id)
	}
	if fb.calls != 0 {
		t.Fatalf("firebase verifier called %d times for an API token", fb.calls)
	}
}

func TestResolvePrecedenceAPITokenBeforeFirebase(t *testing.T) {
	// A credential shaped like a JWT but whose hash is a known API token
	// must resolve through the store, even though the Firebase verifier
	// would reject it as expired.
	store, repo := newTestTokenStore()
	jwtShaped := "eyJhbGciOiJSUzI1NiJ9.eyJleHAiOjB9.sig"

	now := time.Now().UTC()
	seeded := &model.APIToken{
		TokenID:     "tok-jwt-shaped",
		OwnerUserID: "user-1",
		Name:        "imported",
		SecretHash:  token.HashSecret(jwtShaped),
		CreatedAt:   now,
		ExpiresAt:   now.Add(24 * time.Hour),
	}
	if err := repo.Insert(context.Background(), seeded); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	fb := &stubVerifier{err: errors.New("token expired")}
	r := NewResolver(store, fb, nil, "firebase")

	id, err := r.Resolve(context.Background(), jwtShaped, "203.0.113.9")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Kind != model.KindAPIToken || id.ID != "tok-jwt-shaped" {
		t.Fatalf("identity = %+v, want api_token path", id)
	}
	if fb.calls != 0 {
		t.Fatal("firebase verifier consulted despite API-token match")
	}
}

func TestResolveExpiredAPIToken(t *testing.T) {
	store, repo := newTestTokenStore()
	now := time.Now().UTC()
	secret := "dgw_expired-secret-value"
	repo.Insert(context.Background(), &model.APIToken{
		TokenID:     "tok-old",
		OwnerUserID: "user-1",
		SecretHash:  token.HashSecret(secret),
		CreatedAt:   now.Add(-48 * time.Hour),
		ExpiresAt:   now.Add(-24 * time.Hour),
	})

	r := NewResolver(store, &stubVerifier{uid: "u"}, nil, "firebase")
	if _, err := r.Resolve(context.Background(), secret, "ip"); !errors.Is(err, token.ErrExpired) {
		t.Fatalf("got %v, want token.ErrExpired", err)
	}
}

func TestResolveFirebase(t *testing.T) {
	store, _ := newTestTokenStore()
	fb := &stubVerifier{uid: "firebase-uid-9"}
	r := NewResolver(store, fb, nil, "firebase")

	id, err := r.Resolve(context.Background(), "aaa.bbb.ccc", "ip")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Kind != model.KindFirebase || id.ID != "firebase-uid-9" || id.Tier != "firebase" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestResolveLegacyAfterFirebaseFailure(t *testing.T) {
	store, _ := newTestTokenStore()
	legacy := NewLegacyAuthenticator(NewMemoryUserRepository(), []byte("test-secret"), time.Hour)
	if err := legacy.Register(context.Background(), "olduser", "pw123456"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	bearer, err := legacy.Login(context.Background(), "olduser", "pw123456")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	fb := &stubVerifier{err: errors.New("not a firebase token")}
	r := NewResolver(store, fb, legacy, "legacy-tier")

	id, err := r.Resolve(context.Background(), bearer, "ip")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Kind != model.KindLegacy || id.ID != "olduser" || id.Tier != "legacy-tier" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestResolveRejectsUnknownCredential(t *testing.T) {
	store, _ := newTestTokenStore()
	fb := &stubVerifier{err: errors.New("bad token")}
	r := NewResolver(store, fb, nil, "firebase")

	// Not JWT-shaped: the verifier must not even be consulted.
	if _, err := r.Resolve(context.Background(), "garbage-credential", "ip"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
	if fb.calls != 0 {
		t.Fatalf("verifier called %d times for non-JWT credential", fb.calls)
	}

	// JWT-shaped but rejected everywhere.
	if _, err := r.Resolve(context.Background(), "x.y.z", "ip"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}
