package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestLegacy() *LegacyAuthenticator {
	return NewLegacyAuthenticator(NewMemoryUserRepository(), []byte("unit-test-secret"), time.Hour)
}

func TestLegacyRegisterLoginRoundTrip(t *testing.T) {
	a := newTestLegacy()
	ctx := context.Background()

	if err := a.Register(ctx, "alice", "hunter22"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := a.Register(ctx, "alice", "other"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("duplicate register: got %v, want ErrUsernameTaken", err)
	}

	bearer, err := a.Login(ctx, "alice", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	subject, err := a.ParseToken(bearer)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if subject != "alice" {
		t.Fatalf("subject = %q, want alice", subject)
	}
}

func TestLegacyLoginRejectsBadCredentials(t *testing.T) {
	a := newTestLegacy()
	ctx := context.Background()
	a.Register(ctx, "bob", "secret-pw")

	if _, err := a.Login(ctx, "bob", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := a.Login(ctx, "nobody", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v, want ErrInvalidCredentials", err)
	}
}

func TestLegacyParseRejectsTamperedToken(t *testing.T) {
	a := newTestLegacy()
	ctx := context.Background()
	a.Register(ctx, "carol", "pw-pw-pw")
	bearer, _ := a.Login(ctx, "carol", "pw-pw-pw")

	tampered := bearer[:len(bearer)-2] + "xx"
	if _, err := a.ParseToken(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token: got %v, want ErrInvalidToken", err)
	}

	// Signed with a different secret.
	other := NewLegacyAuthenticator(NewMemoryUserRepository(), []byte("other-secret"), time.Hour)
	other.Register(ctx, "carol", "pw-pw-pw")
	foreign, _ := other.Login(ctx, "carol", "pw-pw-pw")
	if _, err := a.ParseToken(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign-signed token: got %v, want ErrInvalidToken", err)
	}
}
