package model

import "time"

// -------------------- CALLER IDENTITY --------------------

type IdentityKind string

const (
	KindAnonymous IdentityKind = "anonymous"
	KindFirebase  IdentityKind = "firebase"
	KindAPIToken  IdentityKind = "api_token"
	KindLegacy    IdentityKind = "legacy"
)

// CallerIdentity is the resolved principal a request is attributed to.
// Immutable once resolved for a request.
type CallerIdentity struct {
	Kind IdentityKind `json:"kind"`
	ID   string       `json:"id"`   // IP address, Firebase UID, token ID, or legacy subject
	Tier string       `json:"tier"` // rate-limit tier name
}

// LimitKey returns the counter key prefix for this identity. Kinds are
// mutually exclusive namespaces, so the kind is part of the key.
func (c CallerIdentity) LimitKey() string {
	return string(c.Kind) + ":" + c.ID
}

// -------------------- API TOKEN --------------------

// APIToken is the stored form of an issued token. The secret itself is
// returned to the caller exactly once at issuance; only SecretHash (a
// SHA-256 hex digest) is ever persisted.
type APIToken struct {
	TokenID     string     `json:"token_id" db:"token_id"`
	OwnerUserID string     `json:"owner_user_id" db:"owner_user_id"`
	Name        string     `json:"token_name" db:"token_name"`
	SecretHash  string     `json:"-" db:"secret_hash"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	Revoked     bool       `json:"-" db:"revoked"`
}

// Active reports whether the token is usable at the given instant.
func (t *APIToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// APITokenInfo is the caller-facing metadata view. Never carries the
// secret or its hash.
type APITokenInfo struct {
	TokenID    string     `json:"token_id"`
	Name       string     `json:"token_name"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used,omitempty"`
	IsActive   bool       `json:"is_active"`
}

// Info projects stored token state into the metadata view.
func (t *APIToken) Info(now time.Time) APITokenInfo {
	return APITokenInfo{
		TokenID:    t.TokenID,
		Name:       t.Name,
		CreatedAt:  t.CreatedAt,
		ExpiresAt:  t.ExpiresAt,
		LastUsedAt: t.LastUsedAt,
		IsActive:   t.Active(now),
	}
}

// -------------------- LEGACY USER --------------------

// LegacyUser backs the pre-Firebase username/password login flow.
type LegacyUser struct {
	UserID       string    `json:"user_id" db:"user_id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// -------------------- ANALYTICS --------------------

// UsageEvent is one admitted-or-denied request, recorded asynchronously.
type UsageEvent struct {
	EventID        string       `json:"event_id"`
	Timestamp      time.Time    `json:"timestamp"`
	IdentityKind   IdentityKind `json:"identity_kind"`
	IdentityID     string       `json:"identity_id"`
	Tier           string       `json:"tier"`
	Method         string       `json:"method"`
	Path           string       `json:"path"`
	StatusCode     int          `json:"status_code"`
	Allowed        bool         `json:"allowed"`
	DurationMs     int64        `json:"duration_ms"`
	IdentityBucket int          `json:"identity_bucket"`
	DateBucket     string       `json:"date_bucket"`
}

// AuditEvent records a security-relevant action (token lifecycle,
// authentication failures) for the audit index.
type AuditEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actor_id"`
	TokenID   string    `json:"token_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}
