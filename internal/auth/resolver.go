package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"gateway-service/internal/model"
	"gateway-service/internal/token"
	"gateway-service/internal/util"
)

// ErrInvalidToken covers any credential that none of the three token
// namespaces accepts.
var ErrInvalidToken = errors.New("invalid authentication token")

// Verifier checks a Firebase ID token and returns the UID it belongs
// to. The production implementation wraps the Firebase Admin SDK.
type Verifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (string, error)
}

// Resolver classifies a bearer credential into one of the mutually
// exclusive namespaces (API token, Firebase ID token, legacy JWT) and
// produces the caller identity requests are attributed to.
//
// The order is fixed: the API-token path is a cheap local hash lookup,
// Firebase verification may hit the network, legacy parsing is last.
// That ordering is a performance choice, not a security boundary.
type Resolver struct {
	tokens     *token.Store
	firebase   Verifier
	legacy     *LegacyAuthenticator
	legacyTier string
	group      singleflight.Group
}

func NewResolver(tokens *token.Store, firebase Verifier, legacy *LegacyAuthenticator, legacyTier string) *Resolver {
	return &Resolver{
		tokens:     tokens,
		firebase:   firebase,
		legacy:     legacy,
		legacyTier: legacyTier,
	}
}

// Resolve turns an optional bearer credential into a CallerIdentity.
// An empty credential is the anonymous identity keyed by client IP.
func (r *Resolver) Resolve(ctx context.Context, bearer, clientIP string) (model.CallerIdentity, error) {
	if bearer == "" {
		return model.CallerIdentity{
			Kind: model.KindAnonymous,
			ID:   clientIP,
			Tier: string(model.KindAnonymous),
		}, nil
	}

	tok, err := r.tokens.Validate(ctx, bearer)
	switch {
	case err == nil:
		return model.CallerIdentity{
			Kind: model.KindAPIToken,
			ID:   tok.TokenID,
			Tier: string(model.KindAPIToken),
		}, nil
	case errors.Is(err, token.ErrExpired):
		return model.CallerIdentity{}, err
	case errors.Is(err, token.ErrInvalidToken):
		// Not ours; fall through to the JWT namespaces.
	default:
		return model.CallerIdentity{}, fmt.Errorf("token store lookup failed: %w", err)
	}

	if !looksLikeJWT(bearer) {
		return model.CallerIdentity{}, ErrInvalidToken
	}

	if r.firebase != nil {
		if uid, err := r.verifyFirebase(ctx, bearer); err == nil {
			return model.CallerIdentity{
				Kind: model.KindFirebase,
				ID:   uid,
				Tier: string(model.KindFirebase),
			}, nil
		} else {
			util.Debug("Firebase verification failed",
				zap.String("credential", util.RedactCredential(bearer)),
				zap.Error(err))
		}
	}

	if r.legacy != nil {
		if subject, err := r.legacy.ParseToken(bearer); err == nil {
			return model.CallerIdentity{
				Kind: model.KindLegacy,
				ID:   subject,
				Tier: r.legacyTier,
			}, nil
		}
	}

	return model.CallerIdentity{}, ErrInvalidToken
}

// verifyFirebase collapses concurrent verifications of the same
// credential into one SDK call.
func (r *Resolver) verifyFirebase(ctx context.Context, idToken string) (string, error) {
	uid, err, _ := r.group.Do(idToken, func() (interface{}, error) {
		return r.firebase.VerifyIDToken(ctx, idToken)
	})
	if err != nil {
		return "", err
	}
	return uid.(string), nil
}

// looksLikeJWT is a shape check only: both remaining namespaces are
// three-segment JWTs, so anything else cannot resolve.
func looksLikeJWT(s string) bool {
	return strings.Count(s, ".") == 2
}
