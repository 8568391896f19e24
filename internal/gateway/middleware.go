package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gateway-service/internal/auth"
	"gateway-service/internal/model"
	"gateway-service/internal/ratelimit"
	"gateway-service/internal/token"
	"gateway-service/internal/util"
)

// UsageRecorder receives the usage events the gateway emits for denied
// requests. Admitted requests are recorded downstream, where the final
// status and duration are known.
type UsageRecorder interface {
	RecordUsage(identity model.CallerIdentity, method, path string, statusCode int, allowed bool, duration time.Duration)
}

// Middleware is the admission gateway: it resolves the caller identity,
// applies the rate limiter, and either passes the request downstream
// with the identity in context or emits a structured rejection.
type Middleware struct {
	resolver *auth.Resolver
	limiter  *ratelimit.Limiter
	enabled  bool
	recorder UsageRecorder
}

func NewMiddleware(resolver *auth.Resolver, limiter *ratelimit.Limiter, limitingEnabled bool, recorder UsageRecorder) *Middleware {
	return &Middleware{
		resolver: resolver,
		limiter:  limiter,
		enabled:  limitingEnabled,
		recorder: recorder,
	}
}

type rateLimitedBody struct {
	Error      string `json:"error"`
	Detail     string `json:"detail"`
	RetryAfter int    `json:"retry_after"`
	Message    string `json:"message"`
}

type authErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// Handler wraps protected routes.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		identity, err := m.resolver.Resolve(r.Context(), bearerFrom(r), clientIP(r))
		if err != nil {
			m.rejectAuth(w, r, err)
			return
		}

		if m.enabled {
			dec, err := m.limiter.CheckAndIncrement(r.Context(), identity)
			if err != nil {
				// Fail-closed policy: the limiter already logged the cause.
				writeJSON(w, http.StatusServiceUnavailable, authErrorBody{
					Error:  "BackendUnavailable",
					Detail: "Rate limiting is temporarily unavailable",
				})
				return
			}

			if !dec.Degraded {
				setRateLimitHeaders(w, dec)
			}

			if !dec.Allowed {
				m.rejectRateLimited(w, identity, dec)
				if m.recorder != nil {
					m.recorder.RecordUsage(identity, r.Method, r.URL.Path,
						http.StatusTooManyRequests, false, time.Since(start))
				}
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func (m *Middleware) rejectAuth(w http.ResponseWriter, r *http.Request, err error) {
	kind := "InvalidToken"
	detail := "Invalid authentication token"
	status := http.StatusUnauthorized

	switch {
	case errors.Is(err, token.ErrExpired):
		kind = "Expired"
		detail = "API token expired"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, token.ErrInvalidToken):
		// defaults
	default:
		// Infrastructure failure during resolution, not a bad credential.
		status = http.StatusServiceUnavailable
		kind = "BackendUnavailable"
		detail = "Authentication is temporarily unavailable"
		util.Error("Credential resolution failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	writeJSON(w, status, authErrorBody{Error: kind, Detail: detail})
}

func (m *Middleware) rejectRateLimited(w http.ResponseWriter, identity model.CallerIdentity, dec ratelimit.Decision) {
	retryAfter := int(math.Ceil(dec.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	message := "Sign in for higher rate limits"
	if identity.Kind != model.KindAnonymous {
		message = "Consider upgrading your plan for higher rate limits"
	}

	writeJSON(w, http.StatusTooManyRequests, rateLimitedBody{
		Error:      "Rate limit exceeded",
		Detail:     fmt.Sprintf("%d/%s", dec.Limit, dec.Window),
		RetryAfter: retryAfter,
		Message:    message,
	})

	util.Debug("Request rate limited",
		zap.String("identity", identity.LimitKey()),
		zap.String("window", string(dec.Window)),
		zap.Int("retry_after", retryAfter))
}

func setRateLimitHeaders(w http.ResponseWriter, dec ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetAt.Unix(), 10))
}

func bearerFrom(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// clientIP assumes chi's RealIP middleware has already folded
// X-Forwarded-For into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
