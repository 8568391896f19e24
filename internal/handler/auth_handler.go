package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gateway-service/internal/analytics"
	"gateway-service/internal/auth"
	"gateway-service/internal/gateway"
	"gateway-service/internal/model"
	"gateway-service/internal/token"
	"gateway-service/internal/util"
)

// AuthHandler serves registration, login, and API token management.
type AuthHandler struct {
	legacy   *auth.LegacyAuthenticator
	tokens   *token.Store
	recorder *analytics.Recorder
}

func NewAuthHandler(legacy *auth.LegacyAuthenticator, tokens *token.Store, recorder *analytics.Recorder) *AuthHandler {
	return &AuthHandler{
		legacy:   legacy,
		tokens:   tokens,
		recorder: recorder,
	}
}

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{Success: true, Data: data, Message: message}
}

func errorResponse(err error, message string) Response {
	return Response{Success: false, Error: err.Error(), Message: message}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type issueTokenRequest struct {
	Name    string `json:"name"`
	TTLDays int    `json:"ttl_days,omitempty"`
}

// issuedTokenResponse matches the field names of the metadata view so a
// client can correlate the one-time api_token with later list results.
type issuedTokenResponse struct {
	TokenID   string    `json:"token_id"`
	Name      string    `json:"token_name"`
	APIToken  string    `json:"api_token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type identityResponse struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Tier string `json:"tier"`
}

// RegisterRoutes mounts the auth routes on an already-gated router.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Get("/verify", h.Verify)

		r.Route("/tokens", func(r chi.Router) {
			r.Post("/", h.IssueToken)
			r.Get("/", h.ListTokens)
			r.Delete("/", h.RevokeAllTokens)
			r.Delete("/{tokenID}", h.RevokeToken)
		})
	})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Username == "" || len(req.Password) < 8 {
		h.respondWithError(w, http.StatusBadRequest,
			errors.New("username and a password of at least 8 characters are required"),
			"Invalid credentials")
		return
	}

	if err := h.legacy.Register(r.Context(), req.Username, req.Password); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to register user")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(nil, "User registered successfully"))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	bearer, err := h.legacy.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Login failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"token": bearer}, "Login successful"))
}

// Verify echoes the identity the admission gateway resolved. Useful for
// clients checking a credential without side effects.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	identity, ok := gateway.IdentityFrom(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, errors.New("no identity"), "Not authenticated")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(identityResponse{
		Kind: string(identity.Kind),
		ID:   identity.ID,
		Tier: identity.Tier,
	}, "Credential verified"))
}

func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Name == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("token name is required"), "Invalid request")
		return
	}

	tok, secret, err := h.tokens.Issue(r.Context(), ownerID, req.Name, req.TTLDays)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to issue token")
		return
	}

	if h.recorder != nil {
		h.recorder.RecordAudit("token.issued", ownerID, tok.TokenID, "token issued: "+tok.Name)
	}

	// The secret appears in this response only.
	h.respondWithJSON(w, http.StatusCreated, successResponse(issuedTokenResponse{
		TokenID:   tok.TokenID,
		Name:      tok.Name,
		APIToken:  secret,
		CreatedAt: tok.CreatedAt,
		ExpiresAt: tok.ExpiresAt,
	}, "Token issued. Store the secret now; it is not retrievable later."))
}

func (h *AuthHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	infos, err := h.tokens.List(r.Context(), ownerID)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to list tokens")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(infos, "Tokens retrieved successfully"))
}

func (h *AuthHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	tokenID := chi.URLParam(r, "tokenID")
	if err := h.tokens.Revoke(r.Context(), ownerID, tokenID); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to revoke token")
		return
	}

	if h.recorder != nil {
		h.recorder.RecordAudit("token.revoked", ownerID, tokenID, "revoked by owner")
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Token revoked successfully"))
}

func (h *AuthHandler) RevokeAllTokens(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	count, err := h.tokens.RevokeAll(r.Context(), ownerID)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to revoke tokens")
		return
	}

	if h.recorder != nil {
		h.recorder.RecordAudit("token.revoked_all", ownerID, "", "all tokens revoked by owner")
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]int{"revoked": count}, "Tokens revoked successfully"))
}

// requireUser returns the owner ID for token management. Tokens can be
// managed with a user credential only, never with another API token.
func (h *AuthHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := gateway.IdentityFrom(r.Context())
	if !ok || identity.Kind == model.KindAnonymous {
		h.respondWithError(w, http.StatusUnauthorized, errors.New("authentication required"), "Sign in to manage API tokens")
		return "", false
	}
	if identity.Kind == model.KindAPIToken {
		h.respondWithError(w, http.StatusForbidden, errors.New("user credential required"),
			"API tokens cannot manage other tokens")
		return "", false
	}
	return identity.ID, true
}

func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	util.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

func (h *AuthHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, token.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, token.ErrLimitExceeded):
		return http.StatusConflict
	case errors.Is(err, auth.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
