package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gateway-service/internal/docs"
	"gateway-service/internal/gateway"
	"gateway-service/internal/util"
)

// DocsHandler fronts the document conversion backend. Every request
// through here has already passed admission.
type DocsHandler struct {
	converter docs.Converter
}

func NewDocsHandler(converter docs.Converter) *DocsHandler {
	return &DocsHandler{converter: converter}
}

type convertURLRequest struct {
	URL string `json:"url"`
}

func (h *DocsHandler) RegisterRoutes(router chi.Router) {
	router.Route("/docs", func(r chi.Router) {
		r.Post("/convert-url", h.ConvertURL)
	})
}

func (h *DocsHandler) ConvertURL(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req convertURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.URL == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("url is required"), "Invalid request")
		return
	}

	result, err := h.converter.ConvertURL(r.Context(), req.URL)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, docs.ErrInvalidURL) {
			status = http.StatusBadRequest
		}
		h.respondWithError(w, status, err, "Conversion failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Document converted successfully"))

	if identity, ok := gateway.IdentityFrom(r.Context()); ok {
		util.Debug("Document converted via HTTP",
			util.String("identity", identity.LimitKey()),
			util.String("url", req.URL),
			util.Duration("duration", time.Since(startTime)),
		)
	}
}

func (h *DocsHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *DocsHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	util.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}
