package docs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"gateway-service/internal/util"
)

var ErrInvalidURL = errors.New("invalid document URL")

// ConversionResult describes a fetched document.
type ConversionResult struct {
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Converter is the protected backend the gateway fronts.
type Converter interface {
	ConvertURL(ctx context.Context, rawURL string) (*ConversionResult, error)
}

const maxDocumentBytes = 32 << 20 // 32MB

// HTTPConverter fetches the document over HTTP. Conversion itself is
// delegated to a downstream worker; the gateway only validates and
// sizes the source.
type HTTPConverter struct {
	client *http.Client
}

func NewHTTPConverter() *HTTPConverter {
	return &HTTPConverter{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPConverter) ConvertURL(ctx context.Context, rawURL string) (*ConversionResult, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, ErrInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, ErrInvalidURL
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("document fetch returned status %d", resp.StatusCode)
	}

	size, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if size > maxDocumentBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", maxDocumentBytes)
	}

	util.Debug("Document fetched for conversion",
		zap.String("url", rawURL),
		zap.Int64("size_bytes", size))

	return &ConversionResult{
		URL:         rawURL,
		ContentType: resp.Header.Get("Content-Type"),
		SizeBytes:   size,
		FetchedAt:   time.Now().UTC(),
	}, nil
}
