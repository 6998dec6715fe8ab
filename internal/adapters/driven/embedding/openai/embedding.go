// Package openai embeds text through the OpenAI embeddings API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Defaults for the hosted API.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second
)

// modelDimensions maps known models to their native vector size.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds the OpenAI embedding settings.
type Config struct {
	// APIKey authenticates every request (required).
	APIKey string

	// BaseURL is the API root (default https://api.openai.com/v1).
	// Change it for Azure OpenAI or compatible servers.
	BaseURL string

	// Model is the embedding model (default text-embedding-3-small).
	Model string

	// Timeout bounds each request (default 60s).
	Timeout time.Duration

	// Dimensions overrides the model's native vector size. Only the
	// text-embedding-3-* models accept an override.
	Dimensions int

	// RequestsPerSecond throttles calls; zero means unlimited.
	RequestsPerSecond float64
}

// EmbeddingService talks to the OpenAI embeddings API.
type EmbeddingService struct {
	client     *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewEmbeddingService creates an OpenAI embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewError(domain.KindValidation, "openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		var ok bool
		dimensions, ok = modelDimensions[cfg.Model]
		if !ok {
			dimensions = 1536
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &EmbeddingService{
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: dimensions,
	}, nil
}

// Embed generates one embedding.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds all texts in a single API call. Results come back
// ordered by the request index regardless of response order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody := embedRequest{Model: s.model, Input: texts}
	if s.dimensionsAdjustable() {
		reqBody.Dimensions = s.dimensions
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "encoding embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "building embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.KindAdapterFailure, "openai embed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, domain.WrapError(domain.KindAdapterFailure, "reading embed response", err)
	}

	var decoded embedResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, statusError("embed", resp.StatusCode, raw)
		}
		return nil, domain.WrapError(domain.KindAdapterFailure, "decoding embed response", err)
	}
	if decoded.Error != nil {
		return nil, domain.NewError(domain.KindAdapterFailure,
			fmt.Sprintf("openai embed: %s: %s", decoded.Error.Type, decoded.Error.Message))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("embed", resp.StatusCode, raw)
	}
	if len(decoded.Data) != len(texts) {
		return nil, domain.NewError(domain.KindAdapterFailure,
			fmt.Sprintf("openai returned %d embeddings for %d inputs", len(decoded.Data), len(texts)))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, domain.NewError(domain.KindAdapterFailure,
				fmt.Sprintf("openai returned out-of-range index %d", item.Index))
		}
		vec := make([]float32, len(item.Embedding))
		for i, x := range item.Embedding {
			vec[i] = float32(x)
		}
		vectors[item.Index] = vec
	}
	return vectors, nil
}

// dimensionsAdjustable reports whether the model accepts a dimension
// override parameter.
func (s *EmbeddingService) dimensionsAdjustable() bool {
	return s.model == "text-embedding-3-small" || s.model == "text-embedding-3-large"
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int { return s.dimensions }

// ModelName returns the embedding model in use.
func (s *EmbeddingService) ModelName() string { return s.model }

// Ping checks key validity against the models endpoint, without running
// inference.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/models", http.NoBody)
	if err != nil {
		return domain.WrapError(domain.KindInternal, "building ping request", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.WrapError(domain.KindAdapterFailure, "openai ping", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError("ping", resp.StatusCode, body)
	}
	return nil
}

// Close releases resources. The HTTP client needs none.
func (s *EmbeddingService) Close() error { return nil }

// statusError shapes a non-200 response into an adapter failure.
func statusError(op string, status int, body []byte) error {
	return domain.NewError(domain.KindAdapterFailure,
		fmt.Sprintf("openai %s: status %d: %s", op, status, bytes.TrimSpace(body)))
}
