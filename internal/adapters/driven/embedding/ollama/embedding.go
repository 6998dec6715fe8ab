// Package ollama embeds text through a local Ollama server.
package ollama

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

// Defaults for a stock local install.
const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "nomic-embed-text"
	DefaultTimeout    = 30 * time.Second
	DefaultDimensions = 768
)

// Config holds the Ollama embedding settings.
type Config struct {
	// BaseURL is the Ollama API root (default http://localhost:11434).
	BaseURL string

	// Model is the embedding model (default nomic-embed-text).
	Model string

	// Timeout bounds each request (default 30s).
	Timeout time.Duration

	// Dimensions is the vector size of the model (default 768).
	Dimensions int

	// RequestsPerSecond throttles calls; zero means unlimited.
	RequestsPerSecond float64
}

// EmbeddingService talks to the Ollama embeddings API.
type EmbeddingService struct {
	client     *http.Client
	limiter    *rate.Limiter
	baseURL    string
	model      string
	dimensions int
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewEmbeddingService creates an Ollama embedding service.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &EmbeddingService{
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// Embed generates one embedding.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds all texts in a single API call.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(embedRequest{Model: s.model, Input: texts})
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "encoding embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "building embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.KindAdapterFailure, "ollama embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("embed", resp)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, domain.WrapError(domain.KindAdapterFailure, "decoding embed response", err)
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, domain.NewError(domain.KindAdapterFailure,
			fmt.Sprintf("ollama returned %d embeddings for %d inputs", len(decoded.Embeddings), len(texts)))
	}

	vectors := make([][]float32, len(decoded.Embeddings))
	for i, raw := range decoded.Embeddings {
		vec := make([]float32, len(raw))
		for j, x := range raw {
			vec[j] = float32(x)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int { return s.dimensions }

// ModelName returns the embedding model in use.
func (s *EmbeddingService) ModelName() string { return s.model }

// Ping checks connectivity against the tags endpoint, without running
// inference.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return domain.WrapError(domain.KindInternal, "building ping request", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return domain.WrapError(domain.KindAdapterFailure, "ollama ping", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError("ping", resp)
	}
	return nil
}

// Close releases resources. The HTTP client needs none.
func (s *EmbeddingService) Close() error { return nil }

// apiError shapes a non-200 response into an adapter failure.
func apiError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return domain.NewError(domain.KindAdapterFailure,
		fmt.Sprintf("ollama %s: status %d: %s", op, resp.StatusCode, bytes.TrimSpace(body)))
}
