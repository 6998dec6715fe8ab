// Package ollama generates text through a local Ollama server.
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

	"github.com/custodia-labs/gnosis/internal/adapters/driven/llm/rerank"
	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// Ensure LLMService implements the interface.
var _ driven.LLMService = (*LLMService)(nil)

// Defaults for a stock local install.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"
	DefaultTimeout = 120 * time.Second
)

// Config holds the Ollama LLM settings.
type Config struct {
	// BaseURL is the Ollama API root (default http://localhost:11434).
	BaseURL string

	// Model is the generation model (default llama3.2).
	Model string

	// Timeout bounds each request (default 120s).
	Timeout time.Duration

	// RequestsPerSecond throttles calls; zero means unlimited.
	RequestsPerSecond float64
}

// LLMService talks to the Ollama generate API.
type LLMService struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	model   string
}

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Format  string   `json:"format,omitempty"`
	Options *options `json:"options,omitempty"`
}

type options struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewLLMService creates an Ollama LLM service.
func NewLLMService(cfg Config) *LLMService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &LLMService{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}
}

// Generate produces a completion for the prompt.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	reqBody := generateRequest{
		Model:  s.model,
		Prompt: prompt,
		Stream: false,
		Options: &options{
			NumPredict:  opts.MaxTokens,
			Temperature: opts.Temperature,
		},
	}
	if opts.JSONOnly {
		reqBody.Format = "json"
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", domain.WrapError(domain.KindInternal, "encoding generate request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", domain.WrapError(domain.KindInternal, "building generate request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", domain.WrapError(domain.KindAdapterFailure, "ollama generate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError("generate", resp)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", domain.WrapError(domain.KindAdapterFailure, "decoding generate response", err)
	}
	return decoded.Response, nil
}

// Rerank scores each passage for relevance to the query. Ollama has no
// native rerank endpoint, so scoring runs through a JSON completion.
func (s *LLMService) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	return rerank.Scores(ctx, s.Generate, query, passages)
}

// ModelName returns the generation model in use.
func (s *LLMService) ModelName() string { return s.model }

// Ping checks connectivity against the tags endpoint, without running
// inference.
func (s *LLMService) Ping(ctx context.Context) error {
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
func (s *LLMService) Close() error { return nil }

// apiError shapes a non-200 response into an adapter failure.
func apiError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return domain.NewError(domain.KindAdapterFailure,
		fmt.Sprintf("ollama %s: status %d: %s", op, resp.StatusCode, bytes.TrimSpace(body)))
}
