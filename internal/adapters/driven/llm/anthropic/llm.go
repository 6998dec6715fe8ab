// Package anthropic generates text through the Anthropic messages API.
package anthropic

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

// Defaults for the hosted API.
const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-3-5-haiku-latest"
	DefaultTimeout = 120 * time.Second

	// apiVersion is the required version header.
	apiVersion = "2023-06-01"

	// defaultMaxTokens applies when the caller sets none; the messages
	// API rejects requests without a token cap.
	defaultMaxTokens = 1024
)

// Config holds the Anthropic LLM settings.
type Config struct {
	// APIKey authenticates every request (required).
	APIKey string

	// BaseURL is the API root (default https://api.anthropic.com).
	BaseURL string

	// Model is the chat model (default claude-3-5-haiku-latest).
	Model string

	// Timeout bounds each request (default 120s).
	Timeout time.Duration

	// RequestsPerSecond throttles calls; zero means unlimited.
	RequestsPerSecond float64
}

// LLMService talks to the Anthropic messages API.
type LLMService struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	apiKey  string
	model   string
}

type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewLLMService creates an Anthropic LLM service.
func NewLLMService(cfg Config) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewError(domain.KindValidation, "anthropic: API key is required")
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
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &LLMService{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

// Generate produces a completion for the prompt. The messages API has
// no strict JSON mode, so JSONOnly relies on the prompt itself.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	reqBody := messagesRequest{
		Model:       s.model,
		Messages:    []message{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", domain.WrapError(domain.KindInternal, "encoding messages request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", domain.WrapError(domain.KindInternal, "building messages request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", domain.WrapError(domain.KindAdapterFailure, "anthropic messages", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", domain.WrapError(domain.KindAdapterFailure, "reading messages response", err)
	}

	var decoded messagesResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", statusError("messages", resp.StatusCode, raw)
		}
		return "", domain.WrapError(domain.KindAdapterFailure, "decoding messages response", err)
	}
	if decoded.Error != nil {
		return "", domain.NewError(domain.KindAdapterFailure,
			fmt.Sprintf("anthropic messages: %s: %s", decoded.Error.Type, decoded.Error.Message))
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError("messages", resp.StatusCode, raw)
	}

	for _, block := range decoded.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", domain.NewError(domain.KindAdapterFailure, "anthropic messages: no text content returned")
}

// Rerank scores each passage for relevance to the query through a JSON
// completion.
func (s *LLMService) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	return rerank.Scores(ctx, s.Generate, query, passages)
}

// ModelName returns the chat model in use.
func (s *LLMService) ModelName() string { return s.model }

// Ping checks key validity against the models endpoint, without running
// inference.
func (s *LLMService) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/models", http.NoBody)
	if err != nil {
		return domain.WrapError(domain.KindInternal, "building ping request", err)
	}
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.WrapError(domain.KindAdapterFailure, "anthropic ping", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError("ping", resp.StatusCode, body)
	}
	return nil
}

// Close releases resources. The HTTP client needs none.
func (s *LLMService) Close() error { return nil }

// statusError shapes a non-200 response into an adapter failure.
func statusError(op string, status int, body []byte) error {
	return domain.NewError(domain.KindAdapterFailure,
		fmt.Sprintf("anthropic %s: status %d: %s", op, status, bytes.TrimSpace(body)))
}
