// Package openai generates text through the OpenAI chat completions API.
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

	"github.com/custodia-labs/gnosis/internal/adapters/driven/llm/rerank"
	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// Ensure LLMService implements the interface.
var _ driven.LLMService = (*LLMService)(nil)

// Defaults for the hosted API.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second
)

// Config holds the OpenAI LLM settings.
type Config struct {
	// APIKey authenticates every request (required).
	APIKey string

	// BaseURL is the API root (default https://api.openai.com/v1).
	// Change it for Azure OpenAI or compatible servers.
	BaseURL string

	// Model is the chat model (default gpt-4o-mini).
	Model string

	// Timeout bounds each request (default 120s).
	Timeout time.Duration

	// RequestsPerSecond throttles calls; zero means unlimited.
	RequestsPerSecond float64
}

// LLMService talks to the OpenAI chat completions API.
type LLMService struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	apiKey  string
	model   string
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewLLMService creates an OpenAI LLM service.
func NewLLMService(cfg Config) (*LLMService, error) {
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

// Generate produces a completion for the prompt.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	reqBody := chatRequest{
		Model:       s.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if opts.JSONOnly {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", domain.WrapError(domain.KindInternal, "encoding chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", domain.WrapError(domain.KindInternal, "building chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", domain.WrapError(domain.KindAdapterFailure, "openai chat", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", domain.WrapError(domain.KindAdapterFailure, "reading chat response", err)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", statusError("chat", resp.StatusCode, raw)
		}
		return "", domain.WrapError(domain.KindAdapterFailure, "decoding chat response", err)
	}
	if decoded.Error != nil {
		return "", domain.NewError(domain.KindAdapterFailure,
			fmt.Sprintf("openai chat: %s: %s", decoded.Error.Type, decoded.Error.Message))
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError("chat", resp.StatusCode, raw)
	}
	if len(decoded.Choices) == 0 {
		return "", domain.NewError(domain.KindAdapterFailure, "openai chat: no choices returned")
	}
	return decoded.Choices[0].Message.Content, nil
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
func (s *LLMService) Close() error { return nil }

// statusError shapes a non-200 response into an adapter failure.
func statusError(op string, status int, body []byte) error {
	return domain.NewError(domain.KindAdapterFailure,
		fmt.Sprintf("openai %s: status %d: %s", op, status, bytes.TrimSpace(body)))
}
