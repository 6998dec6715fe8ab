// Package ai constructs and validates the embedding and LLM adapters
// from provider settings.
package ai

import (
	"context"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/gnosis/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/gnosis/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/gnosis/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/gnosis/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/gnosis/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
)

// pingTimeout bounds the connectivity check during initialisation.
const pingTimeout = 5 * time.Second

// CreateEmbeddingService creates the embedding service the settings
// name. Returns nil when no provider is configured.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaEmbedding(settings), nil

	case domain.AIProviderOpenAI:
		return createOpenAIEmbedding(settings)

	case domain.AIProviderAnthropic:
		return nil, domain.NewError(domain.KindValidation,
			"anthropic does not support embeddings, use ollama or openai")

	default:
		return nil, domain.NewError(domain.KindValidation,
			fmt.Sprintf("unsupported embedding provider: %s", settings.Provider))
	}
}

// CreateLLMService creates the LLM service the settings name. Returns
// nil when no provider is configured.
func CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaLLM(settings), nil

	case domain.AIProviderOpenAI:
		return createOpenAILLM(settings)

	case domain.AIProviderAnthropic:
		return createAnthropicLLM(settings)

	default:
		return nil, domain.NewError(domain.KindValidation,
			fmt.Sprintf("unsupported LLM provider: %s", settings.Provider))
	}
}

// CreateAndValidateEmbeddingService creates an embedding service and
// verifies it answers. An unconfigured provider yields nil, nil.
func CreateAndValidateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil || svc == nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, domain.WrapError(domain.KindAdapterFailure,
			"embedding provider "+settings.Provider.String()+" unreachable", err)
	}
	return svc, nil
}

// CreateAndValidateLLMService creates an LLM service and verifies it
// answers. An unconfigured provider yields nil, nil.
func CreateAndValidateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	svc, err := CreateLLMService(settings)
	if err != nil || svc == nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, domain.WrapError(domain.KindAdapterFailure,
			"LLM provider "+settings.Provider.String()+" unreachable", err)
	}
	return svc, nil
}

// ValidateEmbeddingConfig creates a throwaway service and pings it.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	svc, err := CreateEmbeddingService(settings)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}

// ValidateLLMConfig creates a throwaway service and pings it.
func ValidateLLMConfig(settings *domain.LLMSettings) error {
	svc, err := CreateLLMService(settings)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}

func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingService {
	dimensions := domain.EmbeddingDimensions()[settings.Model]
	if dimensions == 0 {
		dimensions = ollamaembed.DefaultDimensions
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		Dimensions:        dimensions,
		RequestsPerSecond: settings.RequestsPerSecond,
	})
}

func createOpenAIEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:            settings.APIKey,
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		Dimensions:        domain.EmbeddingDimensions()[settings.Model],
		RequestsPerSecond: settings.RequestsPerSecond,
	})
}

func createOllamaLLM(settings *domain.LLMSettings) driven.LLMService {
	return ollamallm.NewLLMService(ollamallm.Config{
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		RequestsPerSecond: settings.RequestsPerSecond,
	})
}

func createOpenAILLM(settings *domain.LLMSettings) (driven.LLMService, error) {
	return openaillm.NewLLMService(openaillm.Config{
		APIKey:            settings.APIKey,
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		RequestsPerSecond: settings.RequestsPerSecond,
	})
}

func createAnthropicLLM(settings *domain.LLMSettings) (driven.LLMService, error) {
	return anthropicllm.NewLLMService(anthropicllm.Config{
		APIKey:            settings.APIKey,
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		RequestsPerSecond: settings.RequestsPerSecond,
	})
}
