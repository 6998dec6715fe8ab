package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		settings    *domain.EmbeddingSettings
		wantNil     bool
		wantErr     bool
		errContains string
	}{
		{
			name:     "nil settings returns nil",
			settings: nil,
			wantNil:  true,
		},
		{
			name:     "unconfigured settings returns nil",
			settings: &domain.EmbeddingSettings{},
			wantNil:  true,
		},
		{
			name: "ollama provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOllama,
				BaseURL:  "http://localhost:11434",
				Model:    "nomic-embed-text",
			},
		},
		{
			name: "openai provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI,
				APIKey:   "test-key",
				Model:    "text-embedding-3-small",
			},
		},
		{
			name: "anthropic provider rejected",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderAnthropic,
				APIKey:   "test-key",
			},
			wantNil:     true,
			wantErr:     true,
			errContains: "anthropic does not support embeddings",
		},
		{
			name: "unknown provider is unconfigured",
			settings: &domain.EmbeddingSettings{
				Provider: "unknown",
				APIKey:   "test-key",
			},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings)
			if svc != nil {
				defer svc.Close()
			}

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				require.NoError(t, err)
			}
			if tt.wantNil {
				assert.Nil(t, svc)
			} else {
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestCreateEmbeddingService_DimensionLookup(t *testing.T) {
	svc, err := CreateEmbeddingService(&domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama,
		Model:    "mxbai-embed-large",
	})
	require.NoError(t, err)
	defer svc.Close()

	assert.Equal(t, 1024, svc.Dimensions())
	assert.Equal(t, "mxbai-embed-large", svc.ModelName())
}

func TestCreateLLMService(t *testing.T) {
	tests := []struct {
		name     string
		settings *domain.LLMSettings
		wantNil  bool
	}{
		{
			name:     "nil settings returns nil",
			settings: nil,
			wantNil:  true,
		},
		{
			name:     "unconfigured settings returns nil",
			settings: &domain.LLMSettings{},
			wantNil:  true,
		},
		{
			name: "ollama provider creates service",
			settings: &domain.LLMSettings{
				Provider: domain.AIProviderOllama,
				BaseURL:  "http://localhost:11434",
				Model:    "llama3.2",
			},
		},
		{
			name: "openai provider creates service",
			settings: &domain.LLMSettings{
				Provider: domain.AIProviderOpenAI,
				APIKey:   "test-key",
				Model:    "gpt-4o-mini",
			},
		},
		{
			name: "anthropic provider creates service",
			settings: &domain.LLMSettings{
				Provider: domain.AIProviderAnthropic,
				APIKey:   "test-key",
				Model:    "claude-3-5-haiku-latest",
			},
		},
		{
			name: "unknown provider is unconfigured",
			settings: &domain.LLMSettings{
				Provider: "unknown",
				APIKey:   "test-key",
			},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateLLMService(tt.settings)
			if svc != nil {
				defer svc.Close()
			}

			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, svc)
			} else {
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestCreateLLMService_CloudProviderWithoutKey(t *testing.T) {
	svc, err := CreateLLMService(&domain.LLMSettings{
		Provider: domain.AIProviderOpenAI,
		Model:    "gpt-4o-mini",
	})
	require.NoError(t, err)
	assert.Nil(t, svc)
}

func TestValidateEmbeddingConfig_Unconfigured(t *testing.T) {
	assert.NoError(t, ValidateEmbeddingConfig(nil))
	assert.NoError(t, ValidateEmbeddingConfig(&domain.EmbeddingSettings{}))
}

func TestValidateEmbeddingConfig_AnthropicRejected(t *testing.T) {
	err := ValidateEmbeddingConfig(&domain.EmbeddingSettings{
		Provider: domain.AIProviderAnthropic,
		APIKey:   "test-key",
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestValidateLLMConfig_Unconfigured(t *testing.T) {
	assert.NoError(t, ValidateLLMConfig(nil))
	assert.NoError(t, ValidateLLMConfig(&domain.LLMSettings{
		Provider: "unknown",
		APIKey:   "test-key",
	}))
}

func TestCreateAndValidate_UnconfiguredIsNil(t *testing.T) {
	emb, err := CreateAndValidateEmbeddingService(nil)
	require.NoError(t, err)
	assert.Nil(t, emb)

	llm, err := CreateAndValidateLLMService(&domain.LLMSettings{})
	require.NoError(t, err)
	assert.Nil(t, llm)
}
