package driven

import "context"

// LLMService provides language model operations for query understanding
// and result rescoring. This is an optional service - when nil, query
// expansion and reranking degrade gracefully to identity behaviour.
//
// Implementations may include:
//   - OpenAI (GPT-4o, GPT-4o-mini)
//   - Ollama (local models)
//   - LM Studio (local inference server)
type LLMService interface {
	// Generate produces a text completion from a prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Rerank scores each passage for relevance to the query, returning
	// one score in [0,1] per passage, in input order.
	Rerank(ctx context.Context, query string, passages []string) ([]float64, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64

	// JSONOnly requests strict JSON output when the backend supports it.
	JSONOnly bool
}
