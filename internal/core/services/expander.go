package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
	"github.com/custodia-labs/gnosis/internal/logger"
)

// Ensure Expander can take customised prompts.
var _ driven.PromptStoreAware = (*Expander)(nil)

// maxExpansionVariants caps each variant list from the model.
const maxExpansionVariants = 4

// defaultExpandPrompt is used when no prompt store is configured. The
// single %s placeholder receives the user query.
const defaultExpandPrompt = `You rewrite a search query for a hybrid retrieval system.
Respond with ONLY a JSON object, no prose, matching exactly:
{
  "lexical_queries": ["1-3 keyword terms each, for full-text search"],
  "vector_queries": ["full natural-language rephrasings preserving intent"],
  "hyde_passage": "a short hypothetical passage that would answer the query"
}
Give at most 4 entries per list.

Query: %s`

// Expander turns a natural-language query into lexical variants,
// semantic rephrasings and a hypothetical answer passage. Output that
// fails the schema is rejected; callers fall back to the identity
// expansion.
type Expander struct {
	llm     driven.LLMService
	prompts driven.PromptStore
}

// NewExpander creates a query expander over the generation service.
func NewExpander(llm driven.LLMService) *Expander {
	return &Expander{llm: llm}
}

// SetPromptStore sets the prompt store for the rewrite template.
func (e *Expander) SetPromptStore(store driven.PromptStore) {
	e.prompts = store
}

// Expand generates the structured expansion for a query.
func (e *Expander) Expand(ctx context.Context, query string) (domain.Expansion, error) {
	if e.llm == nil {
		return domain.Expansion{}, domain.NewError(domain.KindAdapterFailure, "no generation service configured")
	}

	prompt := e.prompt(query)
	raw, err := e.llm.Generate(ctx, prompt, driven.GenerateOptions{
		MaxTokens:   512,
		Temperature: 0,
		JSONOnly:    true,
	})
	if err != nil {
		return domain.Expansion{}, domain.WrapError(domain.KindAdapterFailure, "query expansion", err)
	}

	expansion, err := parseExpansion(raw)
	if err != nil {
		logger.Warn("Query expansion output rejected: %v", err)
		return domain.Expansion{}, err
	}
	return expansion, nil
}

func (e *Expander) prompt(query string) string {
	template := defaultExpandPrompt
	if e.prompts != nil {
		if loaded, err := e.prompts.Load(driven.PromptQueryRewrite); err == nil && loaded != "" {
			template = loaded
		}
	}
	return strings.Replace(template, "%s", query, 1)
}

// parseExpansion validates model output against the expansion schema.
// Unknown fields are schema violations. Blank variants and keyword
// variants over three tokens are dropped, and output left with no
// lexical and no vector variant is rejected.
func parseExpansion(raw string) (domain.Expansion, error) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return domain.Expansion{}, domain.NewError(domain.KindValidation, "expansion output contains no JSON object")
	}

	var expansion domain.Expansion
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&expansion); err != nil {
		return domain.Expansion{}, domain.WrapError(domain.KindValidation, "decoding expansion", err)
	}

	expansion.LexicalQueries = cleanVariants(expansion.LexicalQueries, 3)
	expansion.VectorQueries = cleanVariants(expansion.VectorQueries, 0)
	expansion.HydePassage = strings.TrimSpace(expansion.HydePassage)

	if len(expansion.LexicalQueries) == 0 && len(expansion.VectorQueries) == 0 {
		return domain.Expansion{}, domain.NewError(domain.KindValidation, "expansion has no usable variants")
	}
	return expansion, nil
}

// cleanVariants trims, drops empties, enforces a token ceiling when
// maxTokens > 0 and caps the list length.
func cleanVariants(variants []string, maxTokens int) []string {
	var out []string
	for _, v := range variants {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if maxTokens > 0 && len(strings.Fields(v)) > maxTokens {
			continue
		}
		out = append(out, v)
		if len(out) == maxExpansionVariants {
			break
		}
	}
	return out
}

// extractJSONObject pulls the outermost JSON object out of model
// output, tolerating surrounding prose or code fences.
func extractJSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
