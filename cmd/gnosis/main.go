// Command gnosis indexes local document collections and answers
// hybrid lexical and semantic queries over them.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/gnosis/internal/adapters/driven/ai"
	"github.com/custodia-labs/gnosis/internal/adapters/driven/config/file"
	"github.com/custodia-labs/gnosis/internal/adapters/driven/discovery/filesystem"
	"github.com/custodia-labs/gnosis/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/gnosis/internal/adapters/driven/vectorindex"
	"github.com/custodia-labs/gnosis/internal/adapters/driving/cli"
	"github.com/custodia-labs/gnosis/internal/chunker"
	"github.com/custodia-labs/gnosis/internal/converters"
	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
	"github.com/custodia-labs/gnosis/internal/core/ports/driving"
	"github.com/custodia-labs/gnosis/internal/core/services"
	"github.com/custodia-labs/gnosis/internal/logger"
)

// version is overridden at build time with -ldflags.
var version = "dev"

func main() {
	configStore, err := file.NewConfigStore("")
	if err != nil {
		fatal("cannot open configuration", err)
	}

	dataDir, err := file.DefaultDataDir()
	if err != nil {
		fatal("cannot resolve data directory", err)
	}

	store, err := sqlite.Open(
		filepath.Join(dataDir, "gnosis.db"),
		configStore.GetString("fts.tokenizer"),
	)
	if err != nil {
		fatal("cannot open store", err)
	}
	defer store.Close()

	embedder := buildEmbedder(configStore)
	llm := buildLLM(configStore)

	var vecIndex driven.VectorIndex
	embedModel := configStore.GetString("embedding.model")
	if embedder != nil {
		embedModel = embedder.ModelName()
		idx, err := vectorindex.Open(
			store,
			filepath.Join(dataDir, indexFileName(embedModel)),
			embedder.Dimensions(),
			embedModel,
		)
		if err != nil {
			logger.Warn("Vector side-index unavailable: %v", err)
		} else {
			vecIndex = idx
			defer idx.Close()
		}
	}

	discovery := filesystem.New(filesystem.Config{})
	pipeline := converters.NewPipeline(converters.DefaultRegistry())
	splitter := newChunker()

	searchService := services.NewSearchService(store, vecIndex, embedder, llm)
	if promptStore, err := file.NewPromptStore(""); err == nil {
		searchService.SetPromptStore(promptStore)
	} else {
		logger.Warn("Prompt store unavailable, using built-in templates: %v", err)
	}

	var backlog driving.BacklogProcessor
	if embedder != nil {
		backlog = services.NewBacklogService(store, embedder, vecIndex)
	}

	cli.SetServices(cli.Services{
		Ingest:      services.NewIngestService(store, discovery, pipeline, splitter),
		Search:      searchService,
		Graph:       services.NewGraphService(store, vecIndex, embedModel),
		Backlog:     backlog,
		Discovery:   discovery,
		Store:       store,
		Config:      configStore,
		Validator:   ai.NewConfigValidator(),
		Collections: cli.ParseCollections(configStore.GetStringSlice("collections")),
		Version:     version,
	})
	cli.SetVectorIndex(vecIndex)

	cli.Execute()
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "gnosis: %s: %v\n", msg, err)
	os.Exit(2)
}

// buildEmbedder creates the embedding service from configuration.
// Unconfigured or rejected providers yield nil, which leaves search
// lexical-only; reachability is not checked here.
func buildEmbedder(cfg driven.ConfigStore) driven.EmbeddingService {
	settings := &domain.EmbeddingSettings{
		Provider: domain.AIProvider(cfg.GetString("embedding.provider")),
		Model:    cfg.GetString("embedding.model"),
		BaseURL:  cfg.GetString("embedding.base_url"),
		APIKey:   cfg.GetString("embedding.api_key"),
	}
	if settings.Model == "" {
		settings.Model = domain.DefaultEmbeddingModels()[settings.Provider]
	}

	svc, err := ai.CreateEmbeddingService(settings)
	if err != nil {
		logger.Warn("Embedding provider disabled: %v", err)
		return nil
	}
	return svc
}

// buildLLM creates the LLM service from configuration. Without it
// query expansion and reranking are skipped.
func buildLLM(cfg driven.ConfigStore) driven.LLMService {
	settings := &domain.LLMSettings{
		Provider: domain.AIProvider(cfg.GetString("llm.provider")),
		Model:    cfg.GetString("llm.model"),
		BaseURL:  cfg.GetString("llm.base_url"),
		APIKey:   cfg.GetString("llm.api_key"),
	}

	svc, err := ai.CreateLLMService(settings)
	if err != nil {
		logger.Warn("LLM provider disabled: %v", err)
		return nil
	}
	return svc
}

// newChunker builds the markdown chunker, preferring exact BPE token
// counts when the tokenizer data loads. GNOSIS_MODEL_CACHE_DIR points
// tiktoken at a persistent cache for its encoding data.
func newChunker() *chunker.Chunker {
	if dir := os.Getenv("GNOSIS_MODEL_CACHE_DIR"); dir != "" {
		os.Setenv("TIKTOKEN_CACHE_DIR", dir)
	}
	counter, err := chunker.NewTiktokenCounter()
	if err != nil {
		logger.Warn("Tokenizer unavailable, estimating token counts: %v", err)
		return chunker.New()
	}
	return chunker.New(chunker.WithTokenCounter(counter))
}

// indexFileName derives the side-index file name from the embedding
// model, flattening path separators.
func indexFileName(model string) string {
	safe := strings.NewReplacer("/", "-", ":", "-", " ", "-").Replace(model)
	return "index-" + safe + ".hnsw"
}
