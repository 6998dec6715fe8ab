// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Store: document, content, chunk, vector and link persistence
//   - Converter: transforms source files into canonical markdown
//   - Discovery: enumerates and watches collection source files
//   - ConfigStore: application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - VectorIndex: nearest-neighbour search (HNSWlib). Only enabled when EmbeddingService is configured.
//   - EmbeddingService: generates vector embeddings. Without it, vector search is disabled.
//   - LLMService: language model operations. Without it, query expansion and reranking are disabled.
//   - PromptStore: user-editable prompt templates. Without it, built-in defaults are used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: any adapter or converter package
package driven
