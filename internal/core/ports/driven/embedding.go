package driven

import "context"

// EmbeddingService generates vector embeddings from text.
//
// Note: this only generates vectors; the KnowledgeStore persists and
// searches them. Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, all-minilm)
//   - Local models via inference servers
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result has
	// exactly the same length and order as the input; any single failure
	// aborts the whole call. Implementations process fixed-size sub-batches
	// with bounded concurrency and pause between sub-batches to respect
	// provider rate limits.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 768, 1536).
	// This is determined by the model and is constant for a deployment.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight
	// request. Used at startup to surface configuration errors early.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
