// Package embeddings defines the text-embedding interface used by the
// transcript archive's semantic search.
package embeddings

import "context"

// Provider turns text into embedding vectors.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension produced by this provider.
	Dimensions() int

	// ModelID returns the model identifier, for logs and metrics.
	ModelID() string
}
