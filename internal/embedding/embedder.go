// Package embedding provides text embedding via remote and local backends.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations must be safe
// for concurrent use; the indexer and the query path share one instance.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds texts into a slice parallel to the input. An entry
	// may be nil when that text could not be embedded; callers skip nil
	// entries rather than failing the whole batch.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the length of every vector this embedder produces.
	Dimensions() int
	Close() error
}
