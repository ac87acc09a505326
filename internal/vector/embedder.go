// Package vector provides interfaces and utilities for vector operations
// and text embedding within the card-news generator.
package vector

import "context"

const (
	// DefaultEmbeddingDimensions matches text-embedding-004, the model the
	// reference corpus was embedded with.
	DefaultEmbeddingDimensions = 768

	// MaxQueryLength is the number of characters of a query sent to an embedding model.
	MaxQueryLength = 1000
)

// Embedder defines the interface for creating vector embeddings from text.
type Embedder interface {
	// CreateEmbedding converts text into a vector representation.
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)

	// Initialize sets up the embedder with any required configuration.
	Initialize() error
}

// TruncateQuery cuts text to MaxQueryLength characters without splitting a rune.
func TruncateQuery(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxQueryLength {
		return text
	}
	return string(runes[:MaxQueryLength])
}
