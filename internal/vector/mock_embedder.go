package vector

import (
	"context"
	"crypto/md5"
	"encoding/binary"
)

// MockEmbedder is a simple implementation of the Embedder interface.
// It creates deterministic but simplistic embeddings for offline runs and tests.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder creates a new MockEmbedder with the specified dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &MockEmbedder{
		dimensions: dimensions,
	}
}

// Initialize sets up the embedder with any required configuration.
func (e *MockEmbedder) Initialize() error {
	return nil
}

// CreateEmbedding generates a mock embedding for the given text.
// The same text always produces the same unit-length embedding.
func (e *MockEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embedding := make([]float32, e.dimensions)
	hash := md5.Sum([]byte(TruncateQuery(text)))

	for i := 0; i < e.dimensions; i++ {
		// Use 4 bytes from the hash as a seed for each dimension, wrapping around
		hashIdx := (i * 4) % len(hash)
		seed := binary.LittleEndian.Uint32(append(hash[hashIdx:], hash[:4]...))
		seed ^= uint32(i) * 2654435761

		embedding[i] = float32(seed%1000)/500.0 - 1.0
	}

	normalize(embedding)
	return embedding, nil
}

// normalize scales the embedding to unit length in place.
func normalize(embedding []float32) {
	magnitude := float32(Magnitude(embedding))
	if magnitude == 0 {
		return
	}
	for i := range embedding {
		embedding[i] /= magnitude
	}
}

// Dimensions reports the embedding size produced by this embedder.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

var _ Embedder = (*MockEmbedder)(nil)
