// Package corpusstore provides persistent storage for the reference corpus,
// so a corpus imported once from JSON can be reloaded without re-parsing it.
package corpusstore

import (
	"context"

	"github.com/chiclooc-rgb/card-news-generator/internal/corpus"
)

// CorpusStore defines the interface for storing and loading the reference corpus.
type CorpusStore interface {
	// Initialize opens the store at the given database path.
	Initialize(dbPath string) error

	// Close closes the store and releases any resources.
	Close() error

	// Import replaces the stored corpus with c and returns the number of items written.
	Import(c *corpus.Corpus) (int, error)

	// Load reads the stored corpus back in index order.
	Load(ctx context.Context) (*corpus.Corpus, error)

	// Count returns the number of stored reference items.
	Count() (int, error)

	// Clear deletes every stored item and returns how many were removed.
	Clear() (int, error)
}
