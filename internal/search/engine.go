// Package search implements similarity search over the reference corpus:
// cosine scoring, category filtering and a randomized sample drawn from the
// top-scoring pool.
package search

import (
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chiclooc-rgb/card-news-generator/internal/corpus"
	"github.com/chiclooc-rgb/card-news-generator/internal/vector"
)

const (
	// DefaultPoolCapFiltered is the pool size used when a category filter is active.
	DefaultPoolCapFiltered = 100

	// DefaultPoolCapUnfiltered is the pool size used without a category filter.
	DefaultPoolCapUnfiltered = 15
)

// Options configures an Engine.
type Options struct {
	PoolCapFiltered   int
	PoolCapUnfiltered int

	// Seed seeds the sampling source. Zero seeds from the clock.
	Seed uint64
}

// DefaultOptions returns the pool caps the reference corpus was tuned with.
func DefaultOptions() Options {
	return Options{
		PoolCapFiltered:   DefaultPoolCapFiltered,
		PoolCapUnfiltered: DefaultPoolCapUnfiltered,
	}
}

// Engine scores a query vector against every corpus entry. The corpus is
// decoded once at construction and never mutated, so concurrent searches
// only contend on the random source.
type Engine struct {
	corpus  *corpus.Corpus
	vectors [][]float32
	opts    Options

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates an engine over c. A nil or empty corpus yields an engine
// whose searches always return no results.
func NewEngine(c *corpus.Corpus, opts Options) *Engine {
	if opts.PoolCapFiltered <= 0 {
		opts.PoolCapFiltered = DefaultPoolCapFiltered
	}
	if opts.PoolCapUnfiltered <= 0 {
		opts.PoolCapUnfiltered = DefaultPoolCapUnfiltered
	}

	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	e := &Engine{
		corpus: c,
		opts:   opts,
		rng:    rand.New(rand.NewPCG(seed, seed>>1|1)),
	}

	if n := c.Len(); n > 0 {
		e.vectors = make([][]float32, n)
		for i := 0; i < n; i++ {
			e.vectors[i] = c.Decode(i)
		}
	}
	return e
}

// Loaded reports whether the engine has a non-empty corpus to search.
func (e *Engine) Loaded() bool {
	return e != nil && len(e.vectors) > 0
}

// Corpus returns the corpus the engine searches.
func (e *Engine) Corpus() *corpus.Corpus {
	if e == nil {
		return nil
	}
	return e.corpus
}

// Candidate is a corpus index with its similarity to the query.
type Candidate struct {
	Index int
	Score float64
}

// Search returns up to sampleSize distinct reference items drawn at random
// from the best-scoring pool. The result is in draw order. An empty category
// disables filtering; otherwise the match is case-insensitive.
func (e *Engine) Search(query []float32, category string, sampleSize int) []corpus.ReferenceItem {
	if !e.Loaded() || sampleSize <= 0 || len(query) == 0 {
		return []corpus.ReferenceItem{}
	}
	if len(query) != e.corpus.Dimensions() {
		return []corpus.ReferenceItem{}
	}

	pool := e.Pool(query, category)

	e.mu.Lock()
	picks := Sample(e.rng, len(pool), sampleSize)
	e.mu.Unlock()

	results := make([]corpus.ReferenceItem, 0, len(picks))
	for _, p := range picks {
		results = append(results, e.corpus.Item(pool[p].Index))
	}
	return results
}

// Pool returns the top-scoring candidates for query in descending similarity
// order, capped by the filtered or unfiltered pool size.
func (e *Engine) Pool(query []float32, category string) []Candidate {
	if !e.Loaded() {
		return nil
	}

	candidates := make([]Candidate, 0, len(e.vectors))
	for i, v := range e.vectors {
		if category != "" && !strings.EqualFold(e.corpus.Item(i).PageType, category) {
			continue
		}
		candidates = append(candidates, Candidate{
			Index: i,
			Score: vector.CosineSimilarity(query, v),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	limit := e.opts.PoolCapUnfiltered
	if category != "" {
		limit = e.opts.PoolCapFiltered
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// Sample draws min(poolSize, n) distinct indexes in [0, poolSize) by
// rejection sampling and returns them in draw order.
func Sample(rng *rand.Rand, poolSize, n int) []int {
	if n <= 0 || poolSize <= 0 {
		return []int{}
	}
	if n > poolSize {
		n = poolSize
	}

	used := make(map[int]struct{}, n)
	picks := make([]int, 0, n)
	for len(picks) < n {
		idx := rng.IntN(poolSize)
		if _, seen := used[idx]; seen {
			continue
		}
		used[idx] = struct{}{}
		picks = append(picks, idx)
	}
	return picks
}
