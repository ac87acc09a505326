package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/chiclooc-rgb/card-news-generator/internal/corpus"
	"github.com/chiclooc-rgb/card-news-generator/internal/telemetry"
	"github.com/chiclooc-rgb/card-news-generator/internal/vector"
)

// Service answers text queries: it acquires the query embedding and then
// searches the engine. Failures at either step degrade to an empty result.
type Service struct {
	engine   *Engine
	embedder vector.Embedder
	metrics  *telemetry.MetricsCollector
	logger   *slog.Logger
}

// NewService creates a search service. A nil embedder disables search.
func NewService(engine *Engine, embedder vector.Embedder, metrics *telemetry.MetricsCollector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:   engine,
		embedder: embedder,
		metrics:  metrics,
		logger:   logger,
	}
}

// Loaded reports whether there is a corpus to search.
func (s *Service) Loaded() bool {
	return s != nil && s.engine.Loaded()
}

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// SearchText embeds query and returns up to sampleSize reference items for
// category. It never returns an error; every failure is logged and yields
// an empty slice.
func (s *Service) SearchText(ctx context.Context, query, category string, sampleSize int) []corpus.ReferenceItem {
	start := time.Now()
	s.metrics.IncrementCounter(telemetry.MetricSearchRequests, 1)
	defer func() {
		s.metrics.RecordTimer(telemetry.MetricSearchResponseTime, time.Since(start))
	}()

	if !s.Loaded() || sampleSize <= 0 {
		s.metrics.IncrementCounter(telemetry.MetricSearchEmpty, 1)
		return []corpus.ReferenceItem{}
	}
	if s.embedder == nil {
		s.logger.Warn("Search skipped: no embedder configured")
		s.metrics.IncrementCounter(telemetry.MetricSearchEmpty, 1)
		return []corpus.ReferenceItem{}
	}

	embedding, err := s.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		s.logger.Warn("Failed to acquire query embedding", "error", err)
		s.metrics.IncrementCounter(telemetry.MetricSearchEmbeddingFailures, 1)
		s.metrics.IncrementCounter(telemetry.MetricSearchEmpty, 1)
		return []corpus.ReferenceItem{}
	}

	if len(embedding) != s.engine.Corpus().Dimensions() {
		s.logger.Warn("Query embedding dimensions do not match corpus",
			"query_dimensions", len(embedding),
			"corpus_dimensions", s.engine.Corpus().Dimensions())
		s.metrics.IncrementCounter(telemetry.MetricSearchEmpty, 1)
		return []corpus.ReferenceItem{}
	}

	results := s.engine.Search(embedding, category, sampleSize)
	if len(results) == 0 {
		s.metrics.IncrementCounter(telemetry.MetricSearchEmpty, 1)
	}

	s.logger.Debug("Reference search completed",
		"category", category,
		"requested", sampleSize,
		"returned", len(results))
	return results
}
