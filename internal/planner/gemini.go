package planner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chiclooc-rgb/card-news-generator/internal/corpus"
	"github.com/chiclooc-rgb/card-news-generator/internal/genai"
	"github.com/chiclooc-rgb/card-news-generator/internal/plan"
	"github.com/chiclooc-rgb/card-news-generator/internal/telemetry"
)

const (
	// Default settings
	DefaultTimeout       = 60 * time.Second
	DefaultMaxRetries    = 2
	DefaultRetryDelay    = 2 * time.Second
	DefaultCacheCapacity = 100
	DefaultCacheTTL      = time.Hour
	DefaultExamples      = 3

	// ExampleQueryLength is how much of the document is used to find examples.
	ExampleQueryLength = 500
)

// Errors
var (
	ErrNoGenerator = errors.New("planner: no plan generator configured")
)

// PlanGenerator produces a plan from a request. *genai.Client implements it.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, req genai.PlanRequest) (*plan.Plan, error)
}

// ExampleSearcher finds reference items to show the plan model.
type ExampleSearcher interface {
	SearchText(ctx context.Context, query, category string, sampleSize int) []corpus.ReferenceItem
}

// Config holds configuration for the GeminiPlanner.
type Config struct {
	Examples      int
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	CacheCapacity int
	CacheTTL      time.Duration

	// DisableFallback makes Plan return the model error instead of a local plan.
	DisableFallback bool
}

// GeminiPlanner is an implementation of the Planner interface that asks the
// plan model for a plan, retrying transient failures and falling back to a
// local plan when the model cannot be reached.
type GeminiPlanner struct {
	generator PlanGenerator
	searcher  ExampleSearcher
	fallback  Planner
	config    Config
	cache     *planCache
	metrics   *telemetry.MetricsCollector
	logger    *slog.Logger
}

// planCache provides thread-safe caching for plans
type planCache struct {
	items    map[string]cachedPlan
	capacity int
	ttl      time.Duration
	mu       sync.RWMutex
}

type cachedPlan struct {
	plan     *plan.Plan
	expireAt time.Time
}

// NewGeminiPlanner creates a planner backed by generator. searcher may be
// nil, in which case no examples are sent.
func NewGeminiPlanner(generator PlanGenerator, searcher ExampleSearcher, config *Config, metrics *telemetry.MetricsCollector, logger *slog.Logger) *GeminiPlanner {
	if config == nil {
		config = &Config{}
	}
	cfg := *config

	// Set defaults if not specified
	if cfg.Examples <= 0 {
		cfg.Examples = DefaultExamples
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = DefaultCacheCapacity
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if metrics == nil {
		metrics = telemetry.NewMetricsCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &GeminiPlanner{
		generator: generator,
		searcher:  searcher,
		fallback:  NewBasicPlanner(0, 0),
		config:    cfg,
		cache: &planCache{
			items:    make(map[string]cachedPlan),
			capacity: cfg.CacheCapacity,
			ttl:      cfg.CacheTTL,
		},
		metrics: metrics,
		logger:  logger.With("component", "planner"),
	}
}

// Initialize checks that a generator is configured.
func (p *GeminiPlanner) Initialize() error {
	if p.generator == nil {
		return ErrNoGenerator
	}
	return nil
}

// Plan asks the plan model for a plan of content. On failure it falls back
// to the basic planner, and to the built-in sample plan when the document
// yields nothing usable.
func (p *GeminiPlanner) Plan(ctx context.Context, content string, detail genai.DetailLevel) (*Result, error) {
	startTime := time.Now()
	defer func() {
		p.metrics.RecordTimer(telemetry.MetricPlanTotalTime, time.Since(startTime))
	}()

	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyDocument
	}
	if detail == "" {
		detail = genai.DetailDetailed
	}

	key := cacheKey(content, detail)
	if cached, found := p.checkCache(key); found {
		p.metrics.IncrementCounter(telemetry.MetricPlanCacheHits, 1)
		return &Result{Plan: cached, Source: SourceCache}, nil
	}
	p.metrics.IncrementCounter(telemetry.MetricPlanCacheMisses, 1)

	err := p.Initialize()
	if err == nil {
		var generated *plan.Plan
		generated, err = p.planWithRetries(ctx, genai.PlanRequest{
			Content:     content,
			DetailLevel: detail,
			Examples:    p.examples(ctx, content),
		})
		if err == nil {
			p.cacheResult(key, generated)
			p.metrics.IncrementCounter(telemetry.MetricPlansGenerated, 1)
			return &Result{Plan: generated, Source: SourceModel}, nil
		}
	}

	if p.config.DisableFallback {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	p.metrics.IncrementCounter(telemetry.MetricFallbackAttempts, 1)
	p.logger.Warn("Plan generation failed, using local plan", "error", err)

	result, ferr := p.fallback.Plan(ctx, content, detail)
	if ferr != nil {
		p.logger.Warn("Local plan failed, using sample plan", "error", ferr)
		result = &Result{Plan: plan.SamplePlan(), Source: SourceSample}
	}
	result.Cause = err.Error()
	return result, nil
}

// examples returns reference items similar to the start of the document.
func (p *GeminiPlanner) examples(ctx context.Context, content string) []corpus.ReferenceItem {
	if p.searcher == nil {
		return nil
	}
	query := []rune(content)
	if len(query) > ExampleQueryLength {
		query = query[:ExampleQueryLength]
	}
	return p.searcher.SearchText(ctx, string(query), "", p.config.Examples)
}

// planWithRetries calls the generator, retrying failures that may be transient.
func (p *GeminiPlanner) planWithRetries(ctx context.Context, req genai.PlanRequest) (*plan.Plan, error) {
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Track retry attempts
			p.metrics.IncrementCounter(telemetry.MetricRetryAttempts, 1)

			// Wait before retry with linear backoff
			timer := time.NewTimer(p.config.RetryDelay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		generated, err := p.generator.GeneratePlan(attemptCtx, req)
		cancel()
		if err == nil {
			return generated, nil
		}

		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		p.logger.Debug("Plan attempt failed", "attempt", attempt+1, "error", err)
	}

	return nil, lastErr
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	if errors.Is(err, genai.ErrMissingAPIKey) {
		return false
	}
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

func cacheKey(content string, detail genai.DetailLevel) string {
	hash := sha256.Sum256([]byte(string(detail) + "\x00" + content))
	return hex.EncodeToString(hash[:])
}

// checkCache looks for a cached plan
func (p *GeminiPlanner) checkCache(key string) (*plan.Plan, bool) {
	p.cache.mu.RLock()
	defer p.cache.mu.RUnlock()

	if item, exists := p.cache.items[key]; exists && time.Now().Before(item.expireAt) {
		return item.plan, true
	}
	return nil, false
}

// cacheResult stores a plan in the cache
func (p *GeminiPlanner) cacheResult(key string, generated *plan.Plan) {
	p.cache.mu.Lock()
	defer p.cache.mu.Unlock()

	// Evict expired entries first, then the oldest one if still full
	if len(p.cache.items) >= p.cache.capacity {
		now := time.Now()
		oldestKey := ""
		var oldest time.Time
		for k, item := range p.cache.items {
			if now.After(item.expireAt) {
				delete(p.cache.items, k)
				continue
			}
			if oldestKey == "" || item.expireAt.Before(oldest) {
				oldestKey, oldest = k, item.expireAt
			}
		}
		if len(p.cache.items) >= p.cache.capacity && oldestKey != "" {
			delete(p.cache.items, oldestKey)
		}
	}

	p.cache.items[key] = cachedPlan{
		plan:     generated,
		expireAt: time.Now().Add(p.cache.ttl),
	}

	p.metrics.SetGauge(telemetry.MetricPlanCacheSize, float64(len(p.cache.items)))
}

// GetMetrics returns the metrics collector for this planner
func (p *GeminiPlanner) GetMetrics() *telemetry.MetricsCollector {
	return p.metrics
}

var (
	_ Planner = (*GeminiPlanner)(nil)
	_ Planner = (*BasicPlanner)(nil)
)
