// Package cardnews wires the card-news generator: the reference corpus and
// its similarity search, the planner, the generation orchestrator and the
// MCP tool server that exposes them.
package cardnews

import (
	"context"
	"errors"
	"log/slog"

	"github.com/chiclooc-rgb/card-news-generator/internal/config"
	"github.com/chiclooc-rgb/card-news-generator/internal/corpus"
	"github.com/chiclooc-rgb/card-news-generator/internal/corpusstore"
	"github.com/chiclooc-rgb/card-news-generator/internal/document"
	"github.com/chiclooc-rgb/card-news-generator/internal/errortypes"
	"github.com/chiclooc-rgb/card-news-generator/internal/genai"
	"github.com/chiclooc-rgb/card-news-generator/internal/orchestrator"
	"github.com/chiclooc-rgb/card-news-generator/internal/plan"
	"github.com/chiclooc-rgb/card-news-generator/internal/planner"
	"github.com/chiclooc-rgb/card-news-generator/internal/queue"
	"github.com/chiclooc-rgb/card-news-generator/internal/search"
	"github.com/chiclooc-rgb/card-news-generator/internal/server"
	"github.com/chiclooc-rgb/card-news-generator/internal/telemetry"
	"github.com/chiclooc-rgb/card-news-generator/internal/vector"
)

// Config represents the configuration for the card-news service.
type Config = config.Config

// Re-exported so callers outside the module can drive a service.
type (
	Plan         = plan.Plan
	PageType     = plan.PageType
	PlanResult   = planner.Result
	RunOptions   = orchestrator.RunOptions
	RunContext   = orchestrator.RunContext
	Record       = orchestrator.Record
	Status       = orchestrator.Status
	HealthReport = telemetry.HealthReport
	DetailLevel  = genai.DetailLevel
)

// Components are the wired parts of a service. Corpus may be nil when it
// could not be loaded; search then returns no references.
type Components struct {
	Metrics      *telemetry.MetricsCollector
	Corpus       *corpus.Corpus
	Embedder     vector.Embedder
	Client       *genai.Client
	Search       *search.Service
	Planner      planner.Planner
	Orchestrator *orchestrator.Orchestrator
}

// Service represents the card-news generator service.
type Service struct {
	config     *config.Config
	components *Components
	toolServer *server.MCPCardNewsToolServer
	logger     *slog.Logger
}

// ServiceOptions defines the options for creating a new Service.
type ServiceOptions struct {
	Config     *Config      // Pre-filled config. If nil, ConfigPath is used.
	ConfigPath string       // Path to config file. Used if Config is nil. If both are empty, DefaultConfig() is used.
	Logger     *slog.Logger // External logger. If nil, slog.Default() is used.
}

// DefaultConfig returns the default configuration for the card-news service.
func DefaultConfig() *Config {
	return config.NewConfig()
}

// NewService creates a Service with the given options.
// If opts.Config is provided, it will be used directly.
// Otherwise, if opts.ConfigPath is provided, configuration will be loaded from that path.
// If neither is provided, DefaultConfig() will be used.
func NewService(ctx context.Context, opts ServiceOptions) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var cfg *Config
	var err error

	if opts.Config != nil {
		cfg = opts.Config
		logger.Info("Using provided Config object for service initialization")
	} else if opts.ConfigPath != "" {
		logger.Info("Loading configuration for service initialization", "path", opts.ConfigPath)
		cfg, err = config.LoadConfigWithPath(opts.ConfigPath)
		if err != nil {
			return nil, errortypes.ConfigError(err, "Failed to load configuration from path: "+opts.ConfigPath)
		}
	} else {
		logger.Warn("No Config object or ConfigPath provided, using default configuration")
		cfg = DefaultConfig()
	}

	components, err := CreateComponents(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create components during service initialization", "error", err)
		return nil, err
	}

	s := &Service{
		config:     cfg,
		components: components,
		logger:     logger,
	}

	logger.Info("Initializing card news tool server component")
	s.toolServer = server.NewCardNewsToolServer(components.Search, components.Planner, components.Orchestrator, s.Health, logger)
	if err := s.toolServer.Initialize(); err != nil {
		components.Orchestrator.Close()
		return nil, errortypes.ConfigError(err, "Failed to initialize MCP card news tool server component")
	}

	logger.Info("Card news service successfully initialized",
		"corpus_items", components.Corpus.Len(),
		"embedder", cfg.Embedder.Provider)
	return s, nil
}

// CreateComponents creates and initializes the components of the service
// without creating a tool server. A corpus or embedder that cannot be set
// up is logged and left out, so search degrades to empty results instead of
// failing the service.
func CreateComponents(ctx context.Context, cfg *Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		return nil, errortypes.ConfigError(errors.New("config is nil"), "cannot create components")
	}

	metrics := telemetry.NewMetricsCollector()
	components := &Components{Metrics: metrics}

	c, err := LoadCorpus(ctx, cfg, logger)
	if err != nil {
		errortypes.LogError(logger, errortypes.DatabaseError(err, "Reference corpus unavailable, searches will return no references").
			WithField("source", cfg.Corpus.Source))
	} else {
		components.Corpus = c
		logger.Info("Reference corpus loaded", "items", c.Len(), "dimensions", c.Dimensions(), "categories", c.CategoryCounts())
	}

	genCfg := cfg.GenAIConfig()
	components.Client = genai.NewClient(genCfg, metrics, logger.With("component", "genai"))
	if !components.Client.Healthy() {
		logger.Warn("No generator API key configured; plans use the local planner and pages use placeholders")
	}

	emb, err := createEmbedder(cfg, components.Client, metrics, logger)
	if err != nil {
		errortypes.LogError(logger, errortypes.ConfigError(err, "Embedder unavailable, searches will return no references").
			WithField("provider", cfg.Embedder.Provider))
	} else {
		components.Embedder = emb
	}

	engine := search.NewEngine(components.Corpus, cfg.SearchOptions())
	components.Search = search.NewService(engine, components.Embedder, metrics, logger.With("component", "search"))

	components.Planner = planner.NewGeminiPlanner(components.Client, components.Search, &planner.Config{
		Examples: cfg.Search.PlanExamples,
	}, metrics, logger)
	if err := components.Planner.Initialize(); err != nil {
		return nil, errortypes.ConfigError(err, "Failed to initialize planner")
	}

	components.Orchestrator = orchestrator.New(components.Search, components.Client, orchestrator.Options{
		InterTaskDelay: cfg.InterTaskDelay(),
		SampleSize:     cfg.Search.SampleSize,
		AspectRatio:    cfg.Generator.AspectRatio,
		Metrics:        metrics,
		Logger:         logger,
	})

	logger.Info("Components successfully initialized")
	return components, nil
}

// createEmbedder returns the query embedder for the configured provider.
// The google provider reuses client when the keys match.
func createEmbedder(cfg *Config, client *genai.Client, metrics *telemetry.MetricsCollector, logger *slog.Logger) (vector.Embedder, error) {
	logger.Info("Initializing embedder", "provider", cfg.Embedder.Provider, "dimensions", cfg.Embedder.Dimensions)

	var emb vector.Embedder
	switch cfg.Embedder.Provider {
	case "google", "":
		if cfg.Embedder.ApiKey == client.APIKey {
			emb = client
		} else {
			embCfg := cfg.GenAIConfig()
			embCfg.APIKey = cfg.Embedder.ApiKey
			emb = genai.NewClient(embCfg, metrics, logger.With("component", "genai"))
		}
	case "openai":
		openaiEmb, err := genai.NewOpenAIEmbedder(cfg.Embedder.ApiKey, "", cfg.Embedder.Model, cfg.Embedder.Dimensions, metrics)
		if err != nil {
			return nil, err
		}
		emb = openaiEmb
	case "mock":
		emb = vector.NewMockEmbedder(cfg.Embedder.Dimensions)
	default:
		logger.Warn("Unknown embedder provider, using mock embedder", "provider", cfg.Embedder.Provider)
		emb = vector.NewMockEmbedder(cfg.Embedder.Dimensions)
	}

	if err := emb.Initialize(); err != nil {
		return nil, err
	}
	return emb, nil
}

// LoadCorpus loads the reference corpus from the configured source.
func LoadCorpus(ctx context.Context, cfg *Config, logger *slog.Logger) (*corpus.Corpus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Corpus.Source {
	case "sqlite":
		logger.Info("Loading reference corpus from SQLite", "path", cfg.Corpus.SQLitePath)
		store := corpusstore.NewSQLiteCorpusStore()
		if err := store.Initialize(cfg.Corpus.SQLitePath); err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Load(ctx)
	default:
		logger.Info("Loading reference corpus from JSON",
			"meta_path", cfg.Corpus.MetaPath,
			"embeddings_path", cfg.Corpus.EmbeddingsPath)
		return corpus.NewFileSource(cfg.Corpus.MetaPath, cfg.Corpus.EmbeddingsPath).Load(ctx)
	}
}

// ImportCorpus reads the JSON corpus files named in cfg and replaces the
// contents of the SQLite corpus database with them.
func ImportCorpus(ctx context.Context, cfg *Config, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c, err := corpus.NewFileSource(cfg.Corpus.MetaPath, cfg.Corpus.EmbeddingsPath).Load(ctx)
	if err != nil {
		return 0, errortypes.ValidationError(err, "Failed to read JSON corpus").
			WithField("meta_path", cfg.Corpus.MetaPath).
			WithField("embeddings_path", cfg.Corpus.EmbeddingsPath)
	}

	store := corpusstore.NewSQLiteCorpusStore()
	if err := store.Initialize(cfg.Corpus.SQLitePath); err != nil {
		return 0, errortypes.DatabaseError(err, "Failed to open corpus database").
			WithField("path", cfg.Corpus.SQLitePath)
	}
	defer store.Close()

	n, err := store.Import(c)
	if err != nil {
		return 0, errortypes.DatabaseError(err, "Failed to import corpus").
			WithField("path", cfg.Corpus.SQLitePath)
	}

	logger.Info("Corpus imported", "items", n, "path", cfg.Corpus.SQLitePath)
	return n, nil
}

// Start serves the MCP tools over stdio. It blocks until stdin closes.
func (s *Service) Start() error {
	s.logger.Info("Starting card news service")
	return s.toolServer.Start()
}

// Stop stops the tool server and the orchestrator. A generation call in
// flight is cancelled.
func (s *Service) Stop() error {
	s.logger.Info("Stopping card news service")
	if err := s.toolServer.Stop(); err != nil {
		s.logger.Error("Error stopping tool server", "error", err)
		return err
	}

	if err := s.components.Orchestrator.Close(); err != nil {
		s.logger.Error("Failed to close orchestrator", "error", err)
		return err
	}

	s.logger.Info("Card news service stopped")
	return nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// Components returns the wired components.
func (s *Service) Components() *Components {
	return s.components
}

// GeneratePlan builds a plan for content.
func (s *Service) GeneratePlan(ctx context.Context, content string, detail DetailLevel) (*PlanResult, error) {
	return s.components.Planner.Plan(ctx, content, detail)
}

// GeneratePlanFromFile loads the document at path and builds a plan for it.
func (s *Service) GeneratePlanFromFile(ctx context.Context, path string, detail DetailLevel) (*PlanResult, error) {
	text, err := document.Load(path)
	if err != nil {
		return nil, err
	}
	return s.GeneratePlan(ctx, text, detail)
}

// StartRun enqueues every page of p and starts generating.
func (s *Service) StartRun(p *Plan, opts RunOptions) (*RunContext, error) {
	return s.components.Orchestrator.StartRun(p, opts)
}

// Regenerate queues a redo of one page of the current run.
func (s *Service) Regenerate(pageIndex int, pageType PageType, label, feedback string) (*queue.Task, error) {
	return s.components.Orchestrator.EnqueueRegeneration(pageIndex, pageType, label, feedback)
}

// Search returns up to sampleSize references for query. category may be empty.
func (s *Service) Search(ctx context.Context, query, category string, sampleSize int) []corpus.ReferenceItem {
	return s.components.Search.SearchText(ctx, query, category, sampleSize)
}

// Results returns the records of the current run.
func (s *Service) Results() []Record {
	return s.components.Orchestrator.Results()
}

// Status returns a snapshot of the queue.
func (s *Service) Status() Status {
	return s.components.Orchestrator.Status()
}

// Wait blocks until the queue is drained or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	return s.components.Orchestrator.Wait(ctx)
}

// Health reports the readiness of the corpus, embedder and generator
// together with the collected metrics.
func (s *Service) Health() (*HealthReport, error) {
	return telemetry.CreateHealthReport(s.components.Metrics, map[string]bool{
		"corpus":    s.components.Search.Loaded(),
		"embedder":  s.components.Embedder != nil,
		"generator": s.components.Client.Healthy(),
	})
}
