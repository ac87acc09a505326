// Package config loads and saves the card-news generator configuration.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/localrivet/configurator"
	"github.com/localrivet/gomcp/logx"

	"github.com/chiclooc-rgb/card-news-generator/internal/genai"
	"github.com/chiclooc-rgb/card-news-generator/internal/search"
	"github.com/chiclooc-rgb/card-news-generator/internal/vector"
)

// Global configuration instance
var (
	// Global is the global configuration instance
	Global *Config
	// initOnce ensures initialization happens only once
	initOnce sync.Once
)

// InitGlobal initializes the global configuration
func InitGlobal(configPath string) (*Config, error) {
	var err error
	initOnce.Do(func() {
		Global, err = LoadConfigWithPath(configPath)
	})
	return Global, err
}

// Character is a mascot asset sent with design requests whose content
// mentions Keyword.
type Character struct {
	Keyword string `json:"keyword"`
	Name    string `json:"name"`
	URL     string `json:"url"`
}

// Config represents the card-news generator configuration
type Config struct {
	// Corpus locates the reference corpus.
	Corpus struct {
		// Source selects where the corpus is loaded from ("json", "sqlite").
		Source string `json:"source" env:"CORPUS_SOURCE" validate:"required"`

		// MetaPath is the reference item metadata file.
		MetaPath string `json:"meta_path" env:"CORPUS_META_PATH"`

		// EmbeddingsPath is the quantized embedding file.
		EmbeddingsPath string `json:"embeddings_path" env:"CORPUS_EMBEDDINGS_PATH"`

		// SQLitePath is the path to the SQLite database file.
		SQLitePath string `json:"sqlite_path" env:"SQLITE_PATH"`
	} `json:"corpus"`

	// Search contains similarity search tuning.
	Search struct {
		// PoolCapFiltered bounds the candidate pool of a category search.
		PoolCapFiltered int `json:"pool_cap_filtered" env:"SEARCH_POOL_CAP_FILTERED" validate:"min:1"`

		// PoolCapUnfiltered bounds the candidate pool of an unfiltered search.
		PoolCapUnfiltered int `json:"pool_cap_unfiltered" env:"SEARCH_POOL_CAP_UNFILTERED" validate:"min:1"`

		// SampleSize is the number of reference images used per page.
		SampleSize int `json:"sample_size" env:"SEARCH_SAMPLE_SIZE" validate:"min:1"`

		// PlanExamples is the number of examples shown to the plan model.
		PlanExamples int `json:"plan_examples" env:"SEARCH_PLAN_EXAMPLES"`

		// Seed fixes the sampling order. Zero seeds from the clock.
		Seed uint64 `json:"seed" env:"SEARCH_SEED"`
	} `json:"search"`

	// Queue contains generation queue settings.
	Queue struct {
		// InterTaskDelayMS is the pause between generation calls in milliseconds.
		InterTaskDelayMS int `json:"inter_task_delay_ms" env:"QUEUE_INTER_TASK_DELAY_MS"`
	} `json:"queue"`

	// Embedder contains embedding-related configuration.
	Embedder struct {
		// Provider is the name of the embedding provider to use ("google", "openai", "mock").
		Provider string `json:"provider" env:"EMBEDDER_PROVIDER"`

		// Model is the embedding model identifier.
		Model string `json:"model" env:"EMBEDDER_MODEL"`

		// Dimensions is the number of dimensions for the embeddings.
		Dimensions int `json:"dimensions" env:"EMBEDDER_DIMENSIONS" validate:"min:1"`

		// ApiKey is the API key for the embedding provider.
		ApiKey string `json:"api_key" env:"EMBEDDER_API_KEY"`
	} `json:"embedder"`

	// Generator contains plan and design model configuration.
	Generator struct {
		ApiKey            string      `json:"api_key" env:"GENERATOR_API_KEY"`
		BaseURL           string      `json:"base_url" env:"GENERATOR_BASE_URL"`
		PlanModel         string      `json:"plan_model" env:"GENERATOR_PLAN_MODEL"`
		ImageModel        string      `json:"image_model" env:"GENERATOR_IMAGE_MODEL"`
		TimeoutSeconds    int         `json:"timeout_seconds" env:"GENERATOR_TIMEOUT_SECONDS"`
		RequestsPerMinute int         `json:"requests_per_minute" env:"GENERATOR_REQUESTS_PER_MINUTE"`
		AspectRatio       string      `json:"aspect_ratio" env:"GENERATOR_ASPECT_RATIO"`
		Restrictions      []string    `json:"restrictions,omitempty"`
		Characters        []Character `json:"characters,omitempty"`
	} `json:"generator"`

	// Logging contains logging-related configuration.
	Logging struct {
		// Level is the minimum log level to display ("debug", "info", "warn", "error").
		Level string `json:"level" env:"LOG_LEVEL" validate:"required"`

		// Format is the log format to use ("text", "json").
		Format string `json:"format" env:"LOG_FORMAT"`
	} `json:"logging"`

	// Internal state (not saved to config file)
	configPath     string       `json:"-"`
	mutex          sync.RWMutex `json:"-"`
	lastModifiedAt time.Time    `json:"-"`
}

// Default configuration values
const (
	DefaultConfigFilename    = ".cardnewsconfig"
	DefaultSQLitePath        = ".cardnews.db"
	DefaultMetaPath          = "data/cardnews_meta.json"
	DefaultEmbeddingsPath    = "data/embeddings_q8.json"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultInterTaskDelayMS  = 500
	DefaultPlanExamples      = 3
	DefaultSampleSize        = 2
	DefaultGeneratorTimeoutS = 120
	DefaultEmbedderProvider  = "google"
	DefaultCorpusSource      = "json"
	defaultOpenAIEmbedModel  = "text-embedding-3-small"
	defaultOpenAIEmbedDims   = 1536
	environmentPrefix        = "CARDNEWS"
	mcpModeEnv               = "MCP_MODE"
	googleAPIKeyEnv          = "GOOGLE_API_KEY"
	openAIAPIKeyEnv          = "OPENAI_API_KEY"
)

// NewConfig creates a new Config instance with default values
func NewConfig() *Config {
	config := &Config{}
	config.Corpus.Source = DefaultCorpusSource
	config.Corpus.MetaPath = DefaultMetaPath
	config.Corpus.EmbeddingsPath = DefaultEmbeddingsPath
	config.Corpus.SQLitePath = DefaultSQLitePath
	config.Search.PoolCapFiltered = search.DefaultPoolCapFiltered
	config.Search.PoolCapUnfiltered = search.DefaultPoolCapUnfiltered
	config.Search.SampleSize = DefaultSampleSize
	config.Search.PlanExamples = DefaultPlanExamples
	config.Queue.InterTaskDelayMS = DefaultInterTaskDelayMS
	config.Embedder.Provider = DefaultEmbedderProvider
	config.Embedder.Model = genai.DefaultEmbeddingModel
	config.Embedder.Dimensions = vector.DefaultEmbeddingDimensions
	config.Generator.BaseURL = genai.DefaultBaseURL
	config.Generator.PlanModel = genai.DefaultPlanModel
	config.Generator.ImageModel = genai.DefaultImageModel
	config.Generator.TimeoutSeconds = DefaultGeneratorTimeoutS
	config.Generator.AspectRatio = genai.DefaultAspectRatio
	config.Logging.Level = DefaultLogLevel
	config.Logging.Format = DefaultLogFormat
	return config
}

// LoadConfig loads the configuration from the default path
func LoadConfig() (*Config, error) {
	return LoadConfigWithPath(DefaultConfigFilename)
}

// loadLogWriter is stdout unless the process speaks MCP over stdio.
func loadLogWriter() io.Writer {
	if os.Getenv(mcpModeEnv) != "" {
		return os.Stderr
	}
	return os.Stdout
}

// LoadConfigWithPath loads the configuration from a specific path. A
// missing file leaves the defaults in place; CARDNEWS_* environment
// variables are applied either way.
func LoadConfigWithPath(configPath string) (*Config, error) {
	// Create a default logger for configuration loading
	stdLogger := slog.New(slog.NewTextHandler(loadLogWriter(), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Create default configuration
	cfg := NewConfig()

	// Try to find config file if path is default
	if configPath == DefaultConfigFilename {
		foundPath, err := configurator.FindConfigFile(configPath)
		if err == nil {
			configPath = foundPath
			stdLogger.Debug("Found config file at " + foundPath)
		}
	}

	config := configurator.New(stdLogger).
		WithProvider(configurator.NewDefaultProvider())

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		stdLogger.Info("Config file not found, using default configuration", "path", configPath)
	} else {
		stdLogger.Info("Loading configuration", "path", configPath)
		config = config.WithProvider(configurator.NewFileProvider(configPath))
	}

	config = config.
		WithProvider(configurator.NewEnvProvider(environmentPrefix)).
		WithValidator(configurator.NewDefaultValidator())

	// Load configuration
	ctx := context.Background()
	if err := config.Load(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.applyKeyFallbacks()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Store the config path for future operations
	cfg.configPath = configPath
	cfg.lastModifiedAt = time.Now()

	return cfg, nil
}

// applyKeyFallbacks fills empty API keys from the provider's conventional
// environment variable.
func (c *Config) applyKeyFallbacks() {
	if c.Generator.ApiKey == "" {
		c.Generator.ApiKey = os.Getenv(googleAPIKeyEnv)
	}
	if c.Embedder.ApiKey == "" {
		switch c.Embedder.Provider {
		case "openai":
			c.Embedder.ApiKey = os.Getenv(openAIAPIKeyEnv)
		case "google":
			c.Embedder.ApiKey = c.Generator.ApiKey
		}
	}
	if c.Embedder.Provider == "openai" && c.Embedder.Model == genai.DefaultEmbeddingModel {
		c.Embedder.Model = defaultOpenAIEmbedModel
		if c.Embedder.Dimensions == vector.DefaultEmbeddingDimensions {
			c.Embedder.Dimensions = defaultOpenAIEmbedDims
		}
	}
}

// Validate checks the values the struct tags cannot express.
func (c *Config) Validate() error {
	switch c.Corpus.Source {
	case "json":
		if c.Corpus.MetaPath == "" || c.Corpus.EmbeddingsPath == "" {
			return fmt.Errorf("corpus: meta_path and embeddings_path are required for the json source")
		}
	case "sqlite":
		if c.Corpus.SQLitePath == "" {
			return fmt.Errorf("corpus: sqlite_path is required for the sqlite source")
		}
	default:
		return fmt.Errorf("corpus: unknown source %q", c.Corpus.Source)
	}

	switch c.Embedder.Provider {
	case "google", "openai", "mock":
	default:
		return fmt.Errorf("embedder: unknown provider %q", c.Embedder.Provider)
	}

	if c.Generator.AspectRatio != genai.NormalizeAspectRatio(c.Generator.AspectRatio) {
		return fmt.Errorf("generator: unsupported aspect ratio %q", c.Generator.AspectRatio)
	}
	if c.Queue.InterTaskDelayMS < 0 {
		return fmt.Errorf("queue: inter_task_delay_ms must not be negative")
	}
	return nil
}

// SaveToFile saves the configuration to the specified file
func (c *Config) SaveToFile(path string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Create directory if needed
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Save using configurator's SaveToFile function
	if err := configurator.SaveToFile(c, path, configurator.FormatJSON); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	// Update internal state
	c.configPath = path
	c.lastModifiedAt = time.Now()

	return nil
}

// Save saves the configuration to the last used file path
func (c *Config) Save() error {
	if c.configPath == "" {
		c.configPath = DefaultConfigFilename
	}
	return c.SaveToFile(c.configPath)
}

// GetConfigPath returns the path of the currently loaded configuration file
func (c *Config) GetConfigPath() string {
	return c.configPath
}

// SearchOptions returns the search engine settings.
func (c *Config) SearchOptions() search.Options {
	return search.Options{
		PoolCapFiltered:   c.Search.PoolCapFiltered,
		PoolCapUnfiltered: c.Search.PoolCapUnfiltered,
		Seed:              c.Search.Seed,
	}
}

// InterTaskDelay returns the pause between generation calls.
func (c *Config) InterTaskDelay() time.Duration {
	return time.Duration(c.Queue.InterTaskDelayMS) * time.Millisecond
}

// GenAIConfig returns the Gemini client settings.
func (c *Config) GenAIConfig() genai.Config {
	characters := make([]genai.Character, 0, len(c.Generator.Characters))
	for _, ch := range c.Generator.Characters {
		characters = append(characters, genai.Character{Keyword: ch.Keyword, Name: ch.Name, URL: ch.URL})
	}

	return genai.Config{
		APIKey:            c.Generator.ApiKey,
		BaseURL:           c.Generator.BaseURL,
		EmbeddingModel:    c.Embedder.Model,
		PlanModel:         c.Generator.PlanModel,
		ImageModel:        c.Generator.ImageModel,
		Timeout:           time.Duration(c.Generator.TimeoutSeconds) * time.Second,
		RequestsPerMinute: c.Generator.RequestsPerMinute,
		Restrictions:      append([]string(nil), c.Generator.Restrictions...),
		Characters:        characters,
	}
}

// GetLoggerFromConfig creates a gomcp logx.Logger based on the configuration
func GetLoggerFromConfig(cfg *Config) logx.Logger {
	return logx.NewLogger(cfg.Logging.Level)
}
