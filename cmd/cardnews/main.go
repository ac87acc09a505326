package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cardnews "github.com/chiclooc-rgb/card-news-generator"
	"github.com/chiclooc-rgb/card-news-generator/internal/config"
	"github.com/chiclooc-rgb/card-news-generator/internal/errortypes"
	"github.com/chiclooc-rgb/card-news-generator/internal/genai"
	"github.com/chiclooc-rgb/card-news-generator/internal/logger"
	"github.com/chiclooc-rgb/card-news-generator/internal/telemetry"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

var (
	appLogger *logger.Logger
	cfg       *config.Config
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if appLogger != nil {
			appLogger.Error("%v", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "cardnews",
		Short:         "Generate card-news decks from documents",
		Version:       telemetry.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd, opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultConfigFilename, "path to the configuration file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "environment file loaded before the configuration")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(
		newServeCommand(),
		newGenerateCommand(),
		newSearchCommand(),
		newImportCommand(),
	)
	return root
}

// setup loads the environment file and configuration and configures logging.
func setup(cmd *cobra.Command, opts *rootOptions) error {
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errortypes.ConfigError(err, "failed to load environment file").WithField("path", opts.envFile)
	}

	// stdout carries the MCP protocol while serving
	if cmd.Name() == "serve" {
		os.Setenv("MCP_MODE", "1")
	}

	appLogger = setupLogging()

	var err error
	cfg, err = config.LoadConfigWithPath(opts.configPath)
	if err != nil {
		return errortypes.ConfigError(err, "failed to load configuration").WithField("path", opts.configPath)
	}

	level := cfg.Logging.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	if level != "" {
		appLogger.SetLevel(logger.ParseLevel(level))
	}

	format := cfg.Logging.Format
	if opts.logFormat != "" {
		format = opts.logFormat
	}
	appLogger.SetFormat(logger.ParseFormat(format))

	slog.SetDefault(appLogger.Slog())
	appLogger.WithContext("config").Debug("Configuration loaded from %s", cfg.GetConfigPath())
	return nil
}

// setupLogging configures and returns the application logger
func setupLogging() *logger.Logger {
	config := logger.DefaultConfig()

	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		config.Level = logger.ParseLevel(levelStr)
	}

	appLogger := logger.New(config)
	logger.SetDefaultLogger(appLogger)
	return appLogger
}

func newService(ctx context.Context, component string) (*cardnews.Service, error) {
	return cardnews.NewService(ctx, cardnews.ServiceOptions{
		Config: cfg,
		Logger: appLogger.WithContext(component).Slog(),
	})
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the card-news tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(cmd.Context(), "server")
			if err != nil {
				return err
			}

			setupSignalHandler(svc, appLogger)

			appLogger.WithContext("server").Info("Starting MCP server...")
			if err := svc.Start(); err != nil {
				return errortypes.APIError(err, "MCP server failed")
			}
			return svc.Stop()
		},
	}
}

// setupSignalHandler stops the service on SIGINT or SIGTERM.
func setupSignalHandler(svc *cardnews.Service, log *logger.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Info("Received shutdown signal, terminating gracefully...")

		if err := svc.Stop(); err != nil {
			errortypes.LogError(slog.Default(), errortypes.InternalError(err, "Error stopping service during shutdown"))
		}

		log.Info("Shutdown complete")
		os.Exit(0)
	}()
}

type generateOptions struct {
	detail      string
	aspectRatio string
	concept     int
	outDir      string
	timeout     time.Duration
}

func newGenerateCommand() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate <document>",
		Short: "Plan a document and render every page into image files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.detail, "detail", string(genai.DetailDetailed), "plan detail level (detailed, simple)")
	cmd.Flags().StringVar(&opts.aspectRatio, "aspect-ratio", "", "page aspect ratio (4:5, 1:1, 9:16)")
	cmd.Flags().IntVar(&opts.concept, "concept", 0, "index of the design concept to use")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "output directory")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Minute, "maximum time to wait for the deck")
	return cmd
}

func runGenerate(ctx context.Context, path string, opts *generateOptions) error {
	log := appLogger.WithContext("generate")

	svc, err := newService(ctx, "generate")
	if err != nil {
		return err
	}
	defer svc.Stop()

	detail := genai.DetailDetailed
	if opts.detail == string(genai.DetailSimple) {
		detail = genai.DetailSimple
	}

	result, err := svc.GeneratePlanFromFile(ctx, path, detail)
	if err != nil {
		return err
	}
	if result.Fallback() {
		log.Warn("Plan model unavailable, using %s plan: %s", result.Source, result.Cause)
	}
	log.Info("Plan ready with %d pages", len(result.Plan.Pages()))

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return errortypes.PermissionError(err, "failed to create output directory").WithField("path", opts.outDir)
	}
	planJSON, err := json.MarshalIndent(result.Plan, "", "  ")
	if err != nil {
		return errortypes.InternalError(err, "failed to encode plan")
	}
	if err := os.WriteFile(filepath.Join(opts.outDir, "plan.json"), planJSON, 0o644); err != nil {
		return errortypes.PermissionError(err, "failed to write plan")
	}

	run, err := svc.StartRun(result.Plan, cardnews.RunOptions{
		ConceptIndex: opts.concept,
		AspectRatio:  opts.aspectRatio,
	})
	if err != nil {
		return err
	}
	log.WithFields(map[string]interface{}{
		"run_id":       run.ID,
		"concept":      run.Concept.Name,
		"aspect_ratio": run.AspectRatio,
	}).Info("Generation started")

	waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	if err := svc.Wait(waitCtx); err != nil {
		return errortypes.NetworkError(err, "deck generation did not finish")
	}

	files, err := exportRecords(opts.outDir, svc.Results())
	if err != nil {
		return err
	}

	fallbacks := 0
	for _, r := range svc.Results() {
		if r.Fallback {
			fallbacks++
		}
	}
	log.Info("Wrote %d pages to %s (%d placeholders)", len(files), opts.outDir, fallbacks)
	return nil
}

func newSearchCommand() *cobra.Command {
	var (
		category string
		n        int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find reference designs similar to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(cmd.Context(), "search")
			if err != nil {
				return err
			}
			defer svc.Stop()

			results := svc.Search(cmd.Context(), args[0], category, n)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "restrict to COVER, BODY or OUTRO")
	cmd.Flags().IntVarP(&n, "n", "n", 2, "number of references")
	return cmd
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import-corpus",
		Short: "Import the JSON reference corpus into the SQLite corpus database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := cardnews.ImportCorpus(cmd.Context(), cfg, appLogger.WithContext("import").Slog())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d reference items into %s\n", n, cfg.Corpus.SQLitePath)
			return nil
		},
	}
}
