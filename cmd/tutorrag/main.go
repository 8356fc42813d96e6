// Tutorrag is the retrieval backend of the math tutoring app.
//
// It serves document ingestion, context retrieval, the reference library
// and node progress over HTTP. Configuration comes from environment
// variables (optionally seeded from a .env file) over an optional YAML file.
//
// Usage:
//
//	# Start with defaults
//	tutorrag
//
//	# Configure via environment
//	SUPABASE_URL=https://x.supabase.co SUPABASE_SERVICE_ROLE_KEY=... GEMINI_API_KEY=... tutorrag
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutorrag/internal/config"
	"github.com/fyrsmithlabs/tutorrag/internal/embeddings"
	"github.com/fyrsmithlabs/tutorrag/internal/events"
	"github.com/fyrsmithlabs/tutorrag/internal/extract"
	httpserver "github.com/fyrsmithlabs/tutorrag/internal/http"
	"github.com/fyrsmithlabs/tutorrag/internal/library"
	"github.com/fyrsmithlabs/tutorrag/internal/logging"
	"github.com/fyrsmithlabs/tutorrag/internal/progress"
	"github.com/fyrsmithlabs/tutorrag/internal/rag"
	"github.com/fyrsmithlabs/tutorrag/internal/supabase"
	"github.com/fyrsmithlabs/tutorrag/internal/telemetry"
	"github.com/fyrsmithlabs/tutorrag/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default ~/.config/tutorrag/config.yaml)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  tutorrag           Start the server\n")
			fmt.Fprintf(os.Stderr, "  tutorrag version   Show version information\n")
			os.Exit(1)
		}
	}

	// Existing environment variables win over the file.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "tutorrag: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("tutorrag\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires every component, serves until ctx is cancelled and then shuts
// down within the configured timeout.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Observability, version))
	if err != nil {
		return err
	}

	logCfg, err := logging.ConfigFor(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	logCfg.OTel = tel.Enabled()
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zl := logger.Underlying()

	if degraded, reasons := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("reasons", reasons))
	}

	logger.Info(ctx, "starting tutorrag",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
	)

	embedder, err := newEmbedder(cfg, zl)
	if err != nil {
		return err
	}
	defer embedder.Close()

	store := vectorstore.NewLazy(func() (vectorstore.Store, error) {
		return vectorstore.NewStore(context.Background(), cfg, zl.Named("vectorstore"))
	})

	publisher, err := newPublisher(cfg, zl)
	if err != nil {
		return err
	}

	svc, err := rag.NewService(rag.Config{
		ChunkSize:        cfg.RAG.ChunkSize,
		ChunkOverlap:     cfg.RAG.ChunkOverlap,
		MatchCount:       cfg.RAG.MatchCount,
		EmbedConcurrency: cfg.RAG.EmbedConcurrency,
	}, embedder, store, zl.Named("rag"), rag.WithPublisher(publisher), rag.WithInstrumentation(tel))
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn(context.Background(), "closing rag service", zap.Error(err))
		}
	}()

	extractor := extract.New()
	if err := extract.CheckAvailable(); err != nil {
		logger.Warn(ctx, "pdf uploads disabled", zap.String("install", extract.InstallInstructions()))
	}

	deps := httpserver.Deps{RAG: svc, Extractor: extractor}

	lib, err := library.New(library.Config{
		Folders: []library.Folder{
			{Category: library.CategoryExercises, Dir: cfg.Library.ExercisesDir},
			{Category: library.CategoryTests, Dir: cfg.Library.TestsDir},
		},
		MaxFiles: cfg.Library.MaxFiles,
		Debounce: cfg.Library.Debounce.Duration(),
	}, svc, extractor, zl.Named("library"))
	if err != nil {
		return err
	}
	if len(lib.Folders()) > 0 {
		deps.Library = lib
		startLibrary(ctx, cfg, lib, logger)
	}

	if sb, err := supabase.New(supabase.Config{
		URL:            cfg.Supabase.URL,
		ServiceRoleKey: cfg.Supabase.ServiceRoleKey.Value(),
		Timeout:        cfg.Supabase.Timeout.Duration(),
	}); err == nil {
		deps.Progress = progress.NewStore(sb, cfg.Progress.Table, zl.Named("progress"))
	} else {
		logger.Warn(ctx, "node progress disabled", zap.Error(err))
	}

	srv, err := httpserver.NewServer(deps, logger, &httpserver.Config{
		Port:           cfg.Server.Port,
		MaxUpload:      cfg.Server.MaxUpload,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, httpserver.WithMeter(tel.Meter("github.com/fyrsmithlabs/tutorrag/internal/http")))
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "http shutdown", zap.Error(err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "telemetry shutdown", zap.Error(err))
	}
	logger.Info(shutdownCtx, "shutdown complete")
	return nil
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) (*embeddings.Embedder, error) {
	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.EmbeddingsAPIKey().Value(),
		Dimension: cfg.Embeddings.Dimension,
		Timeout:   cfg.Embeddings.Timeout.Duration(),
		CacheDir:  cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	logger.Info("embedding provider ready",
		zap.String("model", provider.Model()),
		zap.Int("dimension", provider.Dimension()),
	)
	return embeddings.NewEmbedder(provider,
		embeddings.WithLogger(logger.Named("embeddings")),
		embeddings.WithRateLimit(cfg.Embeddings.RateLimit, cfg.Embeddings.RateBurst),
	)
}

func newPublisher(cfg *config.Config, logger *zap.Logger) (events.Publisher, error) {
	if cfg.NATS.URL == "" {
		return events.Noop{}, nil
	}
	p, err := events.NewNATSPublisher(events.NATSConfig{
		URL:          cfg.NATS.URL,
		Subject:      cfg.NATS.Subject,
		FlushTimeout: cfg.NATS.FlushTimeout.Duration(),
	}, logger.Named("events"))
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	return p, nil
}

// startLibrary runs the optional initial sync in the background and starts
// the watcher. Neither blocks serving.
func startLibrary(ctx context.Context, cfg *config.Config, lib *library.Library, logger *logging.Logger) {
	if cfg.Library.SyncOnStart {
		go func() {
			start := time.Now()
			results, err := lib.Sync(ctx)
			if err != nil {
				logger.Warn(ctx, "initial library sync failed", zap.Error(err))
				return
			}
			logger.Info(ctx, "initial library sync done",
				zap.Int("files", len(results)),
				zap.Duration("took", time.Since(start)),
			)
		}()
	}
	if cfg.Library.Watch {
		if _, err := lib.Watch(ctx); err != nil {
			logger.Warn(ctx, "library watch disabled", zap.Error(err))
		}
	}
}
