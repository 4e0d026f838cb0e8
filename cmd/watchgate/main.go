// Command watchgate runs the name screening service and its maintenance
// subcommands.
//
// Usage:
//
//	watchgate serve     -config config.yaml
//	watchgate ingest    -config config.yaml -file entities.jsonl
//	watchgate backfill  -config config.yaml
//	watchgate build-ann -config config.yaml
//	watchgate screen    -config config.yaml -name "Jane Smith" [-dob ...] [-country ...] [-id ...]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/watchgate/watchgate/internal/ann"
	"github.com/watchgate/watchgate/internal/app"
	"github.com/watchgate/watchgate/internal/config"
	"github.com/watchgate/watchgate/internal/kb/ingest"
	"github.com/watchgate/watchgate/internal/observe"
	"github.com/watchgate/watchgate/internal/resilience"
	"github.com/watchgate/watchgate/internal/screen"
	"github.com/watchgate/watchgate/pkg/provider/embeddings"
	ollamaembed "github.com/watchgate/watchgate/pkg/provider/embeddings/ollama"
	oaembed "github.com/watchgate/watchgate/pkg/provider/embeddings/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage()
		return 2
	}
	cmd := os.Args[1]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	filePath := fs.String("file", "", "path to a JSON Lines entity snapshot (ingest)")
	name := fs.String("name", "", "name to screen (screen)")
	dob := fs.String("dob", "", "date of birth context (screen)")
	countryCtx := fs.String("country", "", "country context (screen)")
	idCtx := fs.String("id", "", "identifier context (screen)")

	switch cmd {
	case "serve", "ingest", "backfill", "build-ann", "screen":
	default:
		usage()
		return 2
	}
	if err := fs.Parse(os.Args[2:]); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "watchgate: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "watchgate: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		logger.Error("failed to build embeddings provider", "err", err)
		return 1
	}

	switch cmd {
	case "serve":
		return serve(ctx, cfg, logger, embedder)
	case "ingest":
		return runIngest(ctx, cfg, logger, embedder, *filePath)
	case "backfill":
		return runBackfill(ctx, cfg, logger, embedder)
	case "build-ann":
		return runBuildANN(ctx, cfg, logger, embedder)
	case "screen":
		return runScreen(ctx, cfg, logger, embedder, screen.Request{
			Name: *name,
			Context: screen.Context{
				DOB:     *dob,
				Country: *countryCtx,
				ID:      *idCtx,
			},
		})
	}
	return 2
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: watchgate <serve|ingest|backfill|build-ann|screen> [flags]")
}

// registerBuiltinProviders wires the embedding provider factories that ship
// with watchgate into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if entry.Dimensions > 0 {
			opts = append(opts, oaembed.WithDimensions(entry.Dimensions))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if entry.Dimensions > 0 {
			opts = append(opts, ollamaembed.WithDimensions(entry.Dimensions))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})
}

// buildEmbedder instantiates the configured embeddings provider, or nil when
// embeddings are disabled.
func buildEmbedder(cfg *config.Config) (embeddings.Provider, error) {
	if cfg.Embeddings.Name == "" {
		return nil, nil
	}
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	p, err := reg.CreateEmbeddings(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("create embeddings provider %q: %w", cfg.Embeddings.Name, err)
	}
	slog.Info("embeddings provider created", "name", cfg.Embeddings.Name, "model", p.ModelID())
	return resilience.WrapEmbeddings(p, resilience.CircuitBreakerConfig{}), nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, embedder embeddings.Provider) int {
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		logger.Error("failed to init metrics provider", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(sctx); err != nil {
			logger.Warn("metrics provider shutdown error", "err", err)
		}
	}()

	application, err := app.New(ctx, cfg, logger, embedder)
	if err != nil {
		logger.Error("failed to initialise application", "err", err)
		return 1
	}

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run error", "err", err)
		return 1
	}

	logger.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
		return 1
	}
	logger.Info("goodbye")
	return 0
}

func runIngest(ctx context.Context, cfg *config.Config, logger *slog.Logger, embedder embeddings.Provider, path string) int {
	if path == "" {
		fmt.Fprintln(os.Stderr, "watchgate ingest: -file is required")
		return 2
	}
	application, err := app.New(ctx, cfg, logger, embedder)
	if err != nil {
		logger.Error("failed to initialise application", "err", err)
		return 1
	}
	defer shutdownApp(application, logger)

	report, err := ingest.LoadFile(ctx, application.Store(), path, logger, observe.DefaultMetrics())
	if err != nil {
		logger.Error("ingest failed", "err", err)
		return 1
	}
	logger.Info("ingest complete", "loaded", report.Loaded, "dropped", report.Dropped)
	return 0
}

func runBackfill(ctx context.Context, cfg *config.Config, logger *slog.Logger, embedder embeddings.Provider) int {
	if embedder == nil {
		fmt.Fprintln(os.Stderr, "watchgate backfill: an embeddings provider must be configured")
		return 2
	}
	application, err := app.New(ctx, cfg, logger, embedder)
	if err != nil {
		logger.Error("failed to initialise application", "err", err)
		return 1
	}
	defer shutdownApp(application, logger)

	b := &ingest.Backfiller{
		Store:    application.Store(),
		Provider: embedder,
		Logger:   logger,
	}
	n, err := b.Run(ctx)
	if err != nil {
		logger.Error("backfill failed", "err", err)
		return 1
	}
	logger.Info("backfill complete", "vectors", n)
	return 0
}

func runBuildANN(ctx context.Context, cfg *config.Config, logger *slog.Logger, embedder embeddings.Provider) int {
	if embedder == nil {
		fmt.Fprintln(os.Stderr, "watchgate build-ann: an embeddings provider must be configured")
		return 2
	}
	if cfg.ANN.IndexPath == "" {
		fmt.Fprintln(os.Stderr, "watchgate build-ann: ann.index_path and ann.ids_path must be configured")
		return 2
	}
	application, err := app.New(ctx, cfg, logger, embedder)
	if err != nil {
		logger.Error("failed to initialise application", "err", err)
		return 1
	}
	defer shutdownApp(application, logger)

	model := embedder.ModelID()
	ids, vecs, err := application.Store().AllVectors(ctx, model)
	if err != nil {
		logger.Error("fetch vectors failed", "err", err)
		return 1
	}
	if len(ids) == 0 {
		logger.Warn("no vectors to index, run backfill first", "model", model)
		return 1
	}

	idx, err := ann.Build(model, ids, vecs)
	if err != nil {
		logger.Error("build index failed", "err", err)
		return 1
	}
	if err := ann.Save(idx, cfg.ANN.IndexPath, cfg.ANN.IDsPath); err != nil {
		logger.Error("save index failed", "err", err)
		return 1
	}
	logger.Info("index built", "model", model, "vectors", idx.Len(), "index_path", cfg.ANN.IndexPath)
	return 0
}

func runScreen(ctx context.Context, cfg *config.Config, logger *slog.Logger, embedder embeddings.Provider, req screen.Request) int {
	if req.Name == "" {
		fmt.Fprintln(os.Stderr, "watchgate screen: -name is required")
		return 2
	}
	application, err := app.New(ctx, cfg, logger, embedder)
	if err != nil {
		logger.Error("failed to initialise application", "err", err)
		return 1
	}
	defer shutdownApp(application, logger)

	result, err := application.Screener().Screen(ctx, req)
	if err != nil {
		logger.Error("screening failed", "err", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error("encode result", "err", err)
		return 1
	}
	return 0
}

func shutdownApp(a *app.App, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		logger.Warn("shutdown error", "err", err)
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
