// Package app wires all watchgate subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithVectorSearcher, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/watchgate/watchgate/internal/ann"
	"github.com/watchgate/watchgate/internal/config"
	"github.com/watchgate/watchgate/internal/country"
	"github.com/watchgate/watchgate/internal/health"
	"github.com/watchgate/watchgate/internal/kb"
	"github.com/watchgate/watchgate/internal/observe"
	"github.com/watchgate/watchgate/internal/screen"
	"github.com/watchgate/watchgate/pkg/provider/embeddings"
)

// shutdownTimeout bounds how long an in-flight request may delay shutdown.
const shutdownTimeout = 15 * time.Second

// App owns all subsystem lifetimes for the screening service.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	embedder embeddings.Provider

	pool     *pgxpool.Pool
	store    kb.Store
	vector   kb.VectorSearcher
	screener *screen.Screener
	server   *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a knowledge-base store instead of opening one from config.
func WithStore(s kb.Store) Option {
	return func(a *App) { a.store = s }
}

// WithVectorSearcher injects a vector retrieval leg instead of deriving one
// from config.
func WithVectorSearcher(v kb.VectorSearcher) Option {
	return func(a *App) { a.vector = v }
}

// New creates an App by wiring all subsystems together. The embedder comes
// from main (built via the config registry); nil means embeddings are
// disabled and screening runs lexical-only.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, embedder embeddings.Provider, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   logger,
		embedder: embedder,
	}
	for _, o := range opts {
		o(a)
	}

	// The metrics provider is installed by main before New runs; without it
	// the instruments fall back to the no-op global meter.
	metrics := observe.DefaultMetrics()

	resolver, err := country.NewResolver(cfg.CountryAliases.Path, cfg.CountryAliases.OverridePath)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("app: load country aliases: %w", err)
	}

	if a.store == nil {
		if err := a.openStore(ctx); err != nil {
			a.close(ctx)
			return nil, err
		}
	}

	if a.vector == nil && a.embedder != nil {
		if err := a.openVectorLeg(); err != nil {
			a.close(ctx)
			return nil, err
		}
	}

	a.screener = &screen.Screener{
		Retriever: &screen.Retriever{
			Store:   a.store,
			Vector:  a.vector,
			Logger:  logger,
			Metrics: metrics,
		},
		Scorer: &screen.Scorer{
			Resolver:   resolver,
			Weights:    cfg.Scoring.Weights,
			Thresholds: cfg.Scoring.Thresholds,
		},
		Embedder: embedder,
		Metrics:  metrics,
		Logger:   logger,
		DefaultK: cfg.Scoring.TopK,
	}

	mux := http.NewServeMux()
	mux.Handle("POST /screen", observe.Middleware(metrics)(http.HandlerFunc(a.handleScreen)))
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(a.checkers()...).Register(mux)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a, nil
}

// openStore connects the configured knowledge base. An empty DSN selects the
// in-memory store.
func (a *App) openStore(ctx context.Context) error {
	if a.cfg.KB.PostgresDSN == "" {
		a.logger.Warn("no postgres_dsn configured, using the in-memory store; data will not survive a restart")
		a.store = kb.NewMemStore()
		return nil
	}

	pool, err := kb.NewPool(ctx, a.cfg.KB.PostgresDSN)
	if err != nil {
		return fmt.Errorf("app: connect knowledge base: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, func(context.Context) error {
		pool.Close()
		return nil
	})

	store := kb.NewPostgresStore(pool)
	if dims := a.embeddingDimensions(); dims > 0 {
		if err := store.Migrate(ctx, dims); err != nil {
			return fmt.Errorf("app: migrate schema: %w", err)
		}
	} else {
		a.logger.Warn("embedding dimensions unknown, skipping schema migration; apply the kb schema manually")
	}
	a.store = store
	return nil
}

// embeddingDimensions resolves the vector column width: the live provider
// wins, the configured value covers embeddings-off deployments.
func (a *App) embeddingDimensions() int {
	if a.embedder != nil {
		return a.embedder.Dimensions()
	}
	return a.cfg.Embeddings.Dimensions
}

// openVectorLeg picks the vector retrieval backend: a file-backed index when
// configured, otherwise the database store when it can search vectors.
func (a *App) openVectorLeg() error {
	if a.cfg.ANN.IndexPath != "" {
		idx, err := ann.Load(a.cfg.ANN.IndexPath, a.cfg.ANN.IDsPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			a.logger.Warn("vector index artifact not found, vector retrieval starts empty",
				"index_path", a.cfg.ANN.IndexPath)
		case err != nil:
			return fmt.Errorf("app: load vector index: %w", err)
		}
		holder := &ann.Holder{}
		if idx != nil {
			holder.Swap(idx)
		}
		a.vector = &screen.IndexSearcher{Holder: holder, Store: a.store}
		return nil
	}
	if vs, ok := a.store.(kb.VectorSearcher); ok {
		a.vector = vs
	}
	return nil
}

// checkers returns the readiness checks for this configuration.
func (a *App) checkers() []health.Checker {
	checks := []health.Checker{{
		Name: "knowledge_base",
		Check: func(ctx context.Context) error {
			if a.pool != nil {
				return a.pool.Ping(ctx)
			}
			return nil
		},
	}}
	if a.embedder != nil {
		checks = append(checks, health.Checker{
			Name: "embeddings",
			Check: func(ctx context.Context) error {
				_, err := a.embedder.Embed(ctx, "readiness probe")
				return err
			},
		})
	}
	return checks
}

// Handler exposes the HTTP surface for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Screener exposes the wired pipeline for the one-shot CLI path.
func (a *App) Screener() *screen.Screener {
	return a.screener
}

// Store exposes the wired knowledge base for the ingest and backfill paths.
func (a *App) Store() kb.Store {
	return a.store
}

// Run serves HTTP until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Shutdown stops the HTTP server and closes all subsystems in reverse order
// of creation. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		var errs []error
		if a.server != nil {
			if serr := a.server.Shutdown(sctx); serr != nil {
				errs = append(errs, fmt.Errorf("app: http shutdown: %w", serr))
			}
		}
		errs = append(errs, a.close(sctx)...)
		err = errors.Join(errs...)
	})
	return err
}

func (a *App) close(ctx context.Context) []error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errs
}
