// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/halosync/internal/api"
	"github.com/starford/halosync/internal/halo"
	"github.com/starford/halosync/internal/ledger"
	"github.com/starford/halosync/internal/render"
	"github.com/starford/halosync/internal/sse"
	"github.com/starford/halosync/internal/storage"
	"github.com/starford/halosync/internal/syncer"
	"github.com/starford/halosync/internal/watch"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// pipeline is everything one sync session needs.
type pipeline struct {
	store    *storage.FS
	client   *halo.Client
	syncer   *syncer.Syncer
	ledger   *ledger.DB
	recorder *ledger.Recorder
}

func (p *pipeline) Close() error {
	if p.ledger != nil {
		return p.ledger.Close()
	}
	return nil
}

// batch seeds a fresh taxonomy and syncs paths (every file when paths is nil).
func (p *pipeline) batch(ctx context.Context, paths []string) (*syncer.Report, error) {
	tax, err := p.syncer.SeedTaxonomy(ctx)
	if err != nil {
		return nil, err
	}
	var report *syncer.Report
	if paths == nil {
		report, err = p.syncer.Run(ctx, tax)
	} else {
		report, err = p.syncer.SyncPaths(ctx, tax, paths)
	}
	if p.recorder != nil && report != nil {
		p.recorder.Finish(report)
	}
	return report, err
}

// watchBatch adapts batch to the watcher: it reports the paths that failed
// so they are retried on their next change.
func (p *pipeline) watchBatch(ctx context.Context, paths []string) ([]string, error) {
	report, err := p.batch(ctx, paths)
	if err != nil {
		return nil, err
	}
	var failed []string
	for _, res := range report.Failures() {
		failed = append(failed, res.Path)
	}
	return failed, nil
}

func newPipeline(app *application, logger *slog.Logger, onResult func(syncer.Result)) (*pipeline, error) {
	cfg := app.config
	if app.root == "" {
		return nil, fmt.Errorf("posts root is required")
	}

	store, err := storage.NewFS(app.root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	p := &pipeline{store: store}

	if cfg.StatePath != "" {
		db, err := ledger.Open(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		p.ledger = db
		p.recorder = ledger.NewRecorder(db, logger)
	}

	p.client = halo.NewClient(halo.Config{
		BaseURL:       cfg.HaloSite,
		Token:         cfg.UserToken,
		Delay:         cfg.RequestDelay,
		TaxonomyColor: cfg.TaxonomyColor,
	})
	renderer := render.New(render.Options{HighlightStyle: cfg.HighlightStyle})

	opts := syncer.Options{
		Publish:       cfg.Publish(),
		AllowComment:  cfg.AllowComment,
		Visible:       cfg.Visible,
		TaxonomyColor: cfg.TaxonomyColor,
	}
	if p.recorder != nil {
		opts.OnBegin = p.recorder.Begin
	}
	opts.OnResult = func(res syncer.Result) {
		if p.recorder != nil {
			p.recorder.Result(res)
		}
		if onResult != nil {
			onResult(res)
		}
	}
	p.syncer = syncer.New(p.client, renderer, store, opts, logger)
	return p, nil
}

// Run performs one batch sync of the configured root. Per-document failures
// are logged and do not make Run fail.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg, os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("halo_site", cfg.HaloSite),
		slog.String("root", app.root),
		slog.Bool("publish", cfg.Publish()),
		slog.String("state_path", cfg.StatePath),
		slog.String("log_level", cfg.LogLevel.String()))

	p, err := newPipeline(app, logger, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	if _, err := p.batch(ctx, nil); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

// Watch performs one batch sync, then keeps syncing changed files until a
// shutdown signal arrives. With a listen address it also serves the status
// feed.
func Watch(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg, os.Stdout)

	listen := app.listen
	if listen == "" {
		listen = cfg.Status.Listen
	}

	logger.Info("Configuration loaded",
		slog.String("halo_site", cfg.HaloSite),
		slog.String("root", app.root),
		slog.Bool("publish", cfg.Publish()),
		slog.String("listen", listen),
		slog.String("log_level", cfg.LogLevel.String()))

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	p, err := newPipeline(app, logger, func(res syncer.Result) {
		data := sse.DocumentData{Path: res.Path, Slug: res.Slug}
		if res.Err != nil {
			data.Error = res.Err.Error()
		}
		broker.PublishDocumentEvent(string(res.Status), data)
	})
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var httpServer *http.Server
	if listen != "" {
		httpServer = &http.Server{
			Addr:    listen,
			Handler: newStatusRouter(cfg, p.ledger, broker),
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	// The watcher runs the initial batch itself, on its own goroutine, so
	// syncs never overlap and edits made during the first batch are not lost.
	g.Go(func() error {
		return watch.Watch(gCtx, p.store, app.debounce, true, logger, p.watchBatch)
	})

	if httpServer != nil {
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", listen))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}
		stop()

		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Watcher stopped successfully")
	return nil
}

func newStatusRouter(cfg *Config, db *ledger.DB, broker *sse.Broker) http.Handler {
	// A nil *ledger.DB must stay a nil interface so the run routes report
	// the ledger as disabled.
	var runs api.RunStore
	if db != nil {
		runs = db
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(runs, cfg.Status.AuthEnabled(), cfg.Status.Token, broker))
	return r
}
