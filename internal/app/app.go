package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"billscan/internal/config"
	"billscan/internal/infrastructure/api"
	"billscan/internal/infrastructure/congress"
	"billscan/internal/infrastructure/enrich"
	"billscan/internal/infrastructure/storage"
	"billscan/internal/logging"
	"billscan/internal/metrics"
	"billscan/internal/retry"
	"billscan/internal/usecase"
)

// Application wires configs to the ingestion worker and the read API.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	pipeline *usecase.Pipeline
	server   *http.Server
}

// New constructs every adapter and injects it; no ambient global state.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	repo := storage.NewPostgresRepository(db, retry.Config{
		MaxAttempts: cfg.Pipeline.Retry.MaxAttempts,
		BaseDelay:   cfg.Pipeline.Retry.BaseDelay.Std(),
	})
	source := congress.NewClient(cfg.Source, nil, baseLogger.With("component", "source"))
	enricher := enrich.NewClient(cfg.Enrichment)

	pipeline := usecase.NewPipeline(usecase.Config{
		Congress:      cfg.Source.Congress,
		ListLimit:     cfg.Source.ListLimit,
		Lookback:      cfg.Source.Lookback.Std(),
		Interval:      cfg.Pipeline.Interval.Std(),
		ErrorInterval: cfg.Pipeline.ErrorInterval.Std(),
		ItemPause:     cfg.Pipeline.ItemPause.Std(),
	}, usecase.PipelineDeps{
		Source:     source,
		Enricher:   enricher,
		Repository: repo,
		Metrics:    metrics.New(nil),
		Logger:     baseLogger.With("component", "pipeline"),
	})

	handler := api.New(repo, baseLogger.With("component", "api"))
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		db:       db,
		pipeline: pipeline,
		server:   server,
	}, nil
}

// Run starts the single ingestion worker and the read API, then blocks
// until cancellation or a server failure.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pingCtx, cancelPing := context.WithTimeout(ctx, 10*time.Second)
	defer cancelPing()
	if err := a.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("read API listening", "addr", a.cfg.Server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = a.pipeline.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		a.logger.Error("read API failed", "error", runErr)
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown", "error", err)
	}

	<-workerDone
	if err := a.db.Close(); err != nil {
		a.logger.Error("close database", "error", err)
	}
	return runErr
}
