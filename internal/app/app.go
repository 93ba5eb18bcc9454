package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/qklafk/deribit-price-tracker/internal/config"
	"github.com/qklafk/deribit-price-tracker/internal/exchange"
	"github.com/qklafk/deribit-price-tracker/internal/ingest"
	"github.com/qklafk/deribit-price-tracker/internal/query"
	"github.com/qklafk/deribit-price-tracker/internal/scheduler"
	"github.com/qklafk/deribit-price-tracker/internal/storage"
	"github.com/qklafk/deribit-price-tracker/internal/web"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	return store, store.Close, nil
}

func (a *App) newExchangeClient() *exchange.Client {
	return exchange.New(exchange.Options{
		BaseURL: a.Config.Deribit.BaseURL,
		Timeout: a.Config.Deribit.RequestTimeout,
	}, a.Logger)
}

func (a *App) newWorker(client *exchange.Client, store *storage.Store) *ingest.Worker {
	return ingest.NewWorker(client, store, a.Config.TrackedInstruments(), a.Logger)
}

// Run executes the long-running service: scheduled ingestion plus the read
// API, stopped together on SIGINT/SIGTERM with a graceful drain.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	client := a.newExchangeClient()
	defer client.Close()

	worker := a.newWorker(client, store)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	queries := query.NewService(store, a.Logger)
	handler := web.NewHandler(queries, store, a.Logger)
	server := web.NewServer(a.Config.Server.ListenAddr, web.NewRouter(handler))

	serverErr := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", server.Addr).Msg("read api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	a.Logger.Info().
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting ingestion service")

	schedErr := make(chan error, 1)
	go func() {
		schedErr <- sched.Run(ctx, func(tickCtx context.Context) {
			report := worker.RunTick(tickCtx)
			a.Logger.Info().Int("stored", report.Stored).Int("failed", report.Failed).Msg("tick complete")
		})
	}()

	var runErr error
	select {
	case err := <-serverErr:
		a.Logger.Error().Err(err).Msg("read api failed")
		cancel()
		<-schedErr
		runErr = err
	case err := <-schedErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("read api shutdown failed")
	}

	if runErr != nil {
		a.Logger.Error().Err(runErr).Msg("service terminated with error")
		return runErr
	}

	a.Logger.Info().Msg("service stopped")
	return nil
}

// FetchOnce runs a single ingestion tick and exits.
func (a *App) FetchOnce(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	client := a.newExchangeClient()
	defer client.Close()

	report := a.newWorker(client, store).RunTick(ctx)
	a.Logger.Info().Int("stored", report.Stored).Int("failed", report.Failed).Msg("tick complete")

	if report.Stored == 0 && report.Failed > 0 {
		return errors.New("all instrument pipelines failed; see log")
	}
	return nil
}

// ExportOptions hold parameters for exporting historical prices.
type ExportOptions struct {
	Ticker    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
