package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/auth"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/config"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/database"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/handler"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/log"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/notify"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/repository"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/service"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
}

func init() {
	// RunE is assigned here rather than in the literal to avoid an
	// initialization cycle (serve -> openStore -> serveCmd).
	serveCmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	}
	serveCmd.Flags().Bool("migrate", false, "apply migrations before serving (postgres only)")
}

func serve(ctx context.Context, cfg config.Config) error {
	// ── 1. Open the store ────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// ── 2. Tracing and notifications ─────────────────────────────────────
	tp, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.ErrorErr(log.CatHTTP, "tracing shutdown", err)
		}
	}()
	if tp.Enabled() {
		log.Info(log.CatHTTP, "tracing enabled", "exporter", cfg.Tracing.Exporter, "sample_rate", cfg.Tracing.SampleRate)
	}

	dispatcher := notify.NewDispatcher(cfg.Notify.Buffer)
	notifications := dispatcher.Subscribe(context.Background())

	// ── 3. Wire up layers ────────────────────────────────────────────────
	tokens, err := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	eventSvc := service.NewEventService(store, dispatcher)
	regSvc := service.NewRegistrationService(store, dispatcher)
	router := handler.NewRouter(handler.RouterConfig{
		Handler:     handler.NewEventHandler(eventSvc, regSvc),
		Verifier:    tokens,
		Idempotency: handler.NewIdempotency(cfg.Idempotency.TTL),
		Tracer:      tp.Tracer(),
	})

	// ── 4. Start server with graceful shutdown ───────────────────────────
	errorLog := log.Logger().Writer()
	defer errorLog.Close()
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ErrorLog:     stdlog.New(errorLog, "", 0),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		notify.LogSink(notifications)
		return nil
	})
	g.Go(func() error {
		log.Info(log.CatHTTP, "server listening", "addr", cfg.HTTP.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(log.CatHTTP, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// In-flight requests have finished; flush queued notifications.
		dispatcher.Close()
		if err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info(log.CatHTTP, "server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (service.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		if migrate, _ := serveCmd.Flags().GetBool("migrate"); migrate {
			if err := database.Migrate(cfg.Database.MigrateURL(), database.Up); err != nil {
				return nil, nil, err
			}
		}
		pool, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		return repository.NewPostgresStore(pool, cfg.Store.LockTimeout), pool.Close, nil
	default:
		log.Warn(log.CatDB, "using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(cfg.Store.LockTimeout), func() {}, nil
	}
}
