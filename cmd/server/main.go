package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"gitea.jw6.us/james/bookingcal/internal/booking"
	"gitea.jw6.us/james/bookingcal/internal/config"
	httpserver "gitea.jw6.us/james/bookingcal/internal/http"
	"gitea.jw6.us/james/bookingcal/internal/ical"
	"gitea.jw6.us/james/bookingcal/internal/logging"
	"gitea.jw6.us/james/bookingcal/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting bookingcal", zap.String("listen_addr", cfg.ListenAddr), zap.String("site_url", cfg.Site.URL))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := store.ApplyMigrations(ctx, pool, logger); err != nil {
		return err
	}

	stor := store.New(pool)
	spool := ical.NewSpool(afero.NewOsFs(), cfg.TempDir)
	site := ical.Site{Identifier: cfg.Site.Identifier, RootURL: cfg.Site.URL}
	svc := booking.NewService(stor, site, cfg.SenderEmail, spool, logger.Named("booking"))

	router := httpserver.NewRouter(cfg, stor, svc, logger.Named("http"))
	defer router.Close()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}
