// @title           picshare API
// @version         1.0
// @host            localhost:5000
// @schemes         http https
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"picshare/internal/api"
	"picshare/internal/config"
	"picshare/internal/database"
	"picshare/internal/logging"
	"picshare/internal/service"
	"picshare/internal/storage"
	"picshare/internal/websocket"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log, cfg.Server.IsProduction())
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := pgxpool.New(ctx, cfg.DB.Source)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database")

	if err := database.Migrate(ctx, dbpool); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	media, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init media storage: %w", err)
	}
	logger.Info("media storage ready", zap.String("driver", cfg.Storage.Driver))

	wsHub := websocket.NewHub(logger.Named("feed"))
	go wsHub.Run(ctx)

	store := database.NewStore(dbpool)

	reconciler := service.NewReconciler(store, media, wsHub, cfg.Reconciler.Interval, cfg.Reconciler.Grace, logger.Named("reconciler"))
	go reconciler.Run(ctx)

	server, err := api.NewServer(cfg, store, media, wsHub, logger)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.Int("port", cfg.Server.Port), zap.String("environment", cfg.Server.Environment))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}
