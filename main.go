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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clinic-app-server/internal/config"
	"clinic-app-server/internal/routes"
	"clinic-app-server/internal/storage"
	"clinic-app-server/internal/storage/media"
	"clinic-app-server/internal/storage/s3store"
	"clinic-app-server/internal/store"
	"clinic-app-server/internal/upload"
	"clinic-app-server/internal/utils"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-app-server",
		Short: "Clinic patient, admin and lab report API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(ensureFoldersCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every command needs after startup.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func bootstrap() (*app, error) {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := utils.NewLogger(cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func newStorageClient(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Client, error) {
	switch cfg.Driver {
	case config.StorageMedia:
		return media.New(cfg.Media, logger), nil
	case config.StorageS3:
		return s3store.NewFromConfig(ctx, cfg.S3, imageSize, logger)
	case config.StorageMemory:
		return storage.NewMemoryClient(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// ensureFolders creates the upload folders. Failures are logged and never fatal.
func ensureFolders(ctx context.Context, client storage.Client, pipeline *upload.Pipeline, logger *zap.Logger) {
	for _, folder := range pipeline.Folders() {
		if err := client.EnsureFolder(ctx, folder); err != nil {
			logger.Warn("could not ensure storage folder", zap.String("folder", folder), zap.Error(err))
			continue
		}
		logger.Info("storage folder ready", zap.String("folder", folder))
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.logger.Sync()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	stores, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stores.Close(closeCtx); err != nil {
			logger.Warn("closing database failed", zap.Error(err))
		}
	}()
	if err := stores.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	client, err := newStorageClient(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	pipeline := upload.New(client, stores, cfg.Storage.RootFolder, logger)
	ensureFolders(ctx, client, pipeline, logger)

	var denylist utils.Denylist
	if cfg.RedisURL != "" {
		redisDenylist, err := utils.NewRedisDenylist(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisDenylist.Close()
		denylist = redisDenylist
		logger.Info("token revocation enabled")
	}

	if cfg.PatientJWTSecret == "" || cfg.AdminJWTSecret == "" {
		logger.Warn("a JWT secret is not configured; affected logins and guarded routes will answer 500")
	}

	router := routes.NewRouter(routes.Dependencies{
		Config:   cfg,
		Stores:   stores,
		Storage:  client,
		Pipeline: pipeline,
		Tokens:   utils.NewTokenService(cfg.PatientJWTSecret, cfg.AdminJWTSecret, cfg.TokenTTL),
		Denylist: denylist,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running", zap.String("addr", srv.Addr), zap.String("database", cfg.Database.Driver), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables, collections and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			ctx := context.Background()
			stores, err := store.Open(ctx, a.cfg.Database)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer stores.Close(ctx)

			if err := stores.Migrate(ctx); err != nil {
				return fmt.Errorf("migrating database: %w", err)
			}
			a.logger.Info("migrations applied", zap.String("database", a.cfg.Database.Driver))
			return nil
		},
	}
}

func ensureFoldersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-folders",
		Short: "Create the upload folders in object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			ctx := context.Background()
			client, err := newStorageClient(ctx, a.cfg.Storage, a.logger)
			if err != nil {
				return err
			}
			pipeline := upload.New(client, nil, a.cfg.Storage.RootFolder, a.logger)
			ensureFolders(ctx, client, pipeline, a.logger)
			return nil
		},
	}
}
