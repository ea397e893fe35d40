package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"annotate/api/internal/annotation"
	"annotate/api/internal/app"
	"annotate/api/internal/config"
	"annotate/api/internal/export"
	"annotate/api/internal/logging"
	"annotate/api/internal/search"
	"annotate/api/internal/session"
	"annotate/api/internal/store"
)

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on start")
	rootCmd.AddCommand(serveCmd)
}

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.Database.URL) == "" {
		return nil, errors.New("database.url is required")
	}
	return store.Open(ctx, cfg.Database.URL, store.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}

// openSearch attaches Meilisearch when it is configured. The returned close
// function is always safe to call.
func openSearch(cfg config.Config, primary *store.PostgresStore) (*search.Service, func()) {
	if strings.TrimSpace(cfg.Meili.URL) == "" {
		return search.NewService(nil, primary), func() {}
	}
	index := search.NewMeiliIndex(cfg.Meili.URL, cfg.Meili.MasterKey, search.BreakerConfig{
		ConsecutiveFailures: cfg.Meili.BreakerFailures,
		OpenTimeout:         cfg.Meili.BreakerTimeout,
	})
	return search.NewService(index, primary), index.Close
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := logging.Component("main")

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if !skipMigrations {
		if err := store.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
	}

	dataStore := store.NewPostgresStore(db)
	searchService, closeSearch := openSearch(cfg, dataStore)
	defer closeSearch()

	engine := annotation.NewEngine(searchService,
		annotation.WithMinBatchSize(cfg.Search.MinBatchSize),
		annotation.WithMaxLimit(cfg.Search.MaxLimit),
		annotation.WithLogger(logging.Component("engine")),
	)

	checks := map[string]app.Pinger{"database": dataStore}
	if searchService.Configured() {
		checks["meilisearch"] = searchService
	}

	deps := app.Deps{
		Engine:      engine,
		Groups:      dataStore,
		Clients:     dataStore,
		Revocations: dataStore,
		Backend:     searchService.Backend,
		Checks:      checks,
	}

	if strings.TrimSpace(cfg.Redis.URL) != "" {
		logger.Info().Msg("using redis for token revocations")
		redisStore, err := session.NewRedisStore(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		deps.Revocations = redisStore
		checks["redis"] = redisStore
	} else {
		logger.Info().Msg("using postgres for token revocations")
	}

	if strings.TrimSpace(cfg.MinIO.Endpoint) != "" {
		reports, err := export.NewObjectStore(ctx, export.ObjectStoreConfig{
			Endpoint:   cfg.MinIO.Endpoint,
			AccessKey:  cfg.MinIO.AccessKey,
			SecretKey:  cfg.MinIO.SecretKey,
			Bucket:     cfg.MinIO.Bucket,
			UseSSL:     cfg.MinIO.UseSSL,
			PresignTTL: cfg.MinIO.PresignTTL,
		})
		if err != nil {
			return fmt.Errorf("object storage failed: %w", err)
		}
		deps.Reports = reports
		checks["minio"] = reports
	}

	service := app.New(cfg, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Search.Timeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("backend", searchService.Backend()).Msg("annotation API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
