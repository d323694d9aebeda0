package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/labportal/internal/api"
	"stealthcompany.com/labportal/internal/cache"
	"stealthcompany.com/labportal/internal/config"
	"stealthcompany.com/labportal/internal/dal"
	"stealthcompany.com/labportal/internal/metrics"
	"stealthcompany.com/labportal/internal/orchestrator"
	"stealthcompany.com/labportal/internal/session"
	"stealthcompany.com/labportal/internal/storage"
	"stealthcompany.com/labportal/pkg/zerolog_config"
)

func main() {
	config.LoadDotEnv("../.env", ".env")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	zerolog_config.SetAppPrefix("labportal-api")
	if err := zerolog_config.Startup(cfg.LogOptions()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logging")
	}
	log.Info().Msg("Starting labportal-api service")

	orchestrator.NewSignalHandler().HandleSignals(ctx, cancel)

	if cfg.Metrics.Business {
		metrics.EnableBusinessMetrics()
	}
	if cfg.Metrics.System {
		metrics.StartSystemMetrics(ctx, cfg.Metrics.SystemInterval)
	}

	store := openStore(ctx, cfg)
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}()

	c := openCache(ctx, cfg)
	defer c.Close()

	files := openFiles(ctx, cfg)

	handler := api.New(api.Options{
		Store:          store,
		Cache:          c,
		Files:          files,
		Sessions:       session.NewManager(cfg.Auth.Secret, c, cfg.Auth.SessionTTL),
		DraftTTL:       cfg.DraftTTL,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("API Server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to start API server")
			store.Close()
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("Shutting down API server")
		shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}
	log.Info().Msg("API server stopped")
}

// openStore connects to Couchbase, or keeps everything in memory when no
// cluster is configured.
func openStore(ctx context.Context, cfg *config.Config) dal.Store {
	if cfg.Couchbase.URL == "" {
		log.Warn().Msg("COUCHBASE_URL not set, using in-memory store")
		return dal.NewMemoryStore()
	}

	conn, err := dal.ConnectWithRetry(ctx, cfg.CouchbaseConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Couchbase")
	}
	if err := conn.EnsureCollections(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare collections")
	}

	if cfg.CatalogueWait > 0 {
		log.Info().Dur("timeout", cfg.CatalogueWait).Msg("Waiting for catalogue seed")
		if err := dal.NewCatalogueStatusModel(conn).WaitReady(ctx, cfg.CatalogueWait, 2*time.Second); err != nil {
			log.Warn().Err(err).Msg("Catalogue not ready, serving anyway")
		}
	}

	return dal.NewCouchbaseStore(conn)
}

func openCache(ctx context.Context, cfg *config.Config) cache.Cache {
	if cfg.Redis.Addr == "" {
		log.Warn().Msg("REDIS_ADDR not set, sessions and drafts are kept in process")
		return cache.NewMemory()
	}
	r, err := cache.NewRedis(ctx, cfg.RedisConfig())
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
	}
	return r
}

func openFiles(ctx context.Context, cfg *config.Config) storage.FileStore {
	if cfg.Minio.Endpoint == "" {
		log.Warn().Msg("MINIO_ENDPOINT not set, uploads are kept in memory")
		return storage.NewMemory()
	}
	m, err := storage.NewMinio(ctx, cfg.MinioConfig())
	if err != nil {
		log.Fatal().Err(err).Str("endpoint", cfg.Minio.Endpoint).Msg("Failed to connect to MinIO")
	}
	return m
}
