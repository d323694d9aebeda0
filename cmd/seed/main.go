package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"

	"stealthcompany.com/labportal/internal/config"
	"stealthcompany.com/labportal/internal/dal"
	"stealthcompany.com/labportal/internal/orchestrator"
	"stealthcompany.com/labportal/pkg/zerolog_config"
)

func main() {
	config.LoadDotEnv("../.env", ".env")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadSeed(ctx, envconfig.OsLookuper())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	zerolog_config.SetAppPrefix("labportal-seed")
	if err := zerolog_config.Startup(cfg.LogOptions()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logging")
	}
	log.Info().Str("file", cfg.File).Msg("Starting labportal-seed")

	orchestrator.NewSignalHandler().HandleSignals(ctx, cancel)

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, dal.ErrLocked) {
			log.Warn().Err(err).Msg("Another seed run holds the lock, nothing to do")
			return
		}
		log.Error().Err(err).Msg("Catalogue seed failed")
		os.Exit(1)
	}
	log.Info().Msg("Catalogue seed completed successfully")
}

func run(ctx context.Context, cfg *config.Seed) error {
	catalogue, err := dal.LoadCatalogueFile(cfg.File)
	if err != nil {
		return err
	}

	conn, err := dal.ConnectWithRetry(ctx, cfg.CouchbaseConfig())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if err := conn.EnsureCollections(ctx); err != nil {
		return err
	}

	locker := dal.NewSeedLock(conn, cfg.LockTTL)
	log.Info().Msg("Locking catalogue for import")
	if err := locker.Lock(ctx); err != nil {
		return err
	}
	defer func() {
		log.Info().Msg("Unlocking catalogue after import")
		if err := locker.Unlock(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to unlock catalogue")
		}
	}()

	status := dal.NewCatalogueStatusModel(conn)
	if err := status.MarkStarted(ctx); err != nil {
		return err
	}
	if err := dal.NewCouchbaseStore(conn).SaveCatalogue(ctx, catalogue); err != nil {
		return err
	}
	return status.MarkCompleted(ctx, catalogue, fmt.Sprintf("imported from %s", cfg.File))
}
