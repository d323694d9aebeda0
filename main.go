package main

import (
	"context"
	"os"
	"runtime"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/labportal/internal/config"
	"stealthcompany.com/labportal/internal/orchestrator"
	"stealthcompany.com/labportal/pkg/zerolog_config"
)

func main() {
	config.LoadDotEnv(".env")

	zerolog_config.SetAppPrefix("labportal-orch")
	if err := zerolog_config.Startup(zerolog_config.Options{
		Level:            os.Getenv("LOG_LEVEL"),
		ElasticsearchURL: os.Getenv("LOG_ELASTICSEARCH_URL"),
		Index:            os.Getenv("LOG_INDEX"),
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logging")
	}
	log.Info().Msg("Starting labportal-orch service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orchestrator.NewSignalHandler().HandleSignals(ctx, cancel)

	binExt := ""
	if runtime.GOOS == "windows" {
		binExt = ".exe"
	}
	sm := orchestrator.NewServiceManager(".", binExt, 0)

	if os.Getenv("COUCHBASE_URL") != "" {
		sm.RunSeed(ctx)
	}
	if err := sm.StartAPIService(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start API service")
	}
	if err := sm.Wait(); err != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}
