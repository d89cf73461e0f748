package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/oclite/studio/internal/auth"
	"github.com/oclite/studio/internal/cache"
	"github.com/oclite/studio/internal/cdn"
	"github.com/oclite/studio/internal/genclient"
	"github.com/oclite/studio/internal/http/handlers"
	httpapi "github.com/oclite/studio/internal/http/httpapi"
	"github.com/oclite/studio/internal/infra"
	"github.com/oclite/studio/internal/objectstore"
	"github.com/oclite/studio/internal/orchestrator"
	"github.com/oclite/studio/internal/promptref"
	"github.com/oclite/studio/internal/ratelimit"
	"github.com/oclite/studio/internal/sharelink"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	store, err := cache.New(cache.Options{Dir: cfg.CacheDir, TTL: cfg.CacheTTL, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open local cache")
	}
	// Claim anything a previous process left behind.
	store.Sweep()

	generator, err := genclient.NewClient(genclient.Options{
		BaseURL:      cfg.GenerationBaseURL,
		APIKey:       cfg.GenerationAPIKey,
		PollInterval: cfg.PollInterval,
		MaxPolls:     cfg.MaxPolls,
		Logger:       &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build generation client")
	}

	var refiner promptref.Refiner = promptref.NewPassthrough()
	if cfg.PromptGatewayURL != "" {
		refiner, err = promptref.NewGateway(promptref.Options{
			BaseURL: cfg.PromptGatewayURL,
			APIKey:  cfg.PromptGatewayKey,
			Model:   cfg.PromptGatewayModel,
			Logger:  &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build prompt refiner")
		}
	}

	var uploader orchestrator.Uploader
	if cfg.CDNUploadURL != "" {
		up, err := cdn.NewUploader(cdn.Options{
			UploadURL: cfg.CDNUploadURL,
			APIKey:    cfg.CDNAPIKey,
			Logger:    &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build cdn uploader")
		}
		uploader = up
	}

	ctx := context.Background()
	var writer *objectstore.Writer
	if cfg.StoreAccessKey != "" {
		writer, err = objectstore.New(ctx, objectstore.Options{
			Bucket:    cfg.StoreBucket,
			Region:    cfg.StoreRegion,
			Endpoint:  cfg.StoreEndpoint,
			PathStyle: cfg.StorePathStyle,
			AccessKey: cfg.StoreAccessKey,
			SecretKey: cfg.StoreSecretKey,
			Logger:    &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build object store client")
		}
		if err := writer.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("object store bucket not ready, sharing may degrade")
		}
	}

	var sessions *auth.Sessions
	if cfg.AuthBaseURL != "" {
		sessions, err = auth.NewSessions(auth.Options{BaseURL: cfg.AuthBaseURL, Logger: &logger})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build auth client")
		}
	}

	limiter := ratelimit.New(cfg.RateLimitOps, cfg.RateLimitWindow)
	links := sharelink.NewBuilder(cfg.ShareBaseURL)

	runOpts := orchestrator.Options{
		Generator: generator,
		Cache:     store,
		Uploader:  uploader,
		Refiner:   refiner,
		Limiter:   limiter,
		Links:     links,
		CDNFolder: cfg.CDNFolder,
		Logger:    &logger,
	}
	if writer != nil {
		runOpts.Store = writer
	}
	if sessions != nil {
		runOpts.Sessions = sessions
	}
	runner, err := orchestrator.New(runOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build orchestrator")
	}

	app := &handlers.App{
		Runner:  runner,
		Limiter: limiter,
		Cache:   store,
		Links:   links,
		Logger:  logger,
	}
	if writer != nil {
		app.Gallery = writer
	}
	if sessions != nil {
		app.Sessions = sessions
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:         logger,
		RequestsPerMin: 120,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	store.Sweep()
	logger.Info().Msg("server stopped")
}
