package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"mediaforge/services/generation-api/internal/config"
	"mediaforge/services/generation-api/internal/domain/media"
	"mediaforge/services/generation-api/internal/domain/postprocess"
	"mediaforge/services/generation-api/internal/domain/submit"
	"mediaforge/services/generation-api/internal/domain/webhook"
	"mediaforge/services/generation-api/internal/infrastructure/auth"
	"mediaforge/services/generation-api/internal/infrastructure/database"
	"mediaforge/services/generation-api/internal/infrastructure/falclient"
	"mediaforge/services/generation-api/internal/infrastructure/ffmpegclient"
	"mediaforge/services/generation-api/internal/infrastructure/logger"
	"mediaforge/services/generation-api/internal/infrastructure/observability"
	"mediaforge/services/generation-api/internal/infrastructure/repository/generationrepo"
	"mediaforge/services/generation-api/internal/infrastructure/repository/profilerepo"
	"mediaforge/services/generation-api/internal/infrastructure/storage"
	"mediaforge/services/generation-api/internal/interfaces/httpserver"
	"mediaforge/services/generation-api/internal/interfaces/httpserver/handlers"
)

// Application bundles the long-running pieces of the service.
type Application struct {
	httpServer *httpserver.HttpServer
	log        zerolog.Logger
}

// NewApplication builds the Application.
func NewApplication(httpServer *httpserver.HttpServer, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		log:        log,
	}
}

// Start runs the HTTP server until the context ends.
func (a *Application) Start(ctx context.Context) error {
	return a.httpServer.Run(ctx)
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	blobs, err := storage.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize storage")
	}

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth validator")
	}

	generationStore := generationrepo.New(db)
	profileStore := profilerepo.New(db)

	materializer := media.NewMaterializer(blobs,
		&http.Client{Timeout: cfg.RemoteFetchTimeout}, cfg.MaxMediaBytes, log)

	ffmpegClient := ffmpegclient.New(cfg, log)
	dispatcher := postprocess.NewDispatcher(ffmpegClient, generationStore,
		cfg.WebhookCallbackURL(), cfg.FFmpegEnabled(), log)

	verifier := webhook.NewVerifier(cfg.FalJWKSURL, cfg.JWKSCacheTTL, cfg.WebhookMaxSkew, nil, log)
	dedup := webhook.NewDeduplicator(cfg.WebhookDedupTTL)
	reconciler := webhook.NewReconciler(generationStore, profileStore, materializer, dispatcher, dedup, log)

	provider := falclient.New(cfg, log)
	submitter := submit.NewService(generationStore, provider, cfg.WebhookCallbackURL(), log)

	handlerProvider := handlers.NewProvider(cfg, generationStore, verifier, reconciler, submitter, log)
	httpServer := httpserver.New(cfg, log, handlerProvider, authValidator, db, blobs)
	app := NewApplication(httpServer, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
