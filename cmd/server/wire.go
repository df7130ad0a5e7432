//go:build wireinject

package main

import (
	"context"
	"net/http"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"mediaforge/services/generation-api/internal/config"
	"mediaforge/services/generation-api/internal/domain/generation"
	"mediaforge/services/generation-api/internal/domain/media"
	"mediaforge/services/generation-api/internal/domain/postprocess"
	"mediaforge/services/generation-api/internal/domain/profile"
	"mediaforge/services/generation-api/internal/domain/submit"
	"mediaforge/services/generation-api/internal/domain/webhook"
	"mediaforge/services/generation-api/internal/infrastructure/auth"
	"mediaforge/services/generation-api/internal/infrastructure/database"
	"mediaforge/services/generation-api/internal/infrastructure/falclient"
	"mediaforge/services/generation-api/internal/infrastructure/ffmpegclient"
	"mediaforge/services/generation-api/internal/infrastructure/logger"
	"mediaforge/services/generation-api/internal/infrastructure/repository/generationrepo"
	"mediaforge/services/generation-api/internal/infrastructure/repository/profilerepo"
	"mediaforge/services/generation-api/internal/infrastructure/storage"
	"mediaforge/services/generation-api/internal/interfaces/httpserver"
	"mediaforge/services/generation-api/internal/interfaces/httpserver/handlers"
)

var storeSet = wire.NewSet(
	generationrepo.New,
	wire.Bind(new(generation.Store), new(*generationrepo.Repository)),
	profilerepo.New,
	wire.Bind(new(profile.Store), new(*profilerepo.Repository)),
)

var webhookSet = wire.NewSet(
	provideMaterializer,
	wire.Bind(new(webhook.MediaStore), new(*media.Materializer)),
	ffmpegclient.New,
	wire.Bind(new(postprocess.FFmpegClient), new(*ffmpegclient.Client)),
	provideDispatcher,
	wire.Bind(new(webhook.PostProcessor), new(*postprocess.Dispatcher)),
	provideVerifier,
	wire.Bind(new(handlers.SignatureVerifier), new(*webhook.Verifier)),
	provideDeduplicator,
	provideReconciler,
	wire.Bind(new(handlers.Reconciler), new(*webhook.Reconciler)),
)

var submitSet = wire.NewSet(
	falclient.New,
	wire.Bind(new(submit.Provider), new(*falclient.Client)),
	provideSubmitService,
	wire.Bind(new(handlers.Submitter), new(*submit.Service)),
)

// BuildApplication assembles the generation API with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		auth.NewValidator,
		newGormDB,
		storage.New,
		storeSet,
		webhookSet,
		submitSet,
		provideHandlers,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}

func newGormDB(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func provideMaterializer(blobs storage.Backend, cfg *config.Config, log zerolog.Logger) *media.Materializer {
	return media.NewMaterializer(blobs, &http.Client{Timeout: cfg.RemoteFetchTimeout}, cfg.MaxMediaBytes, log)
}

func provideDispatcher(client *ffmpegclient.Client, store generation.Store, cfg *config.Config, log zerolog.Logger) *postprocess.Dispatcher {
	return postprocess.NewDispatcher(client, store, cfg.WebhookCallbackURL(), cfg.FFmpegEnabled(), log)
}

func provideVerifier(cfg *config.Config, log zerolog.Logger) *webhook.Verifier {
	return webhook.NewVerifier(cfg.FalJWKSURL, cfg.JWKSCacheTTL, cfg.WebhookMaxSkew, nil, log)
}

func provideDeduplicator(cfg *config.Config) *webhook.Deduplicator {
	return webhook.NewDeduplicator(cfg.WebhookDedupTTL)
}

func provideReconciler(store generation.Store, profiles profile.Store, mediaStore webhook.MediaStore, post webhook.PostProcessor, dedup *webhook.Deduplicator, log zerolog.Logger) *webhook.Reconciler {
	return webhook.NewReconciler(store, profiles, mediaStore, post, dedup, log)
}

func provideSubmitService(store generation.Store, provider submit.Provider, cfg *config.Config, log zerolog.Logger) *submit.Service {
	return submit.NewService(store, provider, cfg.WebhookCallbackURL(), log)
}

func provideHandlers(cfg *config.Config, store generation.Store, verifier handlers.SignatureVerifier, reconciler handlers.Reconciler, submitter handlers.Submitter, log zerolog.Logger) *handlers.Provider {
	return handlers.NewProvider(cfg, store, verifier, reconciler, submitter, log)
}
