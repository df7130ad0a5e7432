package handlers

import (
	"github.com/rs/zerolog"

	"mediaforge/services/generation-api/internal/config"
	"mediaforge/services/generation-api/internal/domain/generation"
)

// Provider wires HTTP handlers.
type Provider struct {
	Webhook    *WebhookHandler
	Generation *GenerationHandler
}

// NewProvider builds all handlers.
func NewProvider(cfg *config.Config, store generation.Store, verifier SignatureVerifier, reconciler Reconciler, submitter Submitter, log zerolog.Logger) *Provider {
	return &Provider{
		Webhook:    NewWebhookHandler(cfg, verifier, reconciler, store, log),
		Generation: NewGenerationHandler(cfg, store, submitter, log),
	}
}
