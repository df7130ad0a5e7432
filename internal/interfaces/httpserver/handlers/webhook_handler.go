package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mediaforge/services/generation-api/internal/config"
	"mediaforge/services/generation-api/internal/domain/generation"
	"mediaforge/services/generation-api/internal/domain/webhook"
	"mediaforge/services/generation-api/internal/infrastructure/metrics"
	"mediaforge/services/generation-api/internal/interfaces/httpserver/responses"
	"mediaforge/services/generation-api/internal/utils/platformerrors"
)

// Reconciler applies verified webhook events to generation records.
type Reconciler interface {
	Reconcile(ctx context.Context, env *webhook.Envelope) (*webhook.Result, error)
	HandleFFmpegCallback(ctx context.Context, cb *webhook.FFmpegCallback) error
}

// SignatureVerifier checks the provider's detached signature.
type SignatureVerifier interface {
	Verify(ctx context.Context, headers http.Header, body []byte) error
}

// GenerationFinder looks up records for the signature bypass check.
type GenerationFinder interface {
	FindByRequestID(ctx context.Context, requestID string) (*generation.Generation, error)
}

// WebhookHandler receives provider completion events and FFmpeg task
// callbacks on a single endpoint. Provider deliveries are recognized
// by their signature headers; everything else is treated as an FFmpeg
// callback.
type WebhookHandler struct {
	cfg        *config.Config
	verifier   SignatureVerifier
	reconciler Reconciler
	finder     GenerationFinder
	bypass     map[string]bool
	log        zerolog.Logger
}

// NewWebhookHandler builds the handler.
func NewWebhookHandler(cfg *config.Config, verifier SignatureVerifier, reconciler Reconciler, finder GenerationFinder, log zerolog.Logger) *WebhookHandler {
	bypass := make(map[string]bool, len(cfg.SignatureBypassList))
	for _, model := range cfg.SignatureBypassList {
		bypass[model] = true
	}
	return &WebhookHandler{
		cfg:        cfg,
		verifier:   verifier,
		reconciler: reconciler,
		finder:     finder,
		bypass:     bypass,
		log:        log,
	}
}

// Handle is the POST entrypoint for both webhook sources.
func (h *WebhookHandler) Handle(c *gin.Context) {
	setCORSHeaders(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "unreadable request body", "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c01")
		return
	}

	if hasProviderHeaders(c.Request.Header) {
		h.handleProvider(c, body)
		return
	}
	h.handleFFmpeg(c, body)
}

// HandleOptions answers CORS preflight.
func (h *WebhookHandler) HandleOptions(c *gin.Context) {
	setCORSHeaders(c)
	c.String(http.StatusOK, "ok")
}

func hasProviderHeaders(headers http.Header) bool {
	return headers.Get(webhook.HeaderRequestID) != "" &&
		headers.Get(webhook.HeaderUserID) != "" &&
		headers.Get(webhook.HeaderTimestamp) != "" &&
		headers.Get(webhook.HeaderSignature) != ""
}

func (h *WebhookHandler) handleProvider(c *gin.Context, body []byte) {
	start := time.Now()
	ctx := c.Request.Context()

	env, err := webhook.ParseEnvelope(body)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("fal", "rejected").Inc()
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "malformed webhook body", "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c02")
		return
	}

	if !h.signatureBypassed(ctx, env.CorrelationID()) {
		if err := h.verifier.Verify(ctx, c.Request.Header, body); err != nil {
			h.log.Warn().Err(err).Str("request_id", env.CorrelationID()).Msg("webhook signature verification failed")
			metrics.WebhooksTotal.WithLabelValues("fal", "forbidden").Inc()
			responses.HandleNewError(c, platformerrors.ErrorTypeForbidden, "invalid webhook signature", "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c03")
			return
		}
	}

	result, err := h.reconciler.Reconcile(ctx, env)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("fal", "error").Inc()
		responses.HandleError(c, err, "webhook processing failed")
		return
	}

	metrics.WebhooksTotal.WithLabelValues("fal", string(result.Action)).Inc()
	metrics.WebhookDuration.WithLabelValues("fal").Observe(time.Since(start).Seconds())

	ack := responses.WebhookAck{
		Success:      true,
		GenerationID: result.GenerationID,
	}
	switch result.Action {
	case webhook.ActionCompleted:
		ack.Message = "Generation completed"
	case webhook.ActionFailed:
		ack.Message = "Failure processed"
		ack.ErrorType = string(result.ErrorType)
		ack.ErrorCode = result.ErrorCode
	case webhook.ActionNoOutput:
		ack.Message = "No output URL in webhook, generation failed"
	case webhook.ActionDuplicate:
		ack.Message = "Duplicate webhook ignored"
	case webhook.ActionStale:
		ack.Message = "Generation already finalized"
	default:
		ack.Message = "Status update received"
	}
	c.JSON(http.StatusOK, ack)
}

// signatureBypassed reports whether the record behind this request id
// was produced by a model exempt from signature checks. Some models
// deliver webhooks without valid signatures; the exemption is scoped
// to their recorded model name, never to the whole endpoint.
func (h *WebhookHandler) signatureBypassed(ctx context.Context, requestID string) bool {
	if requestID == "" || len(h.bypass) == 0 {
		return false
	}
	gen, err := h.finder.FindByRequestID(ctx, requestID)
	if err != nil || gen == nil {
		return false
	}
	if h.bypass[gen.Metadata.Model] || h.bypass[gen.Model] {
		h.log.Info().Str("request_id", requestID).Str("model", gen.Metadata.Model).Msg("signature check bypassed for exempt model")
		return true
	}
	return false
}

func (h *WebhookHandler) handleFFmpeg(c *gin.Context, body []byte) {
	start := time.Now()
	ctx := c.Request.Context()

	cb, err := webhook.ParseFFmpegCallback(body)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("ffmpeg", "rejected").Inc()
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "malformed ffmpeg callback body", "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c04")
		return
	}

	if err := h.reconciler.HandleFFmpegCallback(ctx, cb); err != nil {
		metrics.WebhooksTotal.WithLabelValues("ffmpeg", "error").Inc()
		responses.HandleError(c, err, "ffmpeg callback processing failed")
		return
	}

	metrics.WebhooksTotal.WithLabelValues("ffmpeg", "processed").Inc()
	metrics.WebhookDuration.WithLabelValues("ffmpeg").Observe(time.Since(start).Seconds())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func setCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type, x-fal-webhook-request-id, x-fal-webhook-user-id, x-fal-webhook-timestamp, x-fal-webhook-signature")
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
}
