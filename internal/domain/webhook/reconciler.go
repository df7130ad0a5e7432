package webhook

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/services/generation-api/internal/domain/falerrors"
	"mediaforge/services/generation-api/internal/domain/generation"
	"mediaforge/services/generation-api/internal/domain/media"
	"mediaforge/services/generation-api/internal/domain/mediakind"
	"mediaforge/services/generation-api/internal/domain/profile"
	"mediaforge/services/generation-api/internal/utils/platformerrors"
)

// MediaStore materializes ephemeral provider URLs into durable storage.
type MediaStore interface {
	Materialize(ctx context.Context, req media.Request) media.Result
}

// PostProcessor dispatches FFmpeg work for completed video output.
type PostProcessor interface {
	ProcessVideo(ctx context.Context, gen *generation.Generation, videoURL string, prof *profile.Profile) error
}

// Action describes what a webhook delivery did to the record.
type Action string

const (
	ActionCompleted Action = "completed"
	ActionFailed    Action = "failed"
	ActionNoOutput  Action = "no_output"
	ActionInterim   Action = "interim"
	ActionDuplicate Action = "duplicate"
	ActionStale     Action = "stale"
)

// Result is the outcome of reconciling one webhook delivery.
type Result struct {
	GenerationID string
	Action       Action
	ErrorType    falerrors.Type
	ErrorCode    int
}

// Reconciler applies provider webhook events to generation records.
type Reconciler struct {
	store    generation.Store
	profiles profile.Store
	media    MediaStore
	post     PostProcessor
	dedup    *Deduplicator
	log      zerolog.Logger
	now      func() time.Time
}

// NewReconciler builds a Reconciler.
func NewReconciler(store generation.Store, profiles profile.Store, mediaStore MediaStore, post PostProcessor, dedup *Deduplicator, log zerolog.Logger, opts ...func(*Reconciler)) *Reconciler {
	r := &Reconciler{
		store:    store,
		profiles: profiles,
		media:    mediaStore,
		post:     post,
		dedup:    dedup,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithReconcilerClock overrides the time source. Used in tests.
func WithReconcilerClock(now func() time.Time) func(*Reconciler) {
	return func(r *Reconciler) { r.now = now }
}

// Reconcile applies one verified webhook event. Duplicate deliveries
// and lost update races return without touching the record; a missing
// record is the caller's 404.
func (r *Reconciler) Reconcile(ctx context.Context, env *Envelope) (*Result, error) {
	requestID := env.CorrelationID()
	if requestID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"webhook event carries no request id", nil, "7f2c4f4e-3a1b-4f0e-9f57-0f6f2a1d8c01")
	}

	if !r.dedup.ShouldProcess(requestID, env.Status) {
		r.log.Info().Str("request_id", requestID).Str("status", env.Status).Msg("duplicate webhook ignored")
		return &Result{Action: ActionDuplicate}, nil
	}

	gen, err := r.store.FindProcessingByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			"no processing generation for webhook request id", nil, "b8d9a2c3-54e6-4f7a-8b1c-2d3e4f5a6b07",
			map[string]any{"request_id": requestID})
	}

	switch {
	case env.IsSuccess():
		return r.reconcileSuccess(ctx, gen, env)
	case env.IsFailure():
		return r.reconcileFailure(ctx, gen, env)
	default:
		return r.reconcileInterim(ctx, gen, env)
	}
}

func (r *Reconciler) reconcileSuccess(ctx context.Context, gen *generation.Generation, env *Envelope) (*Result, error) {
	out, err := ExtractOutput(env.Payload)
	if err != nil {
		now := r.now()
		if _, uerr := r.store.UpdateIfProcessing(ctx, gen.ID, generation.Update{
			Status:       generation.Ptr(generation.StatusFailed),
			ErrorMessage: generation.Ptr("No output URL in webhook"),
			CompletedAt:  &now,
		}); uerr != nil {
			return nil, uerr
		}
		r.log.Warn().Str("generation_id", gen.ID).Msg("success webhook without output URL")
		return &Result{GenerationID: gen.ID, Action: ActionNoOutput}, nil
	}

	toolFolder := gen.ToolType
	if toolFolder == "" {
		toolFolder = gen.Metadata.ToolType
	}

	var (
		finalURL   string
		finalURLs  []string
		finalThumb string
		storedAny  bool
	)

	if out.IsBatch() {
		for i, src := range out.URLs {
			idx := i
			res := r.media.Materialize(ctx, media.Request{
				URL:          src,
				UserID:       gen.UserID,
				ToolFolder:   toolFolder,
				Kind:         mediakind.KindImage,
				OutputFormat: gen.Metadata.OutputFormat,
				Index:        &idx,
			})
			finalURLs = append(finalURLs, res.URL)
			storedAny = storedAny || res.Stored
		}
		finalURL = finalURLs[0]
	} else {
		res := r.media.Materialize(ctx, media.Request{
			URL:          out.URL,
			UserID:       gen.UserID,
			ToolFolder:   toolFolder,
			Kind:         r.outputKind(gen, out),
			ContentType:  out.ContentType,
			OutputFormat: gen.Metadata.OutputFormat,
		})
		finalURL = res.URL
		storedAny = res.Stored

		if out.ThumbnailURL != "" {
			thumbRes := r.media.Materialize(ctx, media.Request{
				URL:        out.ThumbnailURL,
				UserID:     gen.UserID,
				ToolFolder: toolFolder,
				Thumbnail:  true,
			})
			finalThumb = thumbRes.URL
		}
	}

	now := r.now()
	meta := generation.Metadata{
		WebhookReceived:      generation.Ptr(true),
		CompletedViaWebhook:  generation.Ptr(true),
		FileSize:             out.FileSize,
		ContentType:          out.ContentType,
		Seed:                 out.Seed,
		OriginalFalURL:       out.URL,
		ThumbnailURL:         finalThumb,
		OriginalThumbnailURL: out.ThumbnailURL,
	}
	if finalURL != out.URL {
		meta.PermanentStorageURL = finalURL
	}
	if len(finalURLs) > 1 {
		meta.AllURLs = finalURLs
	}
	if !storedAny {
		meta.StorageFallback = generation.Ptr(true)
	}

	update := generation.Update{
		Status:        generation.Ptr(generation.StatusCompleted),
		OutputFileURL: generation.Ptr(generation.EncodeOutputURLs(outputURLsFor(finalURL, finalURLs))),
		CompletedAt:   &now,
		Metadata:      &meta,
	}
	if finalThumb != "" {
		update.ThumbnailURL = &finalThumb
	}

	applied, err := r.store.UpdateIfProcessing(ctx, gen.ID, update)
	if err != nil {
		return nil, err
	}
	if !applied {
		r.log.Info().Str("generation_id", gen.ID).Msg("record already terminal, skipping completion")
		return &Result{GenerationID: gen.ID, Action: ActionStale}, nil
	}

	r.log.Info().Str("generation_id", gen.ID).Str("output_url", finalURL).Msg("generation completed")
	r.dispatchPostProcessing(ctx, gen, finalURL)

	return &Result{GenerationID: gen.ID, Action: ActionCompleted}, nil
}

// outputKind maps the payload shape onto a media kind, falling back to
// tool-name classification for bare URLs.
func (r *Reconciler) outputKind(gen *generation.Generation, out Output) mediakind.Kind {
	switch out.Kind {
	case OutputVideo:
		return mediakind.KindVideo
	case OutputImage, OutputImageArray:
		return mediakind.KindImage
	case OutputAudio:
		return mediakind.KindAudio
	default:
		return mediakind.Classify(gen.ToolType, out.URL)
	}
}

func (r *Reconciler) dispatchPostProcessing(ctx context.Context, gen *generation.Generation, finalURL string) {
	if r.post == nil {
		return
	}
	kind := mediakind.Classify(gen.ToolType, finalURL)
	if kind != mediakind.KindVideo {
		r.log.Debug().Str("generation_id", gen.ID).Str("kind", kind.String()).Msg("skipping FFmpeg dispatch for non-video output")
		return
	}

	prof, err := r.profiles.GetByUserID(ctx, gen.UserID)
	if err != nil {
		// Missing or unreadable profiles degrade to free tier.
		r.log.Info().Err(err).Str("user_id", gen.UserID).Msg("profile lookup failed, continuing as free tier")
		prof = nil
	}

	if err := r.post.ProcessVideo(ctx, gen, finalURL, prof); err != nil {
		r.log.Error().Err(err).Str("generation_id", gen.ID).Msg("post-processing dispatch failed")
	}
}

func (r *Reconciler) reconcileFailure(ctx context.Context, gen *generation.Generation, env *Envelope) (*Result, error) {
	analysis := falerrors.ClassifyWebhookEvent(env.Raw)
	now := r.now()

	var code *int
	if analysis.StatusCode != 0 {
		code = &analysis.StatusCode
	}
	meta := generation.Metadata{
		WebhookReceived: generation.Ptr(true),
		WebhookStatus:   env.Status,
		WebhookError:    env.Error,
		ErrorType:       string(analysis.Type),
		ErrorAnalysis: &generation.ErrorAnalysis{
			ErrorCode:        code,
			ErrorType:        string(analysis.Type),
			ContentViolation: analysis.ContentViolation,
			ServerError:      analysis.ServerError,
			BadRequest:       analysis.BadRequest,
			RawError:         analysis.TechnicalMessage,
			FullEvent:        env.Raw,
			AnalyzedAt:       now,
		},
	}

	applied, err := r.store.UpdateIfProcessing(ctx, gen.ID, generation.Update{
		Status:       generation.Ptr(generation.StatusFailed),
		ErrorMessage: generation.Ptr(analysis.WebhookUserMessage()),
		CompletedAt:  &now,
		Metadata:     &meta,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return &Result{GenerationID: gen.ID, Action: ActionStale}, nil
	}

	r.log.Info().
		Str("generation_id", gen.ID).
		Str("error_type", string(analysis.Type)).
		Msg("generation marked as failed")

	return &Result{
		GenerationID: gen.ID,
		Action:       ActionFailed,
		ErrorType:    analysis.Type,
		ErrorCode:    analysis.StatusCode,
	}, nil
}

func (r *Reconciler) reconcileInterim(ctx context.Context, gen *generation.Generation, env *Envelope) (*Result, error) {
	now := r.now()
	err := r.store.MergeMetadata(ctx, gen.ID, generation.Metadata{
		LastWebhookStatus: env.Status,
		LastWebhookUpdate: &now,
	})
	if err != nil {
		return nil, err
	}
	return &Result{GenerationID: gen.ID, Action: ActionInterim}, nil
}

func outputURLsFor(finalURL string, finalURLs []string) []string {
	if len(finalURLs) > 1 {
		return finalURLs
	}
	return []string{finalURL}
}
