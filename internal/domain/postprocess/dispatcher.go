// Package postprocess dispatches FFmpeg work for completed videos:
// thumbnail extraction when the provider sent none, and watermarking
// for free-tier users.
package postprocess

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mediaforge/services/generation-api/internal/domain/generation"
	"mediaforge/services/generation-api/internal/domain/mediakind"
	"mediaforge/services/generation-api/internal/domain/profile"
)

// ThumbnailRequest asks the FFmpeg collaborator for a frame grab.
type ThumbnailRequest struct {
	ProcessingID string  `json:"processing_id"`
	GenerationID string  `json:"generation_id"`
	VideoURL     string  `json:"video_url"`
	UserID       string  `json:"user_id"`
	Timestamp    float64 `json:"timestamp"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	WebhookURL   string  `json:"webhook_url"`
}

// WatermarkRequest asks the FFmpeg collaborator to watermark a video.
type WatermarkRequest struct {
	ProcessingID string  `json:"processing_id"`
	GenerationID string  `json:"generation_id"`
	VideoURL     string  `json:"video_url"`
	UserID       string  `json:"user_id"`
	Position     string  `json:"position"`
	Opacity      float64 `json:"opacity"`
	Scale        float64 `json:"scale"`
	WebhookURL   string  `json:"webhook_url"`
}

// FFmpegClient submits tasks to the FFmpeg collaborator service.
type FFmpegClient interface {
	ExtractThumbnail(ctx context.Context, req ThumbnailRequest) error
	AddWatermark(ctx context.Context, req WatermarkRequest) error
}

// Dispatcher decides which FFmpeg tasks a completed video needs and
// fires them concurrently. Task failures are recorded but never
// propagate: post-processing must not undo a completed generation.
type Dispatcher struct {
	client      FFmpegClient
	store       generation.Store
	callbackURL string
	enabled     bool
	log         zerolog.Logger
}

// NewDispatcher builds a Dispatcher. callbackURL is where the FFmpeg
// service reports results; enabled false turns dispatch into a no-op.
func NewDispatcher(client FFmpegClient, store generation.Store, callbackURL string, enabled bool, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		client:      client,
		store:       store,
		callbackURL: callbackURL,
		enabled:     enabled,
		log:         log,
	}
}

// ProcessVideo dispatches thumbnail extraction and watermarking for a
// completed generation. Only video output qualifies; images and audio
// return immediately regardless of tier.
func (d *Dispatcher) ProcessVideo(ctx context.Context, gen *generation.Generation, videoURL string, prof *profile.Profile) error {
	if !d.enabled || d.client == nil {
		d.log.Debug().Msg("ffmpeg processing disabled")
		return nil
	}
	if mediakind.Classify(gen.ToolType, videoURL) != mediakind.KindVideo {
		d.log.Debug().Str("tool_type", gen.ToolType).Msg("skipping ffmpeg for non-video generation")
		return nil
	}

	isFree := prof.IsFreeTier()
	userTier := prof.Tier()

	hasThumbnail := gen.ThumbnailURL != "" ||
		gen.Metadata.ThumbnailURL != "" ||
		gen.Metadata.OriginalThumbnailURL != ""

	var (
		group errgroup.Group
		mu    sync.Mutex
		tasks int
		ok    int
	)

	if !hasThumbnail {
		tasks++
		group.Go(func() error {
			err := d.client.ExtractThumbnail(ctx, ThumbnailRequest{
				ProcessingID: uuid.NewString(),
				GenerationID: gen.ID,
				VideoURL:     videoURL,
				UserID:       gen.UserID,
				Timestamp:    2.0,
				Width:        1280,
				Height:       720,
				WebhookURL:   d.callbackURL,
			})
			if err != nil {
				d.log.Error().Err(err).Str("generation_id", gen.ID).Msg("thumbnail extraction dispatch failed")
				return nil
			}
			mu.Lock()
			ok++
			mu.Unlock()
			return nil
		})
	}

	if isFree {
		tasks++
		group.Go(func() error {
			err := d.client.AddWatermark(ctx, WatermarkRequest{
				ProcessingID: uuid.NewString(),
				GenerationID: gen.ID,
				VideoURL:     videoURL,
				UserID:       gen.UserID,
				Position:     "bottom-center",
				Opacity:      0.95,
				Scale:        1.2,
				WebhookURL:   d.callbackURL,
			})
			if err != nil {
				d.log.Error().Err(err).Str("generation_id", gen.ID).Msg("watermark dispatch failed")
				return nil
			}
			mu.Lock()
			ok++
			mu.Unlock()
			return nil
		})
	}

	if tasks == 0 {
		d.log.Debug().Str("generation_id", gen.ID).Msg("no ffmpeg tasks needed")
		return nil
	}

	_ = group.Wait()

	d.log.Info().
		Str("generation_id", gen.ID).
		Int("tasks", tasks).
		Int("dispatched", ok).
		Bool("watermark_required", isFree).
		Msg("ffmpeg tasks initiated")

	meta := generation.Metadata{
		FFmpegInitiated:   generation.Ptr(true),
		FFmpegTasksCount:  generation.Ptr(tasks),
		WatermarkRequired: generation.Ptr(isFree),
		UserTier:          userTier,
		MediaType:         "video",
	}
	if err := d.store.MergeMetadata(ctx, gen.ID, meta); err != nil {
		d.log.Error().Err(err).Str("generation_id", gen.ID).Msg("recording ffmpeg dispatch failed")
	}
	return nil
}
