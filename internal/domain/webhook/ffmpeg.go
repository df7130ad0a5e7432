package webhook

import (
	"context"
	"encoding/json"

	"mediaforge/services/generation-api/internal/domain/generation"
	"mediaforge/services/generation-api/internal/utils/platformerrors"
)

// FFmpegCallback is the completion report the FFmpeg collaborator
// posts back after a thumbnail or watermark task.
type FFmpegCallback struct {
	GenerationID   string `json:"generation_id"`
	ProcessingID   string `json:"processing_id"`
	Status         string `json:"status"`
	ThumbnailURL   string `json:"thumbnail_url"`
	WatermarkedURL string `json:"watermarked_url"`
	Error          string `json:"error"`
}

// ParseFFmpegCallback decodes a callback body.
func ParseFFmpegCallback(body []byte) (*FFmpegCallback, error) {
	var cb FFmpegCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, err
	}
	return &cb, nil
}

// HandleFFmpegCallback applies a post-processing result to a record.
// Unlike provider webhooks this runs unguarded: the generation is
// already completed when FFmpeg reports back.
func (r *Reconciler) HandleFFmpegCallback(ctx context.Context, cb *FFmpegCallback) error {
	if cb.GenerationID == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"ffmpeg callback carries no generation id", nil, "c1a0d9e8-7b6f-4a5e-8d2c-3f4a5b6c7d08")
	}

	gen, err := r.store.GetByID(ctx, cb.GenerationID)
	if err != nil {
		return err
	}

	now := r.now()
	update := generation.Update{}

	switch {
	case cb.Status == "completed" && cb.ThumbnailURL != "":
		update.ThumbnailURL = &cb.ThumbnailURL
		update.Metadata = &generation.Metadata{
			ThumbnailProcessing: &generation.ProcessingRecord{
				Status:       "completed",
				ProcessingID: cb.ProcessingID,
				ResultURL:    cb.ThumbnailURL,
				CompletedAt:  &now,
			},
		}
		r.log.Info().Str("generation_id", gen.ID).Str("thumbnail_url", cb.ThumbnailURL).Msg("thumbnail processing completed")

	case cb.Status == "completed" && cb.WatermarkedURL != "":
		update.OutputFileURL = &cb.WatermarkedURL
		update.Metadata = &generation.Metadata{
			WatermarkProcessing: &generation.WatermarkRecord{
				Status:         "completed",
				ProcessingID:   cb.ProcessingID,
				WatermarkedURL: cb.WatermarkedURL,
				OriginalURL:    gen.OutputFileURL,
				Watermarked:    true,
				CompletedAt:    &now,
			},
		}
		r.log.Info().Str("generation_id", gen.ID).Str("watermarked_url", cb.WatermarkedURL).Msg("watermark processing completed")

	case cb.Status == "failed":
		update.Metadata = &generation.Metadata{
			FFmpegProcessing: &generation.ProcessingRecord{
				Status:       "failed",
				ProcessingID: cb.ProcessingID,
				ErrorMessage: cb.Error,
				FailedAt:     &now,
			},
		}
		r.log.Warn().Str("generation_id", gen.ID).Str("error", cb.Error).Msg("ffmpeg processing failed")

	default:
		// Unknown status or a completed report without a URL; ack
		// without touching the record.
		return nil
	}

	return r.store.Update(ctx, gen.ID, update)
}
