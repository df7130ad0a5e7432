package postprocess_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"mediaforge/services/generation-api/internal/domain/generation"
	"mediaforge/services/generation-api/internal/domain/postprocess"
	"mediaforge/services/generation-api/internal/domain/profile"
)

type mockFFmpeg struct {
	mu         sync.Mutex
	thumbnails []postprocess.ThumbnailRequest
	watermarks []postprocess.WatermarkRequest

	thumbnailErr error
	watermarkErr error
}

func (m *mockFFmpeg) ExtractThumbnail(ctx context.Context, req postprocess.ThumbnailRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thumbnails = append(m.thumbnails, req)
	return m.thumbnailErr
}

func (m *mockFFmpeg) AddWatermark(ctx context.Context, req postprocess.WatermarkRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watermarks = append(m.watermarks, req)
	return m.watermarkErr
}

// metadataStore records MergeMetadata calls; the dispatcher touches no
// other Store method.
type metadataStore struct {
	generation.Store
	mu     sync.Mutex
	merged []generation.Metadata
}

func (s *metadataStore) MergeMetadata(ctx context.Context, id string, meta generation.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merged = append(s.merged, meta)
	return nil
}

func videoGeneration() *generation.Generation {
	return &generation.Generation{
		ID:       "gen_01HZXW3Y5T8B6K2M4N7P9Q0R1S",
		UserID:   "user-1",
		ToolType: "wan-pro",
		Status:   generation.StatusCompleted,
	}
}

func TestDispatcher_FreeTierGetsBothTasks(t *testing.T) {
	client := &mockFFmpeg{}
	store := &metadataStore{}
	d := postprocess.NewDispatcher(client, store, "https://api.example/v1/webhooks/fal", true, zerolog.Nop())

	gen := videoGeneration()
	if err := d.ProcessVideo(context.Background(), gen, "https://store.example/v.mp4", nil); err != nil {
		t.Fatalf("ProcessVideo: %v", err)
	}

	if len(client.thumbnails) != 1 {
		t.Fatalf("thumbnail dispatches = %d, want 1", len(client.thumbnails))
	}
	thumb := client.thumbnails[0]
	if thumb.GenerationID != gen.ID || thumb.VideoURL != "https://store.example/v.mp4" {
		t.Errorf("thumbnail request = %+v", thumb)
	}
	if thumb.Timestamp != 2.0 || thumb.Width != 1280 || thumb.Height != 720 {
		t.Errorf("thumbnail defaults = %+v", thumb)
	}
	if thumb.ProcessingID == "" {
		t.Error("thumbnail request should carry a processing id")
	}
	if thumb.WebhookURL != "https://api.example/v1/webhooks/fal" {
		t.Errorf("thumbnail webhook url = %q", thumb.WebhookURL)
	}

	if len(client.watermarks) != 1 {
		t.Fatalf("watermark dispatches = %d, want 1 for a free-tier user", len(client.watermarks))
	}
	wm := client.watermarks[0]
	if wm.Position != "bottom-center" || wm.Opacity != 0.95 || wm.Scale != 1.2 {
		t.Errorf("watermark defaults = %+v", wm)
	}

	if len(store.merged) != 1 {
		t.Fatalf("metadata merges = %d, want 1", len(store.merged))
	}
	meta := store.merged[0]
	if meta.FFmpegInitiated == nil || !*meta.FFmpegInitiated {
		t.Error("dispatch should be recorded as initiated")
	}
	if meta.FFmpegTasksCount == nil || *meta.FFmpegTasksCount != 2 {
		t.Errorf("tasks count = %v, want 2", meta.FFmpegTasksCount)
	}
	if meta.WatermarkRequired == nil || !*meta.WatermarkRequired {
		t.Error("watermark should be recorded as required")
	}
	if meta.UserTier != "free" {
		t.Errorf("user tier = %q, want free", meta.UserTier)
	}
}

func TestDispatcher_PaidTierSkipsWatermark(t *testing.T) {
	client := &mockFFmpeg{}
	store := &metadataStore{}
	d := postprocess.NewDispatcher(client, store, "https://api.example/v1/webhooks/fal", true, zerolog.Nop())

	prof := &profile.Profile{ID: "user-1", SubscriptionTier: "pro"}
	if err := d.ProcessVideo(context.Background(), videoGeneration(), "https://store.example/v.mp4", prof); err != nil {
		t.Fatalf("ProcessVideo: %v", err)
	}

	if len(client.watermarks) != 0 {
		t.Error("paid tier must not be watermarked")
	}
	if len(client.thumbnails) != 1 {
		t.Error("thumbnail should still be extracted for paid tier")
	}
	if len(store.merged) != 1 {
		t.Fatalf("metadata merges = %d, want 1", len(store.merged))
	}
	if store.merged[0].UserTier != "pro" {
		t.Errorf("user tier = %q, want pro", store.merged[0].UserTier)
	}
}

func TestDispatcher_TrialTierIsFree(t *testing.T) {
	client := &mockFFmpeg{}
	store := &metadataStore{}
	d := postprocess.NewDispatcher(client, store, "https://api.example/v1/webhooks/fal", true, zerolog.Nop())

	prof := &profile.Profile{ID: "user-1", SubscriptionTier: "trial"}
	if err := d.ProcessVideo(context.Background(), videoGeneration(), "https://store.example/v.mp4", prof); err != nil {
		t.Fatalf("ProcessVideo: %v", err)
	}

	if len(client.watermarks) != 1 {
		t.Error("trial tier should be watermarked like free")
	}
}

func TestDispatcher_ExistingThumbnailSkipsExtraction(t *testing.T) {
	tests := []struct {
		name string
		gen  *generation.Generation
	}{
		{
			name: "thumbnail column set",
			gen: func() *generation.Generation {
				g := videoGeneration()
				g.ThumbnailURL = "https://store.example/t.jpg"
				return g
			}(),
		},
		{
			name: "metadata thumbnail set",
			gen: func() *generation.Generation {
				g := videoGeneration()
				g.Metadata.ThumbnailURL = "https://store.example/t.jpg"
				return g
			}(),
		},
		{
			name: "provider thumbnail recorded",
			gen: func() *generation.Generation {
				g := videoGeneration()
				g.Metadata.OriginalThumbnailURL = "https://fal.example/t.jpg"
				return g
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockFFmpeg{}
			store := &metadataStore{}
			d := postprocess.NewDispatcher(client, store, "https://api.example/v1/webhooks/fal", true, zerolog.Nop())

			if err := d.ProcessVideo(context.Background(), tt.gen, "https://store.example/v.mp4", nil); err != nil {
				t.Fatalf("ProcessVideo: %v", err)
			}
			if len(client.thumbnails) != 0 {
				t.Error("existing thumbnail must not be re-extracted")
			}
			// Free tier still gets a watermark.
			if len(client.watermarks) != 1 {
				t.Error("watermark should still dispatch")
			}
		})
	}
}

func TestDispatcher_NonVideoIsNoOp(t *testing.T) {
	client := &mockFFmpeg{}
	store := &metadataStore{}
	d := postprocess.NewDispatcher(client, store, "https://api.example/v1/webhooks/fal", true, zerolog.Nop())

	gen := videoGeneration()
	gen.ToolType = "hidream-i1"

	if err := d.ProcessVideo(context.Background(), gen, "https://store.example/i.png", nil); err != nil {
		t.Fatalf("ProcessVideo: %v", err)
	}
	if len(client.thumbnails) != 0 || len(client.watermarks) != 0 {
		t.Error("image output must not dispatch FFmpeg tasks")
	}
	if len(store.merged) != 0 {
		t.Error("no metadata should be written for a no-op")
	}
}

func TestDispatcher_DisabledIsNoOp(t *testing.T) {
	client := &mockFFmpeg{}
	store := &metadataStore{}
	d := postprocess.NewDispatcher(client, store, "https://api.example/v1/webhooks/fal", false, zerolog.Nop())

	if err := d.ProcessVideo(context.Background(), videoGeneration(), "https://store.example/v.mp4", nil); err != nil {
		t.Fatalf("ProcessVideo: %v", err)
	}
	if len(client.thumbnails) != 0 || len(client.watermarks) != 0 {
		t.Error("disabled dispatcher must not call the client")
	}
}

func TestDispatcher_TaskFailuresAreSwallowed(t *testing.T) {
	client := &mockFFmpeg{
		thumbnailErr: fmt.Errorf("service unavailable"),
		watermarkErr: fmt.Errorf("service unavailable"),
	}
	store := &metadataStore{}
	d := postprocess.NewDispatcher(client, store, "https://api.example/v1/webhooks/fal", true, zerolog.Nop())

	if err := d.ProcessVideo(context.Background(), videoGeneration(), "https://store.example/v.mp4", nil); err != nil {
		t.Errorf("task failures must not propagate, got %v", err)
	}

	// The dispatch attempt is still recorded.
	if len(store.merged) != 1 {
		t.Fatalf("metadata merges = %d, want 1", len(store.merged))
	}
	if store.merged[0].FFmpegTasksCount == nil || *store.merged[0].FFmpegTasksCount != 2 {
		t.Error("both attempted tasks should be counted")
	}
}
