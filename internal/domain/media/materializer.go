// Package media copies ephemeral provider URLs into durable storage.
// Provider-hosted outputs expire, so everything a user should keep is
// re-uploaded under a stable key before the generation completes.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"mediaforge/services/generation-api/internal/domain/mediakind"
	"mediaforge/services/generation-api/internal/infrastructure/metrics"
)

// Storage is the durable blob store media lands in.
type Storage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PublicURL(key string) string
}

// Request describes one ephemeral URL to materialize.
type Request struct {
	URL        string
	UserID     string
	ToolFolder string
	// Kind and the hints below drive extension and content type choice.
	Kind         mediakind.Kind
	ContentType  string
	OutputFormat string
	// Index is set for multi-image batches and lands in the file name.
	Index *int
	// Thumbnail marks the upload as a thumbnail; thumbnails are always
	// stored as JPEG.
	Thumbnail bool
}

// Result reports where the media ended up. Stored is false when the
// download or upload failed and URL falls back to the ephemeral source.
type Result struct {
	URL         string
	Stored      bool
	ContentType string
	Size        int64
}

// Materializer downloads provider outputs and uploads them to Storage.
// It never fails the caller: any error falls back to the source URL so
// a storage outage degrades durability, not generation delivery.
type Materializer struct {
	storage  Storage
	client   *http.Client
	maxBytes int64
	log      zerolog.Logger
	now      func() time.Time
}

// NewMaterializer builds a Materializer.
func NewMaterializer(storage Storage, client *http.Client, maxBytes int64, log zerolog.Logger, opts ...func(*Materializer)) *Materializer {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	m := &Materializer{
		storage:  storage,
		client:   client,
		maxBytes: maxBytes,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithMaterializerClock overrides the time source. Used in tests.
func WithMaterializerClock(now func() time.Time) func(*Materializer) {
	return func(m *Materializer) { m.now = now }
}

// Materialize stores one media object and returns its durable URL, or
// the original URL when storage fails.
func (m *Materializer) Materialize(ctx context.Context, req Request) Result {
	ext, contentType := m.fileType(req)
	key := m.objectKey(req, ext)

	data, err := m.download(ctx, req.URL)
	if err != nil {
		m.log.Warn().Err(err).Str("url", req.URL).Msg("media download failed, keeping ephemeral URL")
		metrics.MediaMaterializationsTotal.WithLabelValues("download_failed").Inc()
		return Result{URL: req.URL, Stored: false}
	}

	if err := m.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("media upload failed, keeping ephemeral URL")
		metrics.MediaMaterializationsTotal.WithLabelValues("upload_failed").Inc()
		return Result{URL: req.URL, Stored: false}
	}

	metrics.MediaMaterializationsTotal.WithLabelValues("stored").Inc()
	return Result{
		URL:         m.storage.PublicURL(key),
		Stored:      true,
		ContentType: contentType,
		Size:        int64(len(data)),
	}
}

// objectKey builds {userId}/{toolFolder}/{timestamp}[_{index}][_thumbnail].{ext}.
func (m *Materializer) objectKey(req Request, ext string) string {
	toolFolder := req.ToolFolder
	if toolFolder == "" {
		toolFolder = "fal-generation"
	}
	name := fmt.Sprintf("%s/%s/%d", req.UserID, toolFolder, m.now().UnixMilli())
	if req.Index != nil {
		name = fmt.Sprintf("%s_%d", name, *req.Index)
	}
	if req.Thumbnail {
		name += "_thumbnail"
	}
	return name + "." + ext
}

// fileType resolves extension and content type. Payload hints win over
// media-kind heuristics; unknown kinds default to video, which matches
// how untagged provider outputs behave.
func (m *Materializer) fileType(req Request) (ext, contentType string) {
	if req.Thumbnail {
		return "jpg", "image/jpeg"
	}

	if req.ContentType != "" {
		if mt := mimetype.Lookup(req.ContentType); mt != nil {
			return trimDot(mt.Extension()), req.ContentType
		}
	}

	switch req.Kind {
	case mediakind.KindImage:
		if req.OutputFormat == "jpeg" {
			return "jpg", "image/jpeg"
		}
		return "png", "image/png"
	case mediakind.KindAudio:
		return "mp3", "audio/mpeg"
	default:
		return "mp4", "video/mp4"
	}
}

func (m *Materializer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > m.maxBytes {
		return nil, fmt.Errorf("media exceeds size limit of %d bytes", m.maxBytes)
	}
	return data, nil
}

func trimDot(ext string) string {
	if len(ext) > 0 && ext[0] == '.' {
		return ext[1:]
	}
	return ext
}
