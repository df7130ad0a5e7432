// Package ffmpegclient calls the FFmpeg collaborator service that
// extracts thumbnails and applies watermarks.
package ffmpegclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"mediaforge/services/generation-api/internal/config"
	"mediaforge/services/generation-api/internal/domain/postprocess"
	"mediaforge/services/generation-api/internal/infrastructure/metrics"
)

const (
	extractThumbnailPath = "/api/v1/extract-thumbnail"
	addWatermarkPath     = "/api/v1/add-watermark"
)

// Client implements postprocess.FFmpegClient over HTTP.
type Client struct {
	http    *resty.Client
	baseURL string
	// edgeEndpoints strips the /api/v1 prefix for deployments that
	// expose the service behind edge functions.
	edgeEndpoints bool
	log           zerolog.Logger
}

// New builds a Client from configuration.
func New(cfg *config.Config, log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(cfg.FFmpegRequestTimeout).
		SetHeader("Content-Type", "application/json")
	if cfg.FFmpegServiceToken != "" {
		httpClient.SetHeader("Authorization", "Bearer "+cfg.FFmpegServiceToken)
	}

	return &Client{
		http:          httpClient,
		baseURL:       cfg.FFmpegServiceURL,
		edgeEndpoints: cfg.UseEdgeEndpoints,
		log:           log,
	}
}

// ExtractThumbnail asks for a frame grab from the video.
func (c *Client) ExtractThumbnail(ctx context.Context, req postprocess.ThumbnailRequest) error {
	if err := c.post(ctx, extractThumbnailPath, req); err != nil {
		return err
	}
	metrics.PostprocessDispatchesTotal.WithLabelValues("thumbnail").Inc()
	return nil
}

// AddWatermark asks for a watermarked copy of the video.
func (c *Client) AddWatermark(ctx context.Context, req postprocess.WatermarkRequest) error {
	if err := c.post(ctx, addWatermarkPath, req); err != nil {
		return err
	}
	metrics.PostprocessDispatchesTotal.WithLabelValues("watermark").Inc()
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, body any) error {
	if c.edgeEndpoints {
		endpoint = strings.Replace(endpoint, "/api/v1/", "/", 1)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.baseURL + endpoint)
	if err != nil {
		return fmt.Errorf("call ffmpeg service %s: %w", endpoint, err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("ffmpeg service %s returned %d: %s", endpoint, resp.StatusCode(), resp.String())
	}

	c.log.Debug().Str("endpoint", endpoint).Int("status", resp.StatusCode()).Msg("ffmpeg task submitted")
	return nil
}
