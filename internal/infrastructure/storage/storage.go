// Package storage provides the durable blob backends materialized
// media lands in.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"mediaforge/services/generation-api/internal/config"
)

// Backend is a durable blob store with publicly reachable objects.
type Backend interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	PublicURL(key string) string
	Health(ctx context.Context) error
}

// New selects the backend from configuration.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Backend, error) {
	switch {
	case cfg.IsLocalStorage():
		return NewLocalStorage(cfg, log)
	case cfg.IsS3Storage():
		return NewS3Storage(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
