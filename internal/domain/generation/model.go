package generation

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Status is the lifecycle state of a generation record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Generation is a single AI generation job and its outcome.
type Generation struct {
	ID            string
	UserID        string
	ToolType      string
	Model         string
	Prompt        string
	Status        Status
	OutputFileURL string
	ThumbnailURL  string
	ErrorMessage  string
	Metadata      Metadata
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OutputURLs decodes OutputFileURL. Multi-output generations store a
// JSON array of URLs; single outputs store the bare URL.
func (g *Generation) OutputURLs() []string {
	raw := strings.TrimSpace(g.OutputFileURL)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var urls []string
		if err := json.Unmarshal([]byte(raw), &urls); err == nil {
			return urls
		}
	}
	return []string{raw}
}

// EncodeOutputURLs is the inverse of OutputURLs.
func EncodeOutputURLs(urls []string) string {
	switch len(urls) {
	case 0:
		return ""
	case 1:
		return urls[0]
	default:
		encoded, err := json.Marshal(urls)
		if err != nil {
			return urls[0]
		}
		return string(encoded)
	}
}

// Update is a partial mutation of a generation record. Nil fields are
// left untouched; Metadata is merged, never replaced.
type Update struct {
	Status        *Status
	OutputFileURL *string
	ThumbnailURL  *string
	ErrorMessage  *string
	CompletedAt   *time.Time
	Metadata      *Metadata
}

// Store persists generation records.
type Store interface {
	Create(ctx context.Context, gen *Generation) error
	GetByID(ctx context.Context, id string) (*Generation, error)
	// FindByRequestID looks up a record by provider request id regardless
	// of status. Returns nil when no record matches.
	FindByRequestID(ctx context.Context, requestID string) (*Generation, error)
	// FindProcessingByRequestID looks up the record a webhook may still
	// reconcile. Returns nil when no processing record matches.
	FindProcessingByRequestID(ctx context.Context, requestID string) (*Generation, error)
	// UpdateIfProcessing applies the update only while the record is
	// still processing. The bool result reports whether a row changed;
	// false means another caller already moved the record to a terminal
	// state.
	UpdateIfProcessing(ctx context.Context, id string, update Update) (bool, error)
	// Update applies the update unconditionally. Used by the submit path
	// (pending -> processing) and by post-processing callbacks that
	// arrive after completion.
	Update(ctx context.Context, id string, update Update) error
	// MergeMetadata folds the non-zero fields of meta into the stored
	// metadata without touching any other column.
	MergeMetadata(ctx context.Context, id string, meta Metadata) error
}

// Ptr returns a pointer to v. Convenience for building Updates.
func Ptr[T any](v T) *T {
	return &v
}
