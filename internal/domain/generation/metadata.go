package generation

import (
	"encoding/json"
	"time"
)

// Metadata is the structured diagnostic bag stored alongside a
// generation. Every write goes through Merge so that concurrent
// writers (webhook reconciler, post-processing callbacks, submitters)
// never erase each other's keys.
type Metadata struct {
	// Provider correlation.
	FalRequestID     string     `json:"fal_request_id,omitempty"`
	GatewayRequestID string     `json:"gateway_request_id,omitempty"`
	Model            string     `json:"model,omitempty"`
	ToolType         string     `json:"tool_type,omitempty"`
	QueueSubmittedAt *time.Time `json:"queue_submitted_at,omitempty"`
	ProcessingStart  *time.Time `json:"processing_started,omitempty"`
	WebhookURL       string     `json:"webhook_url,omitempty"`
	WebhookEnabled   *bool      `json:"webhook_enabled,omitempty"`

	// Request echo, useful when diagnosing provider rejections.
	RequestParams map[string]any `json:"request_params,omitempty"`
	OutputFormat  string         `json:"output_format,omitempty"`
	Seed          *int64         `json:"seed,omitempty"`
	DurationSec   *int           `json:"duration_seconds,omitempty"`

	// Webhook reconciliation trail.
	WebhookReceived     *bool           `json:"webhook_received,omitempty"`
	CompletedViaWebhook *bool           `json:"completed_via_webhook,omitempty"`
	LastWebhookStatus   string          `json:"last_webhook_status,omitempty"`
	LastWebhookUpdate   *time.Time      `json:"last_webhook_update,omitempty"`
	WebhookStatus       string          `json:"webhook_status,omitempty"`
	WebhookError        json.RawMessage `json:"webhook_error,omitempty"`
	PollingAttempts     *int            `json:"polling_attempts,omitempty"`

	// Materialized media.
	OriginalFalURL       string   `json:"original_fal_url,omitempty"`
	PermanentStorageURL  string   `json:"permanent_storage_url,omitempty"`
	AllURLs              []string `json:"all_urls,omitempty"`
	ThumbnailURL         string   `json:"thumbnail_url,omitempty"`
	OriginalThumbnailURL string   `json:"original_thumbnail_url,omitempty"`
	ContentType          string   `json:"content_type,omitempty"`
	FileSize             *int64   `json:"file_size,omitempty"`
	StorageFallback      *bool    `json:"storage_fallback,omitempty"`

	// Failure classification.
	ErrorType     string         `json:"error_type,omitempty"`
	ErrorDetails  *ErrorDetails  `json:"fal_error_details,omitempty"`
	ErrorAnalysis *ErrorAnalysis `json:"error_analysis,omitempty"`

	// Post-processing dispatch and callbacks.
	MediaType           string            `json:"media_type,omitempty"`
	UserTier            string            `json:"user_tier,omitempty"`
	WatermarkRequired   *bool             `json:"watermark_required,omitempty"`
	FFmpegInitiated     *bool             `json:"ffmpeg_processing_initiated,omitempty"`
	FFmpegTasksCount    *int              `json:"ffmpeg_tasks_count,omitempty"`
	ThumbnailProcessing *ProcessingRecord `json:"thumbnail_processing,omitempty"`
	WatermarkProcessing *WatermarkRecord  `json:"watermark_processing,omitempty"`
	FFmpegProcessing    *ProcessingRecord `json:"ffmpeg_processing,omitempty"`
}

// ErrorDetails captures the provider response that failed a submission.
type ErrorDetails struct {
	StatusCode       int            `json:"status_code,omitempty"`
	StatusText       string         `json:"status_text,omitempty"`
	TechnicalMessage string         `json:"technical_message,omitempty"`
	ResponseBody     string         `json:"response_body,omitempty"`
	QueueURL         string         `json:"queue_url,omitempty"`
	RequestParams    map[string]any `json:"request_params,omitempty"`
	ErrorType        string         `json:"error_type,omitempty"`
	Timestamp        time.Time      `json:"error_timestamp,omitempty"`
}

// ErrorAnalysis captures the classification of a webhook-delivered
// failure, including the raw event for later inspection.
type ErrorAnalysis struct {
	ErrorCode        *int            `json:"error_code,omitempty"`
	ErrorType        string          `json:"error_type"`
	ContentViolation bool            `json:"content_violation"`
	ServerError      bool            `json:"server_error"`
	BadRequest       bool            `json:"bad_request"`
	RawError         string          `json:"raw_error,omitempty"`
	FullEvent        json.RawMessage `json:"full_event,omitempty"`
	AnalyzedAt       time.Time       `json:"analyzed_at"`
}

// ProcessingRecord tracks a single FFmpeg task round trip.
type ProcessingRecord struct {
	Status       string     `json:"status"`
	ProcessingID string     `json:"processing_id,omitempty"`
	ResultURL    string     `json:"result_url,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RequestedAt  *time.Time `json:"requested_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
}

// WatermarkRecord tracks the watermark round trip, keeping the
// pre-watermark URL so the original remains reachable.
type WatermarkRecord struct {
	Status         string     `json:"status"`
	ProcessingID   string     `json:"processing_id,omitempty"`
	WatermarkedURL string     `json:"watermarked_url,omitempty"`
	OriginalURL    string     `json:"original_url,omitempty"`
	Watermarked    bool       `json:"watermarked"`
	RequestedAt    *time.Time `json:"requested_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
}

// Merge folds the non-zero fields of update into m and returns the
// result. m itself is not modified. Field-level merging keeps
// concurrent writers from clobbering each other's records.
func (m Metadata) Merge(update Metadata) Metadata {
	out := m

	if update.FalRequestID != "" {
		out.FalRequestID = update.FalRequestID
	}
	if update.GatewayRequestID != "" {
		out.GatewayRequestID = update.GatewayRequestID
	}
	if update.Model != "" {
		out.Model = update.Model
	}
	if update.ToolType != "" {
		out.ToolType = update.ToolType
	}
	if update.QueueSubmittedAt != nil {
		out.QueueSubmittedAt = update.QueueSubmittedAt
	}
	if update.ProcessingStart != nil {
		out.ProcessingStart = update.ProcessingStart
	}
	if update.WebhookURL != "" {
		out.WebhookURL = update.WebhookURL
	}
	if update.WebhookEnabled != nil {
		out.WebhookEnabled = update.WebhookEnabled
	}
	if update.RequestParams != nil {
		out.RequestParams = update.RequestParams
	}
	if update.OutputFormat != "" {
		out.OutputFormat = update.OutputFormat
	}
	if update.Seed != nil {
		out.Seed = update.Seed
	}
	if update.DurationSec != nil {
		out.DurationSec = update.DurationSec
	}
	if update.WebhookReceived != nil {
		out.WebhookReceived = update.WebhookReceived
	}
	if update.CompletedViaWebhook != nil {
		out.CompletedViaWebhook = update.CompletedViaWebhook
	}
	if update.LastWebhookStatus != "" {
		out.LastWebhookStatus = update.LastWebhookStatus
	}
	if update.LastWebhookUpdate != nil {
		out.LastWebhookUpdate = update.LastWebhookUpdate
	}
	if update.WebhookStatus != "" {
		out.WebhookStatus = update.WebhookStatus
	}
	if update.WebhookError != nil {
		out.WebhookError = update.WebhookError
	}
	if update.PollingAttempts != nil {
		out.PollingAttempts = update.PollingAttempts
	}
	if update.OriginalFalURL != "" {
		out.OriginalFalURL = update.OriginalFalURL
	}
	if update.PermanentStorageURL != "" {
		out.PermanentStorageURL = update.PermanentStorageURL
	}
	if update.AllURLs != nil {
		out.AllURLs = update.AllURLs
	}
	if update.ThumbnailURL != "" {
		out.ThumbnailURL = update.ThumbnailURL
	}
	if update.OriginalThumbnailURL != "" {
		out.OriginalThumbnailURL = update.OriginalThumbnailURL
	}
	if update.ContentType != "" {
		out.ContentType = update.ContentType
	}
	if update.FileSize != nil {
		out.FileSize = update.FileSize
	}
	if update.StorageFallback != nil {
		out.StorageFallback = update.StorageFallback
	}
	if update.ErrorType != "" {
		out.ErrorType = update.ErrorType
	}
	if update.ErrorDetails != nil {
		out.ErrorDetails = update.ErrorDetails
	}
	if update.ErrorAnalysis != nil {
		out.ErrorAnalysis = update.ErrorAnalysis
	}
	if update.MediaType != "" {
		out.MediaType = update.MediaType
	}
	if update.UserTier != "" {
		out.UserTier = update.UserTier
	}
	if update.WatermarkRequired != nil {
		out.WatermarkRequired = update.WatermarkRequired
	}
	if update.FFmpegInitiated != nil {
		out.FFmpegInitiated = update.FFmpegInitiated
	}
	if update.FFmpegTasksCount != nil {
		out.FFmpegTasksCount = update.FFmpegTasksCount
	}
	if update.ThumbnailProcessing != nil {
		out.ThumbnailProcessing = update.ThumbnailProcessing
	}
	if update.WatermarkProcessing != nil {
		out.WatermarkProcessing = update.WatermarkProcessing
	}
	if update.FFmpegProcessing != nil {
		out.FFmpegProcessing = update.FFmpegProcessing
	}

	return out
}
