package responses

import (
	"time"

	"mediaforge/services/generation-api/internal/domain/generation"
	"mediaforge/services/generation-api/internal/domain/submit"
)

// GenerationResponse is the public view of a generation record.
type GenerationResponse struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	ToolType      string     `json:"tool_type"`
	Model         string     `json:"model,omitempty"`
	Prompt        string     `json:"prompt,omitempty"`
	Status        string     `json:"status"`
	OutputFileURL string     `json:"output_file_url,omitempty"`
	OutputURLs    []string   `json:"output_urls,omitempty"`
	ThumbnailURL  string     `json:"thumbnail_url,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	ErrorType     string     `json:"error_type,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewGenerationResponse maps a domain record to the public view.
func NewGenerationResponse(gen *generation.Generation) GenerationResponse {
	return GenerationResponse{
		ID:            gen.ID,
		UserID:        gen.UserID,
		ToolType:      gen.ToolType,
		Model:         gen.Model,
		Prompt:        gen.Prompt,
		Status:        string(gen.Status),
		OutputFileURL: gen.OutputFileURL,
		OutputURLs:    gen.OutputURLs(),
		ThumbnailURL:  gen.ThumbnailURL,
		ErrorMessage:  gen.ErrorMessage,
		ErrorType:     gen.Metadata.ErrorType,
		CompletedAt:   gen.CompletedAt,
		CreatedAt:     gen.CreatedAt,
		UpdatedAt:     gen.UpdatedAt,
	}
}

// SubmitResponse acknowledges an accepted generation job.
type SubmitResponse struct {
	Success       bool   `json:"success"`
	GenerationID  string `json:"generation_id"`
	Status        string `json:"status"`
	FalRequestID  string `json:"fal_request_id,omitempty"`
	EstimatedTime string `json:"estimated_time,omitempty"`
	OutputURL     string `json:"output_url,omitempty"`
	Message       string `json:"message,omitempty"`
}

// NewSubmitResponse maps a submission ack.
func NewSubmitResponse(ack *submit.Ack) SubmitResponse {
	return SubmitResponse{
		Success:       true,
		GenerationID:  ack.GenerationID,
		Status:        ack.Status,
		FalRequestID:  ack.FalRequestID,
		EstimatedTime: ack.EstimatedTime,
		OutputURL:     ack.OutputURL,
	}
}

// WebhookAck acknowledges a processed webhook delivery.
type WebhookAck struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	GenerationID string `json:"generation_id,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorCode    int    `json:"error_code,omitempty"`
}
