package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/services/generation-api/internal/domain/falerrors"
	"mediaforge/services/generation-api/internal/domain/generation"
	"mediaforge/services/generation-api/internal/utils/platformerrors"
)

// Legacy polling bounds: 30 attempts at 10s covers the provider's
// five-minute ceiling for synchronous music generation.
const (
	pollMaxAttempts = 30
	pollInterval    = 10 * time.Second
)

// QueueAck is the provider's answer to a queue submission.
type QueueAck struct {
	RequestID        string `json:"request_id"`
	GatewayRequestID string `json:"gateway_request_id"`
}

// Provider is the upstream generation API.
type Provider interface {
	// SubmitQueue enqueues a job; the provider reports completion to
	// webhookURL.
	SubmitQueue(ctx context.Context, modelPath string, params map[string]any, webhookURL string) (*QueueAck, error)
	// RunSync submits a job on the synchronous endpoint.
	RunSync(ctx context.Context, modelPath string, params map[string]any) (json.RawMessage, error)
	GetStatus(ctx context.Context, modelPath, requestID string) (string, error)
	GetResult(ctx context.Context, modelPath, requestID string) (json.RawMessage, error)
}

// ProviderAPIError is a non-2xx provider response. The status code
// drives failure classification.
type ProviderAPIError struct {
	StatusCode int
	Body       string
}

func (e *ProviderAPIError) Error() string {
	return fmt.Sprintf("provider API error (%d): %s", e.StatusCode, e.Body)
}

// Ack is returned to the caller once a job is accepted or, for legacy
// synchronous tools, finished.
type Ack struct {
	GenerationID  string `json:"generation_id"`
	Status        string `json:"status"`
	FalRequestID  string `json:"fal_request_id,omitempty"`
	EstimatedTime string `json:"estimated_time,omitempty"`
	OutputURL     string `json:"output_url,omitempty"`
}

// Service submits generation jobs to the provider.
type Service struct {
	store       generation.Store
	provider    Provider
	callbackURL string
	log         zerolog.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewService builds a Service. callbackURL is handed to the provider
// as the completion webhook.
func NewService(store generation.Store, provider Provider, callbackURL string, log zerolog.Logger, opts ...func(*Service)) *Service {
	s := &Service{
		store:       store,
		provider:    provider,
		callbackURL: callbackURL,
		log:         log,
		now:         time.Now,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithServiceClock overrides the time source. Used in tests.
func WithServiceClock(now func() time.Time) func(*Service) {
	return func(s *Service) { s.now = now }
}

// WithSleeper overrides the poll delay. Used in tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) func(*Service) {
	return func(s *Service) { s.sleep = sleep }
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Submit validates the request, marks the record processing and hands
// the job to the provider. Queue tools return immediately with the
// request id; the webhook finishes the record. Legacy tools block
// until the provider delivers or the poll ceiling is hit.
func (s *Service) Submit(ctx context.Context, req Request) (*Ack, error) {
	if req.GenerationID == "" {
		return nil, validationError(ctx, "generation ID is required", "a4b5c6d7-8e9f-4a0b-9c1d-2e3f4a5b6c01")
	}

	spec, err := lookupTool(ctx, req.Tool)
	if err != nil {
		return nil, err
	}

	params, err := spec.build(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, req.GenerationID, generation.Update{
		Status: generation.Ptr(generation.StatusProcessing),
	}); err != nil {
		return nil, err
	}

	if spec.legacyPoll {
		return s.runLegacy(ctx, spec, req, params)
	}
	return s.runQueued(ctx, spec, req, params)
}

func (s *Service) runQueued(ctx context.Context, spec toolSpec, req Request, params map[string]any) (*Ack, error) {
	ack, err := s.provider.SubmitQueue(ctx, spec.modelPath, params, s.callbackURL)
	if err != nil {
		return nil, s.failSubmission(ctx, spec, req, params, err)
	}
	if ack.RequestID == "" {
		err := platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal,
			"no request_id received from provider queue", nil, "a4b5c6d7-8e9f-4a0b-9c1d-2e3f4a5b6c02")
		return nil, s.failSubmission(ctx, spec, req, params, err)
	}

	now := s.now()
	meta := generation.Metadata{
		FalRequestID:     ack.RequestID,
		GatewayRequestID: ack.GatewayRequestID,
		ProcessingStart:  &now,
		QueueSubmittedAt: &now,
		Model:            spec.modelLabel,
		ToolType:         req.Tool,
		WebhookURL:       s.callbackURL,
		WebhookEnabled:   generation.Ptr(true),
	}
	if format, ok := params["output_format"].(string); ok {
		meta.OutputFormat = format
	}
	if err := s.store.MergeMetadata(ctx, req.GenerationID, meta); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("generation_id", req.GenerationID).
		Str("tool", req.Tool).
		Str("fal_request_id", ack.RequestID).
		Msg("generation queued at provider")

	return &Ack{
		GenerationID:  req.GenerationID,
		Status:        "queued",
		FalRequestID:  ack.RequestID,
		EstimatedTime: spec.estimatedTime,
	}, nil
}

// failSubmission persists the failure with its classification before
// surfacing the error. A record left processing here would hang in the
// UI forever since no webhook will arrive.
func (s *Service) failSubmission(ctx context.Context, spec toolSpec, req Request, params map[string]any, cause error) error {
	now := s.now()
	update := generation.Update{
		Status:      generation.Ptr(generation.StatusFailed),
		CompletedAt: &now,
	}

	var apiErr *ProviderAPIError
	if errors.As(cause, &apiErr) {
		cls := falerrors.Classify(apiErr.StatusCode, apiErr.Body)
		update.ErrorMessage = generation.Ptr(cls.UserMessage)
		update.Metadata = &generation.Metadata{
			ErrorType: string(cls.Type),
			ErrorDetails: &generation.ErrorDetails{
				StatusCode:       apiErr.StatusCode,
				TechnicalMessage: cls.TechnicalMessage,
				ResponseBody:     apiErr.Body,
				RequestParams:    params,
				ErrorType:        string(cls.Type),
				Timestamp:        now,
			},
		}
		if err := s.store.Update(ctx, req.GenerationID, update); err != nil {
			s.log.Error().Err(err).Str("generation_id", req.GenerationID).Msg("persisting submission failure failed")
		}
		return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal,
			cls.UserMessage, cause, "a4b5c6d7-8e9f-4a0b-9c1d-2e3f4a5b6c03",
			map[string]any{"tool": req.Tool, "status_code": apiErr.StatusCode, "error_type": string(cls.Type)})
	}

	update.ErrorMessage = generation.Ptr("Generation failed. Please try again.")
	if err := s.store.Update(ctx, req.GenerationID, update); err != nil {
		s.log.Error().Err(err).Str("generation_id", req.GenerationID).Msg("persisting submission failure failed")
	}
	return platformerrors.AsError(ctx, platformerrors.LayerDomain, cause, "provider submission failed")
}

func (s *Service) runLegacy(ctx context.Context, spec toolSpec, req Request, params map[string]any) (*Ack, error) {
	result, err := s.provider.RunSync(ctx, spec.modelPath, params)
	if err != nil {
		return nil, s.failSubmission(ctx, spec, req, params, err)
	}

	var submitResult struct {
		RequestID string          `json:"request_id"`
		AudioFile json.RawMessage `json:"audio_file"`
	}
	if err := json.Unmarshal(result, &submitResult); err != nil {
		return nil, s.failSubmission(ctx, spec, req, params, fmt.Errorf("decode provider response: %w", err))
	}

	finalResult := result
	attempts := 0

	if submitResult.RequestID != "" && len(submitResult.AudioFile) == 0 {
		now := s.now()
		if err := s.store.MergeMetadata(ctx, req.GenerationID, generation.Metadata{
			FalRequestID:    submitResult.RequestID,
			ProcessingStart: &now,
		}); err != nil {
			return nil, err
		}

		finalResult, attempts, err = s.poll(ctx, spec, submitResult.RequestID)
		if err != nil {
			return nil, s.failSubmission(ctx, spec, req, params, err)
		}
	}

	audioURL := extractAudioURL(finalResult)
	if audioURL == "" {
		return nil, s.failSubmission(ctx, spec, req, params,
			fmt.Errorf("no audio URL in provider response"))
	}

	now := s.now()
	meta := generation.Metadata{
		FalRequestID:    submitResult.RequestID,
		Model:           spec.modelLabel,
		ToolType:        req.Tool,
		PollingAttempts: generation.Ptr(attempts),
	}
	if duration, ok := params["duration"].(int); ok {
		meta.DurationSec = generation.Ptr(duration)
	}
	if err := s.store.Update(ctx, req.GenerationID, generation.Update{
		Status:        generation.Ptr(generation.StatusCompleted),
		OutputFileURL: &audioURL,
		CompletedAt:   &now,
		Metadata:      &meta,
	}); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("generation_id", req.GenerationID).
		Int("polling_attempts", attempts).
		Msg("legacy generation completed")

	return &Ack{
		GenerationID: req.GenerationID,
		Status:       "completed",
		FalRequestID: submitResult.RequestID,
		OutputURL:    audioURL,
	}, nil
}

func (s *Service) poll(ctx context.Context, spec toolSpec, requestID string) (json.RawMessage, int, error) {
	for attempt := 1; attempt <= pollMaxAttempts; attempt++ {
		if err := s.sleep(ctx, pollInterval); err != nil {
			return nil, attempt, err
		}

		status, err := s.provider.GetStatus(ctx, spec.modelPath, requestID)
		if err != nil {
			s.log.Warn().Err(err).Int("attempt", attempt).Str("request_id", requestID).Msg("status poll failed")
			continue
		}

		switch status {
		case "COMPLETED":
			result, err := s.provider.GetResult(ctx, spec.modelPath, requestID)
			if err != nil {
				s.log.Warn().Err(err).Int("attempt", attempt).Msg("result fetch failed")
				continue
			}
			return result, attempt, nil
		case "FAILED":
			return nil, attempt, fmt.Errorf("provider reported generation failed")
		}
	}
	return nil, pollMaxAttempts, fmt.Errorf("generation timed out after 5 minutes")
}

// extractAudioURL handles the response shapes the synchronous music
// endpoint has been seen to return.
func extractAudioURL(raw json.RawMessage) string {
	var result struct {
		Audio     json.RawMessage `json:"audio"`
		AudioFile json.RawMessage `json:"audio_file"`
		URL       string          `json:"url"`
		Output    struct {
			URL string `json:"url"`
		} `json:"output"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return ""
	}

	if url := urlFromRef(result.Audio); url != "" {
		return url
	}
	if url := urlFromRef(result.AudioFile); url != "" {
		return url
	}
	if result.URL != "" {
		return result.URL
	}
	return result.Output.URL
}

// urlFromRef decodes either {"url": "..."} or a bare string URL.
func urlFromRef(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.URL
	}
	return ""
}
