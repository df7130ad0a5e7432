// Package falclient talks to the provider's queue and synchronous
// generation endpoints.
package falclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"mediaforge/services/generation-api/internal/config"
	"mediaforge/services/generation-api/internal/domain/submit"
)

// Client implements submit.Provider against the FAL HTTP API.
type Client struct {
	http         *resty.Client
	queueBaseURL string
	syncBaseURL  string
	log          zerolog.Logger
}

// New builds a Client from configuration.
func New(cfg *config.Config, log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(cfg.FalRequestTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Key "+cfg.FalAPIKey)

	return &Client{
		http:         httpClient,
		queueBaseURL: cfg.FalQueueBaseURL,
		syncBaseURL:  cfg.FalSyncBaseURL,
		log:          log,
	}
}

// SubmitQueue enqueues a generation job. The webhook URL rides along
// as the fal_webhook query parameter.
func (c *Client) SubmitQueue(ctx context.Context, modelPath string, params map[string]any, webhookURL string) (*submit.QueueAck, error) {
	queueURL := fmt.Sprintf("%s/%s?fal_webhook=%s", c.queueBaseURL, modelPath, url.QueryEscape(webhookURL))

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(params).
		Post(queueURL)
	if err != nil {
		return nil, fmt.Errorf("submit to provider queue: %w", err)
	}

	c.log.Debug().
		Str("model_path", modelPath).
		Int("status", resp.StatusCode()).
		Msg("provider queue submission")

	if resp.StatusCode() >= 400 {
		return nil, &submit.ProviderAPIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var ack submit.QueueAck
	if err := json.Unmarshal(resp.Bytes(), &ack); err != nil {
		return nil, fmt.Errorf("decode provider queue response: %w", err)
	}
	return &ack, nil
}

// RunSync submits a job on the synchronous endpoint and returns the
// raw response body.
func (c *Client) RunSync(ctx context.Context, modelPath string, params map[string]any) (json.RawMessage, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(params).
		Post(c.syncBaseURL + "/" + modelPath)
	if err != nil {
		return nil, fmt.Errorf("call provider sync endpoint: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return nil, &submit.ProviderAPIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return json.RawMessage(resp.Bytes()), nil
}

// GetStatus reads the queue status of a synchronous-endpoint request.
func (c *Client) GetStatus(ctx context.Context, modelPath, requestID string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/%s/requests/%s/status", c.syncBaseURL, modelPath, requestID))
	if err != nil {
		return "", fmt.Errorf("poll provider status: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return "", &submit.ProviderAPIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Bytes(), &status); err != nil {
		return "", fmt.Errorf("decode provider status response: %w", err)
	}
	return status.Status, nil
}

// GetResult fetches the final result of a completed request.
func (c *Client) GetResult(ctx context.Context, modelPath, requestID string) (json.RawMessage, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/%s/requests/%s", c.syncBaseURL, modelPath, requestID))
	if err != nil {
		return nil, fmt.Errorf("fetch provider result: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return nil, &submit.ProviderAPIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return json.RawMessage(resp.Bytes()), nil
}
