// Package webhook verifies, deduplicates and reconciles provider
// completion callbacks against the generation store.
package webhook

import "encoding/json"

// Provider statuses that terminate a generation.
var (
	successStatuses = map[string]bool{"OK": true, "COMPLETED": true, "SUCCESS": true}
	failureStatuses = map[string]bool{"FAILED": true, "ERROR": true, "CANCELLED": true}
)

// Envelope is the outer shape of a provider webhook event. The payload
// varies per model family and is decoded lazily by ExtractOutput.
type Envelope struct {
	RequestID        string          `json:"request_id"`
	GatewayRequestID string          `json:"gateway_request_id"`
	Status           string          `json:"status"`
	Payload          json.RawMessage `json:"payload"`
	Error            json.RawMessage `json:"error"`

	// Raw retains the full event body for failure analysis.
	Raw json.RawMessage `json:"-"`
}

// ParseEnvelope decodes the webhook body, keeping the raw bytes.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	env.Raw = json.RawMessage(body)
	return &env, nil
}

// CorrelationID returns the id linking this event to a generation.
// Some model families report it under gateway_request_id.
func (e *Envelope) CorrelationID() string {
	if e.RequestID != "" {
		return e.RequestID
	}
	return e.GatewayRequestID
}

// IsSuccess reports whether the event signals a completed generation.
func (e *Envelope) IsSuccess() bool {
	return successStatuses[e.Status]
}

// IsFailure reports whether the event signals a failed generation.
func (e *Envelope) IsFailure() bool {
	return failureStatuses[e.Status]
}
