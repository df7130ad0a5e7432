// Package falerrors classifies provider failures into stable error
// types. Submission failures are classified by HTTP status code;
// webhook-delivered failures carry their codes and messages inside the
// event body and get a separate walk.
package falerrors

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Type is the stable failure category stored on a generation.
type Type string

const (
	TypeContentViolation Type = "content_violation"
	TypeBadRequest       Type = "bad_request"
	TypeServerError      Type = "server_error"
	TypeQuotaError       Type = "quota_error"
	TypeRateLimit        Type = "rate_limit"
	TypeAPIError         Type = "api_error"
	TypeUnknown          Type = "unknown_error"
)

// Classification is the result of classifying a provider failure.
type Classification struct {
	Type             Type
	UserMessage      string
	TechnicalMessage string
	StatusCode       int
	ContentViolation bool
	ServerError      bool
	BadRequest       bool
}

// Keywords that promote a free-text error to a content violation.
var violationKeywords = []string{
	"policy", "violation", "inappropriate", "nsfw", "content",
	"unsafe", "prohibited", "not allowed", "rejected",
}

// Classify categorizes a failed submission response by status code.
// The body is parsed for a technical message but never shown to users.
func Classify(statusCode int, body string) Classification {
	c := Classification{
		Type:             TypeAPIError,
		UserMessage:      "Generation failed. Please try again.",
		TechnicalMessage: fmt.Sprintf("provider API error (%d)", statusCode),
		StatusCode:       statusCode,
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		if msg := messageFrom(parsed); msg != "" {
			c.TechnicalMessage = msg
		}
	} else if body != "" {
		c.TechnicalMessage = fmt.Sprintf("%s: %s", c.TechnicalMessage, truncate(body, 200))
	}

	switch statusCode {
	case 422:
		c.Type = TypeContentViolation
		c.ContentViolation = true
		c.UserMessage = "Content policy violation: Your input was flagged by the safety system. Please use family-friendly content."
	case 400:
		c.Type = TypeBadRequest
		c.BadRequest = true
		c.UserMessage = "Invalid request: Please check your input and try again."
	case 500, 503:
		c.Type = TypeServerError
		c.ServerError = true
		c.UserMessage = "The AI service is temporarily unavailable. Please try again in a few minutes."
	case 402, 403:
		c.Type = TypeQuotaError
		c.UserMessage = "Service quota exceeded. Please try again later."
	case 429:
		c.Type = TypeRateLimit
		c.UserMessage = "Too many requests. Please wait a moment before trying again."
	default:
		if containsViolationKeyword(c.TechnicalMessage) {
			c.Type = TypeContentViolation
			c.ContentViolation = true
			c.UserMessage = "Content policy violation detected. Please modify your input."
		}
	}

	return c
}

// ClassifyWebhookEvent categorizes a failure event delivered over the
// webhook. Error details may live under event.error, payload.error,
// response.error or data.error; the first populated source wins.
func ClassifyWebhookEvent(raw json.RawMessage) Classification {
	c := Classification{
		Type:             TypeUnknown,
		UserMessage:      "Generation failed",
		TechnicalMessage: "Generation failed",
	}

	var event map[string]any
	if err := json.Unmarshal(raw, &event); err != nil {
		return c
	}

	sources := []any{
		event["error"],
		nested(event, "payload", "error"),
		nested(event, "response", "error"),
		nested(event, "data", "error"),
	}

	var code int
	for _, source := range sources {
		if source == nil {
			continue
		}
		switch src := source.(type) {
		case string:
			c.TechnicalMessage = src
		case map[string]any:
			if msg := messageFrom(src); msg != "" {
				c.TechnicalMessage = msg
			}
			code = codeFrom(src, "status_code", "code", "status")
		}
		break
	}

	if code == 0 {
		code = codeFrom(event, "status_code", "http_status")
	}
	c.StatusCode = code

	switch code {
	case 422:
		c.ContentViolation = true
		if c.TechnicalMessage == "Generation failed" {
			c.TechnicalMessage = "Content policy violation: The input contains inappropriate content"
		}
	case 500:
		c.ServerError = true
		if c.TechnicalMessage == "Generation failed" {
			c.TechnicalMessage = "Server error: provider service temporarily unavailable"
		}
	case 400:
		c.BadRequest = true
		if c.TechnicalMessage == "Generation failed" {
			c.TechnicalMessage = "Invalid request: Please check your input parameters"
		}
	}

	if !c.ContentViolation && containsViolationKeyword(c.TechnicalMessage) {
		c.ContentViolation = true
	}

	switch {
	case c.ContentViolation:
		c.Type = TypeContentViolation
	case c.ServerError:
		c.Type = TypeServerError
	case c.BadRequest:
		c.Type = TypeBadRequest
	}
	c.UserMessage = c.TechnicalMessage

	return c
}

// WebhookUserMessage is the user-facing message stored on a generation
// failed via webhook. Specific categories get a canned message; other
// failures surface the provider's own text.
func (c Classification) WebhookUserMessage() string {
	switch {
	case c.ContentViolation:
		return "Content Policy Violation: Your input was flagged by our content safety system. Please ensure your prompts and images comply with our content policy."
	case c.ServerError:
		return "Server Error: The AI service is temporarily experiencing issues. Please try again in a few minutes."
	case c.BadRequest:
		return "Invalid Request: There was an issue with your input. Please check your image and prompt, then try again."
	default:
		return c.TechnicalMessage
	}
}

func containsViolationKeyword(message string) bool {
	lower := strings.ToLower(message)
	for _, keyword := range violationKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func messageFrom(source map[string]any) string {
	if msg, ok := source["message"].(string); ok && msg != "" {
		return msg
	}
	switch detail := source["detail"].(type) {
	case string:
		if detail != "" {
			return detail
		}
	case nil:
	default:
		if encoded, err := json.Marshal(detail); err == nil {
			return string(encoded)
		}
	}
	if msg, ok := source["error"].(string); ok && msg != "" {
		return msg
	}
	return ""
}

func codeFrom(source map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := source[key].(type) {
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return 0
}

func nested(event map[string]any, outer, inner string) any {
	if m, ok := event[outer].(map[string]any); ok {
		return m[inner]
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
