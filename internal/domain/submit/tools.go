package submit

import (
	"context"
	"fmt"
	"strings"

	"mediaforge/services/generation-api/internal/utils/platformerrors"
)

// Request is a tool-agnostic submission. Tools validate and clamp the
// fields they care about and ignore the rest.
type Request struct {
	GenerationID string
	UserID       string
	Tool         string
	Prompt       string

	ImageURL  string
	ImageURLs []string

	GuidanceScale       *float64
	NumImages           *int
	NumInferenceSteps   *int
	ImageWidth          *int
	ImageHeight         *int
	Seed                *int64
	DurationSec         *int
	OutputFormat        string
	SafetyTolerance     string
	AspectRatio         string
	EnableSafetyChecker *bool
}

// toolSpec describes one provider model this service can drive.
type toolSpec struct {
	// modelPath is the provider queue path, e.g. fal-ai/wan-pro/image-to-video.
	modelPath     string
	modelLabel    string
	estimatedTime string
	// legacyPoll submits synchronously and polls instead of using the
	// queue + webhook flow.
	legacyPoll bool
	build      func(ctx context.Context, req Request) (map[string]any, error)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func validationError(ctx context.Context, msg, uuid string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, msg, nil, uuid)
}

// tools is the registry of supported generation models.
var tools = map[string]toolSpec{
	"wan-pro": {
		modelPath:     "fal-ai/wan-pro/image-to-video",
		modelLabel:    "wan-pro",
		estimatedTime: "3-7 minutes",
		build: func(ctx context.Context, req Request) (map[string]any, error) {
			if req.ImageURL == "" {
				return nil, validationError(ctx, "image URL is required", "e3b1c2d4-5f6a-4b7c-8d9e-0a1b2c3d4e01")
			}
			if strings.TrimSpace(req.Prompt) == "" {
				return nil, validationError(ctx, "prompt is required", "e3b1c2d4-5f6a-4b7c-8d9e-0a1b2c3d4e02")
			}
			params := map[string]any{
				"image_url":             req.ImageURL,
				"prompt":                strings.TrimSpace(req.Prompt),
				"enable_safety_checker": req.EnableSafetyChecker == nil || *req.EnableSafetyChecker,
			}
			if req.Seed != nil && *req.Seed > 0 {
				params["seed"] = *req.Seed
			}
			return params, nil
		},
	},

	"flux-kontext-max-multi": {
		modelPath:     "fal-ai/flux-pro/kontext/max/multi",
		modelLabel:    "flux-kontext-max-multi",
		estimatedTime: "1-3 minutes",
		build: func(ctx context.Context, req Request) (map[string]any, error) {
			if strings.TrimSpace(req.Prompt) == "" {
				return nil, validationError(ctx, "prompt is required", "e3b1c2d4-5f6a-4b7c-8d9e-0a1b2c3d4e03")
			}
			if len(req.ImageURLs) == 0 {
				return nil, validationError(ctx, "at least one image URL is required", "e3b1c2d4-5f6a-4b7c-8d9e-0a1b2c3d4e04")
			}
			guidance := 3.5
			if req.GuidanceScale != nil {
				guidance = *req.GuidanceScale
			}
			numImages := 1
			if req.NumImages != nil {
				numImages = *req.NumImages
			}
			outputFormat := req.OutputFormat
			if outputFormat == "" {
				outputFormat = "jpeg"
			}
			safetyTolerance := req.SafetyTolerance
			if safetyTolerance == "" {
				safetyTolerance = "2"
			}
			params := map[string]any{
				"prompt":           strings.TrimSpace(req.Prompt),
				"image_urls":       req.ImageURLs,
				"guidance_scale":   clampFloat(guidance, 1.0, 20.0),
				"num_images":       clampInt(numImages, 1, 6),
				"output_format":    outputFormat,
				"safety_tolerance": safetyTolerance,
			}
			if req.AspectRatio != "" {
				params["aspect_ratio"] = req.AspectRatio
			}
			if req.Seed != nil && *req.Seed > 0 {
				params["seed"] = *req.Seed
			}
			return params, nil
		},
	},

	"hidream-i1": {
		modelPath:     "fal-ai/hidream-i1-dev",
		modelLabel:    "hidream-i1",
		estimatedTime: "30-60 seconds",
		build: func(ctx context.Context, req Request) (map[string]any, error) {
			if strings.TrimSpace(req.Prompt) == "" {
				return nil, validationError(ctx, "prompt is required", "e3b1c2d4-5f6a-4b7c-8d9e-0a1b2c3d4e05")
			}
			width, height := 1024, 1024
			if req.ImageWidth != nil {
				width = *req.ImageWidth
			}
			if req.ImageHeight != nil {
				height = *req.ImageHeight
			}
			steps := 28
			if req.NumInferenceSteps != nil {
				steps = *req.NumInferenceSteps
			}
			numImages := 1
			if req.NumImages != nil {
				numImages = *req.NumImages
			}
			outputFormat := req.OutputFormat
			if outputFormat == "" {
				outputFormat = "jpeg"
			}
			params := map[string]any{
				"prompt":                strings.TrimSpace(req.Prompt),
				"image_size":            map[string]any{"width": width, "height": height},
				"num_inference_steps":   clampInt(steps, 10, 50),
				"num_images":            clampInt(numImages, 1, 4),
				"enable_safety_checker": req.EnableSafetyChecker == nil || *req.EnableSafetyChecker,
				"output_format":         outputFormat,
			}
			if req.Seed != nil && *req.Seed > 0 {
				params["seed"] = *req.Seed
			}
			return params, nil
		},
	},

	"cassetteai-music": {
		modelPath:     "CassetteAI/music-generator",
		modelLabel:    "CassetteAI-music-generator",
		estimatedTime: "up to 5 minutes",
		legacyPoll:    true,
		build: func(ctx context.Context, req Request) (map[string]any, error) {
			if strings.TrimSpace(req.Prompt) == "" {
				return nil, validationError(ctx, "prompt is required", "e3b1c2d4-5f6a-4b7c-8d9e-0a1b2c3d4e06")
			}
			duration := 30
			if req.DurationSec != nil {
				duration = *req.DurationSec
			}
			return map[string]any{
				"prompt":   strings.TrimSpace(req.Prompt),
				"duration": clampInt(duration, 10, 180),
			}, nil
		},
	},
}

// SupportedTools lists the registered tool names.
func SupportedTools() []string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	return names
}

// lookupTool resolves a tool name, failing with a validation error
// naming the supported set.
func lookupTool(ctx context.Context, name string) (toolSpec, error) {
	spec, ok := tools[name]
	if !ok {
		return toolSpec{}, validationError(ctx,
			fmt.Sprintf("unsupported tool %q (supported: %s)", name, strings.Join(SupportedTools(), ", ")),
			"e3b1c2d4-5f6a-4b7c-8d9e-0a1b2c3d4e07")
	}
	return spec, nil
}
