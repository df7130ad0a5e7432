package requests

// CreateGenerationRequest submits a new generation job. GenerationID
// is optional: clients that pre-created a record pass it, otherwise
// the service mints one.
type CreateGenerationRequest struct {
	GenerationID string `json:"generation_id"`
	Tool         string `json:"tool" binding:"required"`
	Prompt       string `json:"prompt"`
	// UserID is only honored when auth is disabled; with auth enabled
	// the token subject wins.
	UserID string `json:"user_id"`

	ImageURL  string   `json:"image_url"`
	ImageURLs []string `json:"image_urls"`

	GuidanceScale       *float64 `json:"guidance_scale"`
	NumImages           *int     `json:"num_images"`
	NumInferenceSteps   *int     `json:"num_inference_steps"`
	ImageWidth          *int     `json:"image_width"`
	ImageHeight         *int     `json:"image_height"`
	Seed                *int64   `json:"seed"`
	DurationSec         *int     `json:"duration"`
	OutputFormat        string   `json:"output_format"`
	SafetyTolerance     string   `json:"safety_tolerance"`
	AspectRatio         string   `json:"aspect_ratio"`
	EnableSafetyChecker *bool    `json:"enable_safety_checker"`
}
