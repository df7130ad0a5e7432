package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mediaforge/services/generation-api/internal/config"
	"mediaforge/services/generation-api/internal/domain/generation"
	"mediaforge/services/generation-api/internal/domain/submit"
	"mediaforge/services/generation-api/internal/infrastructure/auth"
	"mediaforge/services/generation-api/internal/infrastructure/metrics"
	"mediaforge/services/generation-api/internal/interfaces/httpserver/requests"
	"mediaforge/services/generation-api/internal/interfaces/httpserver/responses"
	"mediaforge/services/generation-api/internal/utils/genid"
	"mediaforge/services/generation-api/internal/utils/platformerrors"
)

// Submitter hands validated jobs to the provider.
type Submitter interface {
	Submit(ctx context.Context, req submit.Request) (*submit.Ack, error)
}

// GenerationHandler exposes generation submission and retrieval.
type GenerationHandler struct {
	cfg       *config.Config
	store     generation.Store
	submitter Submitter
	log       zerolog.Logger
}

// NewGenerationHandler builds the handler.
func NewGenerationHandler(cfg *config.Config, store generation.Store, submitter Submitter, log zerolog.Logger) *GenerationHandler {
	return &GenerationHandler{
		cfg:       cfg,
		store:     store,
		submitter: submitter,
		log:       log,
	}
}

// Create accepts a generation job. With no generation_id a pending
// record is created first; either way the job is submitted before the
// request returns. Queue tools answer with "queued"; the legacy music
// tool blocks until the provider delivers.
func (h *GenerationHandler) Create(c *gin.Context) {
	var req requests.CreateGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid request body: "+err.Error(), "2b3c4d5e-6f7a-4b8c-9d0e-1f2a3b4c5d01")
		return
	}

	userID := auth.UserID(c)
	if userID == "" {
		userID = req.UserID
	}
	if userID == "" {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "user id is required", "2b3c4d5e-6f7a-4b8c-9d0e-1f2a3b4c5d02")
		return
	}

	ctx := c.Request.Context()

	generationID := req.GenerationID
	if generationID == "" {
		generationID = genid.New()
		now := time.Now().UTC()
		record := &generation.Generation{
			ID:        generationID,
			UserID:    userID,
			ToolType:  req.Tool,
			Prompt:    req.Prompt,
			Status:    generation.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := h.store.Create(ctx, record); err != nil {
			responses.HandleError(c, err, "failed to create generation record")
			return
		}
	} else {
		// Pre-created records must exist and belong to the caller.
		existing, err := h.store.GetByID(ctx, generationID)
		if err != nil {
			responses.HandleError(c, err, "generation not found")
			return
		}
		if existing.UserID != userID {
			responses.HandleNewError(c, platformerrors.ErrorTypeForbidden, "generation belongs to another user", "2b3c4d5e-6f7a-4b8c-9d0e-1f2a3b4c5d03")
			return
		}
	}

	ack, err := h.submitter.Submit(ctx, submit.Request{
		GenerationID:        generationID,
		UserID:              userID,
		Tool:                req.Tool,
		Prompt:              req.Prompt,
		ImageURL:            req.ImageURL,
		ImageURLs:           req.ImageURLs,
		GuidanceScale:       req.GuidanceScale,
		NumImages:           req.NumImages,
		NumInferenceSteps:   req.NumInferenceSteps,
		ImageWidth:          req.ImageWidth,
		ImageHeight:         req.ImageHeight,
		Seed:                req.Seed,
		DurationSec:         req.DurationSec,
		OutputFormat:        req.OutputFormat,
		SafetyTolerance:     req.SafetyTolerance,
		AspectRatio:         req.AspectRatio,
		EnableSafetyChecker: req.EnableSafetyChecker,
	})
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(req.Tool, "failed").Inc()
		responses.HandleError(c, err, "generation submission failed")
		return
	}

	metrics.SubmissionsTotal.WithLabelValues(req.Tool, ack.Status).Inc()
	c.JSON(http.StatusOK, responses.NewSubmitResponse(ack))
}

// Get returns one generation record.
func (h *GenerationHandler) Get(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	gen, err := h.store.GetByID(ctx, id)
	if err != nil {
		responses.HandleError(c, err, "generation not found")
		return
	}

	// With auth enabled, hide other users' records behind a 404.
	if userID := auth.UserID(c); userID != "" && gen.UserID != userID {
		responses.HandleNewError(c, platformerrors.ErrorTypeNotFound, "generation not found", "2b3c4d5e-6f7a-4b8c-9d0e-1f2a3b4c5d04")
		return
	}

	c.JSON(http.StatusOK, responses.NewGenerationResponse(gen))
}
