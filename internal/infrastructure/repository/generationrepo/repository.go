// Package generationrepo is the GORM-backed generation store.
package generationrepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"mediaforge/services/generation-api/internal/domain/generation"
	"mediaforge/services/generation-api/internal/infrastructure/database/entities"
	"mediaforge/services/generation-api/internal/utils/platformerrors"
)

// Repository implements generation.Store on PostgreSQL.
type Repository struct {
	db *gorm.DB
}

// New builds a Repository.
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ generation.Store = (*Repository)(nil)

// Create inserts a new generation record.
func (r *Repository) Create(ctx context.Context, gen *generation.Generation) error {
	entity, err := toEntity(gen)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"encode generation metadata", err, "f0a1b2c3-d4e5-4f6a-8b9c-0d1e2f3a4b01")
	}
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"create generation record", err, "f0a1b2c3-d4e5-4f6a-8b9c-0d1e2f3a4b02")
	}
	return nil
}

// GetByID fetches one record, failing with NotFound when absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*generation.Generation, error) {
	var entity entities.AIGeneration
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			"generation not found", err, "f0a1b2c3-d4e5-4f6a-8b9c-0d1e2f3a4b03",
			map[string]any{"generation_id": id})
	}
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"fetch generation record", err, "f0a1b2c3-d4e5-4f6a-8b9c-0d1e2f3a4b04")
	}
	return toDomain(&entity)
}

// FindByRequestID looks up a record by provider request id, any status.
func (r *Repository) FindByRequestID(ctx context.Context, requestID string) (*generation.Generation, error) {
	return r.findByRequestID(ctx, requestID, "")
}

// FindProcessingByRequestID looks up a record a webhook may still
// reconcile.
func (r *Repository) FindProcessingByRequestID(ctx context.Context, requestID string) (*generation.Generation, error) {
	return r.findByRequestID(ctx, requestID, generation.StatusProcessing)
}

func (r *Repository) findByRequestID(ctx context.Context, requestID string, status generation.Status) (*generation.Generation, error) {
	query := r.db.WithContext(ctx).Where("metadata->>'fal_request_id' = ?", requestID)
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	var entity entities.AIGeneration
	err := query.First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"lookup generation by request id", err, "f0a1b2c3-d4e5-4f6a-8b9c-0d1e2f3a4b05")
	}
	return toDomain(&entity)
}

// UpdateIfProcessing applies the update only while the record is still
// processing, reporting whether a row changed.
func (r *Repository) UpdateIfProcessing(ctx context.Context, id string, update generation.Update) (bool, error) {
	values, err := r.updateValues(ctx, id, update)
	if err != nil {
		return false, err
	}

	result := r.db.WithContext(ctx).
		Model(&entities.AIGeneration{}).
		Where("id = ? AND status = ?", id, string(generation.StatusProcessing)).
		Updates(values)
	if result.Error != nil {
		return false, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"update processing generation", result.Error, "f0a1b2c3-d4e5-4f6a-8b9c-0d1e2f3a4b06")
	}
	return result.RowsAffected > 0, nil
}

// Update applies the update unconditionally.
func (r *Repository) Update(ctx context.Context, id string, update generation.Update) error {
	values, err := r.updateValues(ctx, id, update)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&entities.AIGeneration{}).
		Where("id = ?", id).
		Updates(values)
	if result.Error != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"update generation", result.Error, "f0a1b2c3-d4e5-4f6a-8b9c-0d1e2f3a4b07")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			"generation not found", nil, "f0a1b2c3-d4e5-4f6a-8b9c-0d1e2f3a4b08",
			map[string]any{"generation_id": id})
	}
	return nil
}

// MergeMetadata folds meta into the stored metadata column.
func (r *Repository) MergeMetadata(ctx context.Context, id string, meta generation.Metadata) error {
	return r.Update(ctx, id, generation.Update{Metadata: &meta})
}

// updateValues converts a domain update into a column map. Metadata
// updates read the current row first so the merge never drops keys.
func (r *Repository) updateValues(ctx context.Context, id string, update generation.Update) (map[string]any, error) {
	values := map[string]any{"updated_at": time.Now().UTC()}

	if update.Status != nil {
		values["status"] = string(*update.Status)
	}
	if update.OutputFileURL != nil {
		values["output_file_url"] = *update.OutputFileURL
	}
	if update.ThumbnailURL != nil {
		values["thumbnail_url"] = *update.ThumbnailURL
	}
	if update.ErrorMessage != nil {
		values["error_message"] = *update.ErrorMessage
	}
	if update.CompletedAt != nil {
		values["completed_at"] = *update.CompletedAt
	}

	if update.Metadata != nil {
		var entity entities.AIGeneration
		err := r.db.WithContext(ctx).Select("metadata").Where("id = ?", id).First(&entity).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
				"read metadata for merge", err, "f0a1b2c3-d4e5-4f6a-8b9c-0d1e2f3a4b09")
		}

		current := generation.Metadata{}
		if len(entity.Metadata) > 0 {
			if err := json.Unmarshal(entity.Metadata, &current); err != nil {
				return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
					"decode stored metadata", err, "f0a1b2c3-d4e5-4f6a-8b9c-0d1e2f3a4b10")
			}
		}

		merged, err := json.Marshal(current.Merge(*update.Metadata))
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
				"encode merged metadata", err, "f0a1b2c3-d4e5-4f6a-8b9c-0d1e2f3a4b11")
		}
		values["metadata"] = datatypes.JSON(merged)
	}

	return values, nil
}

func toEntity(gen *generation.Generation) (*entities.AIGeneration, error) {
	meta, err := json.Marshal(gen.Metadata)
	if err != nil {
		return nil, err
	}
	return &entities.AIGeneration{
		ID:            gen.ID,
		UserID:        gen.UserID,
		ToolType:      gen.ToolType,
		Model:         gen.Model,
		Prompt:        gen.Prompt,
		Status:        string(gen.Status),
		OutputFileURL: gen.OutputFileURL,
		ThumbnailURL:  gen.ThumbnailURL,
		ErrorMessage:  gen.ErrorMessage,
		Metadata:      datatypes.JSON(meta),
		CompletedAt:   gen.CompletedAt,
		CreatedAt:     gen.CreatedAt,
		UpdatedAt:     gen.UpdatedAt,
	}, nil
}

func toDomain(entity *entities.AIGeneration) (*generation.Generation, error) {
	var meta generation.Metadata
	if len(entity.Metadata) > 0 {
		if err := json.Unmarshal(entity.Metadata, &meta); err != nil {
			return nil, err
		}
	}
	return &generation.Generation{
		ID:            entity.ID,
		UserID:        entity.UserID,
		ToolType:      entity.ToolType,
		Model:         entity.Model,
		Prompt:        entity.Prompt,
		Status:        generation.Status(entity.Status),
		OutputFileURL: entity.OutputFileURL,
		ThumbnailURL:  entity.ThumbnailURL,
		ErrorMessage:  entity.ErrorMessage,
		Metadata:      meta,
		CompletedAt:   entity.CompletedAt,
		CreatedAt:     entity.CreatedAt,
		UpdatedAt:     entity.UpdatedAt,
	}, nil
}
