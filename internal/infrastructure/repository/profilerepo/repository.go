// Package profilerepo is the GORM-backed profile reader.
package profilerepo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"mediaforge/services/generation-api/internal/domain/profile"
	"mediaforge/services/generation-api/internal/infrastructure/database/entities"
	"mediaforge/services/generation-api/internal/utils/platformerrors"
)

// Repository implements profile.Store on PostgreSQL.
type Repository struct {
	db *gorm.DB
}

// New builds a Repository.
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ profile.Store = (*Repository)(nil)

// GetByUserID returns nil when no profile exists; callers treat that
// as free tier.
func (r *Repository) GetByUserID(ctx context.Context, userID string) (*profile.Profile, error) {
	var entity entities.Profile
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"fetch profile", err, "d5e6f7a8-b9c0-4d1e-8f2a-3b4c5d6e7f01")
	}
	return &profile.Profile{
		ID:                 entity.ID,
		Email:              entity.Email,
		SubscriptionTier:   entity.SubscriptionTier,
		SubscriptionStatus: entity.SubscriptionStatus,
	}, nil
}
