package database

import (
	"gorm.io/gorm"

	"mediaforge/services/generation-api/internal/infrastructure/database/entities"
)

// Migrate applies the schema for all entities owned by this service.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entities.AIGeneration{},
		&entities.Profile{},
	)
}
