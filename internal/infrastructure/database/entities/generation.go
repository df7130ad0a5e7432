package entities

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AIGeneration is the persistence model for a single generation job.
type AIGeneration struct {
	ID            string         `gorm:"type:varchar(40);primaryKey"`
	UserID        string         `gorm:"type:varchar(64);not null;index:idx_ai_generations_user_id"`
	ToolType      string         `gorm:"type:varchar(64);index:idx_ai_generations_tool_type"`
	Model         string         `gorm:"type:varchar(128)"`
	Prompt        string         `gorm:"type:text"`
	Status        string         `gorm:"type:varchar(16);not null;index:idx_ai_generations_status"`
	OutputFileURL string         `gorm:"type:text"`
	ThumbnailURL  string         `gorm:"type:text"`
	ErrorMessage  string         `gorm:"type:text"`
	Metadata      datatypes.JSON `gorm:"type:jsonb"`
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

// TableName overrides the table name used by GORM.
func (AIGeneration) TableName() string {
	return "ai_generations"
}
