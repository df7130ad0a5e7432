package entities

import "time"

// Profile is the persistence model for a user profile. Only the
// subscription fields are read by this service.
type Profile struct {
	ID                 string `gorm:"type:varchar(64);primaryKey"`
	Email              string `gorm:"type:varchar(255)"`
	SubscriptionTier   string `gorm:"type:varchar(32)"`
	SubscriptionStatus string `gorm:"type:varchar(32)"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TableName overrides the table name used by GORM.
func (Profile) TableName() string {
	return "profiles"
}
