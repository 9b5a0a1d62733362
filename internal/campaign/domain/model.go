package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the campaign lifecycle state.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Campaign represents a fundraising campaign owned by an organizer.
type Campaign struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	OrganizerID snowflake.ID `gorm:"column:organizer_id;not null;index"`
	Title       string       `gorm:"type:text;not null"`
	Description string       `gorm:"type:text;not null"`
	GoalAmount  int64        `gorm:"not null;default:0"`
	Currency    string       `gorm:"type:text;not null;default:usd"`
	Status      Status       `gorm:"type:text;not null;default:draft;index"`
	StartsAt    *time.Time   `gorm:"column:starts_at"`
	EndsAt      *time.Time   `gorm:"column:ends_at"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Campaign) TableName() string { return "campaigns" }
