package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the donation payment state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Donation records one pledge against a campaign together with its fee
// breakdown at the time of creation. Amounts are minor units.
type Donation struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	CampaignID       snowflake.ID  `gorm:"not null;index"`
	DonorID          *snowflake.ID `gorm:"column:donor_id"`
	DonorName        string        `gorm:"type:text;not null"`
	DonorEmail       string        `gorm:"type:text;not null"`
	GrossAmount      int64         `gorm:"not null"`
	ProcessorFee     int64         `gorm:"not null;default:0"`
	PlatformFee      int64         `gorm:"not null;default:0"`
	NetAmount        int64         `gorm:"not null;default:0"`
	TotalCharge      int64         `gorm:"not null;default:0"`
	CoverFees        bool          `gorm:"not null;default:false"`
	Currency         string        `gorm:"type:text;not null;default:usd"`
	Status           Status        `gorm:"type:text;not null;default:pending;index"`
	Provider         string        `gorm:"type:text;not null;default:''"`
	ProviderIntentID string        `gorm:"type:text;not null;default:''"`
	FailureReason    string        `gorm:"type:text;not null;default:''"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Donation) TableName() string { return "donations" }
