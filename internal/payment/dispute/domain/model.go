package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	EventTypeDisputeCreated         = "dispute_created"
	EventTypeDisputeFundsWithdrawn  = "dispute_funds_withdrawn"
	EventTypeDisputeFundsReinstated = "dispute_funds_reinstated"
	EventTypeDisputeClosed          = "dispute_closed"
)

// Dispute status ladder. A closed dispute never reopens.
const (
	DisputeStatusOpen       = "open"
	DisputeStatusWithdrawn  = "withdrawn"
	DisputeStatusReinstated = "reinstated"
	DisputeStatusClosed     = "closed"
)

// DisputeEvent is the canonical dispute event parsed by adapters.
type DisputeEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderDisputeID string
	ProviderIntentID  string
	Type              string
	DonationID        *snowflake.ID
	CampaignID        *snowflake.ID
	Amount            int64
	Currency          string
	Reason            string
	// ProviderStatus is the provider's own status tag, used on close to
	// distinguish lost disputes from won ones.
	ProviderStatus string
	OccurredAt     time.Time
	RawPayload     []byte
}

// DisputeRecord is the stored dispute keyed by (provider, provider_dispute_id).
// ProviderEventID tracks the last applied event so replays are no-ops.
type DisputeRecord struct {
	ID                snowflake.ID  `json:"id" gorm:"primaryKey"`
	Provider          string        `json:"provider" gorm:"type:text;not null"`
	ProviderDisputeID string        `json:"provider_dispute_id" gorm:"type:text;not null"`
	ProviderEventID   string        `json:"provider_event_id" gorm:"type:text;not null"`
	DonationID        *snowflake.ID `json:"donation_id"`
	CampaignID        *snowflake.ID `json:"campaign_id"`
	Amount            int64         `json:"amount"`
	Currency          string        `json:"currency" gorm:"type:text"`
	Status            string        `json:"status" gorm:"type:text;not null"`
	Reason            string        `json:"reason" gorm:"type:text"`
	OpenedAt          time.Time     `json:"opened_at" gorm:"not null"`
	ClosedAt          *time.Time    `json:"closed_at"`
	ProcessedAt       *time.Time    `json:"processed_at"`
}

func (DisputeRecord) TableName() string { return "payment_disputes" }

// DisputeAdapter is implemented by payment adapters that can parse
// provider dispute events.
type DisputeAdapter interface {
	ParseDispute(ctx context.Context, payload []byte) (*DisputeEvent, error)
}

type Repository interface {
	FindDispute(ctx context.Context, db *gorm.DB, provider string, providerDisputeID string) (*DisputeRecord, error)
	FindDisputeForUpdate(ctx context.Context, db *gorm.DB, provider string, providerDisputeID string) (*DisputeRecord, error)
	InsertDispute(ctx context.Context, db *gorm.DB, record *DisputeRecord) (bool, error)
	UpdateDispute(ctx context.Context, db *gorm.DB, record *DisputeRecord) error
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
