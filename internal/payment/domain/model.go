package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the stored copy of a provider webhook event. The
// (provider, provider_event_id) pair is the exactly-once key.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	DonationID      *snowflake.ID  `json:"donation_id"`
	CampaignID      *snowflake.ID  `json:"campaign_id"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency" gorm:"type:text"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	Processed       bool           `json:"processed" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
	EventTypeRefunded         = "refunded"
	EventTypeUnknown          = "unknown"
)

// PaymentEvent is the canonical payment event parsed by adapters.
// ProviderEventType carries the provider's raw type tag so unknown
// events stay inspectable after normalization.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderIntentID  string
	ProviderEventType string
	Type              string
	DonationID        *snowflake.ID
	CampaignID        *snowflake.ID
	Amount            int64
	Currency          string
	FailureReason     string
	OccurredAt        time.Time
	RawPayload        []byte
}
