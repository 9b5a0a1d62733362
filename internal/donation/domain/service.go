package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	Get(ctx context.Context, id string) (*Response, error)
	Confirm(ctx context.Context, id string) (*Response, error)
	Refund(ctx context.Context, id string, req RefundRequest) (*Response, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]Response, error)

	// Settlement operations invoked by the webhook processor. All are
	// idempotent at the ledger via the donation-scoped source id.
	Settle(ctx context.Context, donationID snowflake.ID, occurredAt time.Time) error
	MarkFailed(ctx context.Context, donationID snowflake.ID, reason string) error
	ApplyRefund(ctx context.Context, donationID snowflake.ID, amount int64, sourceID string, occurredAt time.Time) error
}

type CreateRequest struct {
	CampaignID string `json:"campaign_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	// Fees are charged on top of the donation amount unless the caller
	// opts to have the campaign absorb them.
	AbsorbFees bool   `json:"absorb_fees"`
	DonorName  string `json:"donor_name"`
	DonorEmail string `json:"donor_email"`
}

type RefundRequest struct {
	// Amount in minor units; nil refunds the full charge.
	Amount *int64 `json:"amount"`
}

type Response struct {
	ID               string    `json:"id"`
	CampaignID       string    `json:"campaign_id"`
	DonorID          string    `json:"donor_id,omitempty"`
	DonorName        string    `json:"donor_name,omitempty"`
	GrossAmount      int64     `json:"gross_amount"`
	ProcessorFee     int64     `json:"processor_fee"`
	PlatformFee      int64     `json:"platform_fee"`
	NetAmount        int64     `json:"net_amount"`
	TotalCharge      int64     `json:"total_charge"`
	CoverFees        bool      `json:"cover_fees"`
	Currency         string    `json:"currency"`
	Status           Status    `json:"status"`
	Provider         string    `json:"provider,omitempty"`
	ProviderIntentID string    `json:"provider_intent_id,omitempty"`
	FailureReason    string    `json:"failure_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type CreateResponse struct {
	Donation     Response `json:"donation"`
	ClientSecret string   `json:"client_secret,omitempty"`
}

var (
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrAmountBelowMinimum  = errors.New("amount_below_minimum")
	ErrInvalidCampaign     = errors.New("invalid_campaign")
	ErrCampaignNotActive   = errors.New("campaign_not_active")
	ErrNotFound            = errors.New("not_found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidState        = errors.New("invalid_state")
	ErrInvalidRefundAmount = errors.New("invalid_refund_amount")
	ErrPaymentUnavailable  = errors.New("payment_unavailable")
	ErrPaymentNotCompleted = errors.New("payment_not_completed")
)
