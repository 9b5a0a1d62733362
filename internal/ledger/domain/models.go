package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// LedgerEntryDirection represents debit or credit postings.
type LedgerEntryDirection string

const (
	LedgerEntryDirectionDebit  LedgerEntryDirection = "debit"
	LedgerEntryDirectionCredit LedgerEntryDirection = "credit"
)

type LedgerSourceType string

const (
	SourceTypeDonation    LedgerSourceType = "donation"     // successful donation settlement
	SourceTypeRefund      LedgerSourceType = "refund"       // money returned to the donor
	SourceTypeDisputeHold LedgerSourceType = "dispute_hold" // funds temporarily reversed
	SourceTypeDisputeLoss LedgerSourceType = "dispute_loss" // dispute lost (final)
	SourceTypeDisputeWin  LedgerSourceType = "dispute_win"  // dispute won (reinstated)
)

type LedgerAccountCode string

const (
	// Assets
	AccountCodeCash LedgerAccountCode = "cash"

	// Liabilities (funds held for the campaign)
	AccountCodeCampaignFunds LedgerAccountCode = "campaign_funds"
	AccountCodeRefundLiab    LedgerAccountCode = "refund_liability"

	// Revenue
	AccountCodePlatformRevenue LedgerAccountCode = "platform_revenue"

	// Expenses
	AccountCodeProcessorFeeExpense LedgerAccountCode = "processor_fee_expense"
)

// LedgerAccount defines a chart-of-accounts entry scoped to one campaign.
type LedgerAccount struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	CampaignID snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_ledger_accounts_campaign_code,priority:1"`
	Code       LedgerAccountCode `gorm:"type:text;not null;uniqueIndex:ux_ledger_accounts_campaign_code,priority:2"`
	Name       string            `gorm:"type:text;not null"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerAccount) TableName() string { return "ledger_accounts" }

// LedgerEntry captures the immutable header for a financial event.
type LedgerEntry struct {
	ID         snowflake.ID     `gorm:"primaryKey"`
	CampaignID snowflake.ID     `gorm:"not null;index"`
	SourceType LedgerSourceType `gorm:"type:text;not null;index"`
	SourceID   string           `gorm:"type:text;not null;index"`
	Currency   string           `gorm:"type:text;not null"`
	OccurredAt time.Time        `gorm:"not null"`
	CreatedAt  time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// LedgerEntryLine is a double-entry posting line.
type LedgerEntryLine struct {
	ID            snowflake.ID         `gorm:"primaryKey"`
	LedgerEntryID snowflake.ID         `gorm:"not null;index"`
	AccountID     snowflake.ID         `gorm:"not null;index"`
	Direction     LedgerEntryDirection `gorm:"type:text;not null"`
	Amount        int64                `gorm:"not null"`
	CreatedAt     time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntryLine) TableName() string { return "ledger_entry_lines" }

// EntryLine is a posting request line addressed by account code.
type EntryLine struct {
	AccountCode LedgerAccountCode
	Direction   LedgerEntryDirection
	Amount      int64
}

// AccountBalance is a per-account net position for a campaign.
type AccountBalance struct {
	AccountCode LedgerAccountCode `json:"account_code"`
	Balance     int64             `json:"balance"`
}

var (
	ErrInvalidCampaign      = errors.New("invalid_campaign")
	ErrInvalidSourceType    = errors.New("invalid_source_type")
	ErrInvalidSourceID      = errors.New("invalid_source_id")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidEntryLines    = errors.New("invalid_entry_lines")
	ErrInvalidAccount       = errors.New("invalid_account")
	ErrInvalidLineDirection = errors.New("invalid_line_direction")
	ErrInvalidLineAmount    = errors.New("invalid_line_amount")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
)

// ValidateBalanced ensures debits equal credits across all lines.
func ValidateBalanced(lines []EntryLine) error {
	var debits, credits int64
	for _, line := range lines {
		switch line.Direction {
		case LedgerEntryDirectionDebit:
			debits += line.Amount
		case LedgerEntryDirectionCredit:
			credits += line.Amount
		default:
			return ErrInvalidLineDirection
		}
	}
	if debits != credits {
		return ErrUnbalancedEntry
	}
	return nil
}

type Service interface {
	CreateEntry(ctx context.Context, campaignID snowflake.ID, sourceType LedgerSourceType, sourceID string, currency string, occurredAt time.Time, lines []EntryLine) error
	CampaignRaised(ctx context.Context, campaignID snowflake.ID) (int64, error)
	Balances(ctx context.Context, campaignID snowflake.ID) ([]AccountBalance, error)
}
