package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/classfund/classfund/internal/audit/domain"
	ledgerdomain "github.com/classfund/classfund/internal/ledger/domain"
	obsmetrics "github.com/classfund/classfund/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateEntry(
	ctx context.Context,
	campaignID snowflake.ID,
	sourceType ledgerdomain.LedgerSourceType,
	sourceID string,
	currency string,
	occurredAt time.Time,
	lines []ledgerdomain.EntryLine,
) error {
	if campaignID == 0 {
		return ledgerdomain.ErrInvalidCampaign
	}

	normalizedSource := ledgerdomain.LedgerSourceType(strings.TrimSpace(string(sourceType)))
	if normalizedSource == "" {
		return ledgerdomain.ErrInvalidSourceType
	}
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return ledgerdomain.ErrInvalidSourceID
	}

	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return ledgerdomain.ErrInvalidCurrency
	}
	if occurredAt.IsZero() {
		return ledgerdomain.ErrInvalidOccurredAt
	}

	if len(lines) < 2 {
		return ledgerdomain.ErrInvalidEntryLines
	}

	normalized := make([]ledgerdomain.EntryLine, 0, len(lines))
	for _, line := range lines {
		code := ledgerdomain.LedgerAccountCode(strings.TrimSpace(string(line.AccountCode)))
		if code == "" {
			return ledgerdomain.ErrInvalidAccount
		}
		direction, err := normalizeDirection(line.Direction)
		if err != nil {
			return err
		}
		if line.Amount < 0 {
			return ledgerdomain.ErrInvalidLineAmount
		}
		normalized = append(normalized, ledgerdomain.EntryLine{
			AccountCode: code,
			Direction:   direction,
			Amount:      line.Amount,
		})
	}

	if err := ledgerdomain.ValidateBalanced(normalized); err != nil {
		return err
	}

	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entryID := s.genID.Generate()
		now := time.Now().UTC()
		result := tx.WithContext(ctx).Exec(
			`INSERT INTO ledger_entries (
				id, campaign_id, source_type, source_id, currency, occurred_at, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (source_type, source_id) DO NOTHING`,
			entryID,
			campaignID,
			string(normalizedSource),
			sourceID,
			currency,
			occurredAt.UTC(),
			now,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		inserted = true

		for _, line := range normalized {
			accountID, err := s.ensureAccount(ctx, tx, campaignID, line.AccountCode)
			if err != nil {
				return err
			}
			if err := tx.WithContext(ctx).Exec(
				`INSERT INTO ledger_entry_lines (
					id, ledger_entry_id, account_id, direction, amount, created_at
				) VALUES (?, ?, ?, ?, ?, ?)`,
				s.genID.Generate(),
				entryID,
				accountID,
				string(line.Direction),
				line.Amount,
				now,
			).Error; err != nil {
				return err
			}
		}

		entryIDStr := entryID.String()
		metadata := map[string]any{
			"source_type":     string(normalizedSource),
			"source_id":       sourceID,
			"campaign_id":     campaignID.String(),
			"ledger_entry_id": entryIDStr,
		}
		if s.auditSvc != nil {
			if err := s.auditSvc.AuditLog(ctx, "", nil, "ledger.entry_created", "ledger_entry", &entryIDStr, metadata); err != nil {
				s.log.Warn("failed to write ledger audit log", zap.Error(err))
			}
		}

		return nil
	})
	if err != nil {
		return err
	}
	if inserted && s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerEntry(ctx, string(normalizedSource))
	}
	return nil
}

// CampaignRaised reports the net amount currently held for a campaign.
func (s *Service) CampaignRaised(ctx context.Context, campaignID snowflake.ID) (int64, error) {
	if campaignID == 0 {
		return 0, ledgerdomain.ErrInvalidCampaign
	}

	var raised int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(CASE WHEN l.direction = 'credit' THEN l.amount ELSE -l.amount END), 0)
		FROM ledger_entry_lines l
		JOIN ledger_accounts a ON a.id = l.account_id
		WHERE a.campaign_id = ? AND a.code = ?`,
		campaignID,
		string(ledgerdomain.AccountCodeCampaignFunds),
	).Scan(&raised).Error
	if err != nil {
		return 0, err
	}
	return raised, nil
}

// Balances reports per-account net positions for a campaign.
func (s *Service) Balances(ctx context.Context, campaignID snowflake.ID) ([]ledgerdomain.AccountBalance, error) {
	if campaignID == 0 {
		return nil, ledgerdomain.ErrInvalidCampaign
	}

	var balances []ledgerdomain.AccountBalance
	err := s.db.WithContext(ctx).Raw(
		`SELECT a.code AS account_code,
			COALESCE(SUM(CASE WHEN l.direction = 'credit' THEN l.amount ELSE -l.amount END), 0) AS balance
		FROM ledger_accounts a
		LEFT JOIN ledger_entry_lines l ON l.account_id = a.id
		WHERE a.campaign_id = ?
		GROUP BY a.code
		ORDER BY a.code`,
		campaignID,
	).Scan(&balances).Error
	if err != nil {
		return nil, err
	}
	return balances, nil
}

func (s *Service) ensureAccount(ctx context.Context, tx *gorm.DB, campaignID snowflake.ID, code ledgerdomain.LedgerAccountCode) (snowflake.ID, error) {
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_accounts (id, campaign_id, code, name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id, code) DO NOTHING`,
		s.genID.Generate(),
		campaignID,
		string(code),
		accountName(code),
		time.Now().UTC(),
	).Error; err != nil {
		return 0, err
	}

	var accountID snowflake.ID
	err := tx.WithContext(ctx).Raw(
		`SELECT id FROM ledger_accounts WHERE campaign_id = ? AND code = ?`,
		campaignID,
		string(code),
	).Scan(&accountID).Error
	if err != nil {
		return 0, err
	}
	if accountID == 0 {
		return 0, ledgerdomain.ErrInvalidAccount
	}
	return accountID, nil
}

func accountName(code ledgerdomain.LedgerAccountCode) string {
	switch code {
	case ledgerdomain.AccountCodeCash:
		return "Cash"
	case ledgerdomain.AccountCodeCampaignFunds:
		return "Campaign Funds"
	case ledgerdomain.AccountCodeRefundLiab:
		return "Refund Liability"
	case ledgerdomain.AccountCodePlatformRevenue:
		return "Platform Revenue"
	case ledgerdomain.AccountCodeProcessorFeeExpense:
		return "Processor Fee Expense"
	default:
		return string(code)
	}
}

func normalizeDirection(direction ledgerdomain.LedgerEntryDirection) (ledgerdomain.LedgerEntryDirection, error) {
	normalized := strings.ToLower(strings.TrimSpace(string(direction)))
	switch normalized {
	case string(ledgerdomain.LedgerEntryDirectionDebit):
		return ledgerdomain.LedgerEntryDirectionDebit, nil
	case string(ledgerdomain.LedgerEntryDirectionCredit):
		return ledgerdomain.LedgerEntryDirectionCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidLineDirection
	}
}
