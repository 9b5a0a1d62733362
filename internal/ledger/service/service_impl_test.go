package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/classfund/classfund/internal/audit/domain"
	ledgerdomain "github.com/classfund/classfund/internal/ledger/domain"
	ledgerservice "github.com/classfund/classfund/internal/ledger/service"
	dbpkg "github.com/classfund/classfund/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type noopAuditService struct{}

func (noopAuditService) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (noopAuditService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := dbpkg.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE ledger_accounts (
			id BIGINT PRIMARY KEY,
			campaign_id BIGINT NOT NULL,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_ledger_accounts_campaign_code ON ledger_accounts(campaign_id, code)`,
		`CREATE TABLE ledger_entries (
			id BIGINT PRIMARY KEY,
			campaign_id BIGINT NOT NULL,
			source_type TEXT NOT NULL,
			source_id TEXT NOT NULL,
			currency TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_ledger_entries_source ON ledger_entries(source_type, source_id)`,
		`CREATE TABLE ledger_entry_lines (
			id BIGINT PRIMARY KEY,
			ledger_entry_id BIGINT NOT NULL,
			account_id BIGINT NOT NULL,
			direction TEXT NOT NULL,
			amount BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

func newLedgerService(t *testing.T, db *gorm.DB) ledgerdomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(11)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return ledgerservice.NewService(ledgerservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		AuditSvc: noopAuditService{},
	})
}

func assertCount(t *testing.T, db *gorm.DB, query string, want int64, args ...any) {
	t.Helper()

	var got int64
	if err := db.Raw(query, args...).Scan(&got).Error; err != nil {
		t.Fatalf("count query: %v", err)
	}
	if got != want {
		t.Fatalf("expected %d rows, got %d (query %s)", want, got, query)
	}
}

func TestCreateEntryPostsBalancedLines(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newLedgerService(t, db)

	campaignID := snowflake.ID(42)
	err := svc.CreateEntry(ctx, campaignID, ledgerdomain.SourceTypeDonation, "9001", "usd", time.Now(), []ledgerdomain.EntryLine{
		{AccountCode: ledgerdomain.AccountCodeCash, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: 5250},
		{AccountCode: ledgerdomain.AccountCodeCampaignFunds, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 5000},
		{AccountCode: ledgerdomain.AccountCodePlatformRevenue, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 250},
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}

	assertCount(t, db, `SELECT COUNT(*) FROM ledger_entries`, 1)
	assertCount(t, db, `SELECT COUNT(*) FROM ledger_entry_lines`, 3)
	assertCount(t, db, `SELECT COUNT(*) FROM ledger_accounts WHERE campaign_id = ?`, 3, campaignID)

	raised, err := svc.CampaignRaised(ctx, campaignID)
	if err != nil {
		t.Fatalf("campaign raised: %v", err)
	}
	if raised != 5000 {
		t.Fatalf("expected raised 5000, got %d", raised)
	}
}

func TestCreateEntryIsIdempotentPerSource(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newLedgerService(t, db)

	lines := []ledgerdomain.EntryLine{
		{AccountCode: ledgerdomain.AccountCodeCash, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: 1000},
		{AccountCode: ledgerdomain.AccountCodeCampaignFunds, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 1000},
	}

	for i := 0; i < 2; i++ {
		if err := svc.CreateEntry(ctx, 7, ledgerdomain.SourceTypeDonation, "dup-1", "usd", time.Now(), lines); err != nil {
			t.Fatalf("create entry attempt %d: %v", i+1, err)
		}
	}

	assertCount(t, db, `SELECT COUNT(*) FROM ledger_entries`, 1)
	assertCount(t, db, `SELECT COUNT(*) FROM ledger_entry_lines`, 2)
}

func TestCreateEntryRejectsUnbalancedLines(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newLedgerService(t, db)

	err := svc.CreateEntry(ctx, 7, ledgerdomain.SourceTypeDonation, "bad-1", "usd", time.Now(), []ledgerdomain.EntryLine{
		{AccountCode: ledgerdomain.AccountCodeCash, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: 1000},
		{AccountCode: ledgerdomain.AccountCodeCampaignFunds, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 900},
	})
	if err != ledgerdomain.ErrUnbalancedEntry {
		t.Fatalf("expected ErrUnbalancedEntry, got %v", err)
	}

	assertCount(t, db, `SELECT COUNT(*) FROM ledger_entries`, 0)
}

func TestCampaignRaisedReflectsRefunds(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newLedgerService(t, db)

	campaignID := snowflake.ID(99)
	if err := svc.CreateEntry(ctx, campaignID, ledgerdomain.SourceTypeDonation, "don-1", "usd", time.Now(), []ledgerdomain.EntryLine{
		{AccountCode: ledgerdomain.AccountCodeCash, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: 4825},
		{AccountCode: ledgerdomain.AccountCodeCampaignFunds, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 4575},
		{AccountCode: ledgerdomain.AccountCodePlatformRevenue, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 250},
	}); err != nil {
		t.Fatalf("create donation entry: %v", err)
	}

	if err := svc.CreateEntry(ctx, campaignID, ledgerdomain.SourceTypeRefund, "don-1", "usd", time.Now(), []ledgerdomain.EntryLine{
		{AccountCode: ledgerdomain.AccountCodeCampaignFunds, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: 4575},
		{AccountCode: ledgerdomain.AccountCodePlatformRevenue, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: 250},
		{AccountCode: ledgerdomain.AccountCodeProcessorFeeExpense, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: 175},
		{AccountCode: ledgerdomain.AccountCodeCash, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 5000},
	}); err != nil {
		t.Fatalf("create refund entry: %v", err)
	}

	raised, err := svc.CampaignRaised(ctx, campaignID)
	if err != nil {
		t.Fatalf("campaign raised: %v", err)
	}
	if raised != 0 {
		t.Fatalf("expected raised 0 after refund, got %d", raised)
	}
}

func TestBalancesPerAccount(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newLedgerService(t, db)

	campaignID := snowflake.ID(77)
	err := svc.CreateEntry(ctx, campaignID, ledgerdomain.SourceTypeDonation, "don-77", "usd", time.Now(), []ledgerdomain.EntryLine{
		{AccountCode: ledgerdomain.AccountCodeCash, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: 5250},
		{AccountCode: ledgerdomain.AccountCodeCampaignFunds, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 5000},
		{AccountCode: ledgerdomain.AccountCodePlatformRevenue, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 250},
	})
	require.NoError(t, err)

	balances, err := svc.Balances(ctx, campaignID)
	require.NoError(t, err)

	byCode := make(map[ledgerdomain.LedgerAccountCode]int64, len(balances))
	for _, balance := range balances {
		byCode[balance.AccountCode] = balance.Balance
	}
	// Balances are credit-positive, so the debited cash account reads negative.
	require.Equal(t, int64(-5250), byCode[ledgerdomain.AccountCodeCash])
	require.Equal(t, int64(5000), byCode[ledgerdomain.AccountCodeCampaignFunds])
	require.Equal(t, int64(250), byCode[ledgerdomain.AccountCodePlatformRevenue])
}
