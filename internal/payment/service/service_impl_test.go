package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/classfund/classfund/internal/audit/domain"
	campaigndomain "github.com/classfund/classfund/internal/campaign/domain"
	campaignrepo "github.com/classfund/classfund/internal/campaign/repository"
	"github.com/classfund/classfund/internal/config"
	donationdomain "github.com/classfund/classfund/internal/donation/domain"
	donationrepo "github.com/classfund/classfund/internal/donation/repository"
	donationservice "github.com/classfund/classfund/internal/donation/service"
	ledgerdomain "github.com/classfund/classfund/internal/ledger/domain"
	ledgerservice "github.com/classfund/classfund/internal/ledger/service"
	paymentdomain "github.com/classfund/classfund/internal/payment/domain"
	"github.com/classfund/classfund/internal/payment/gateway"
	paymentrepo "github.com/classfund/classfund/internal/payment/repository"
	paymentservice "github.com/classfund/classfund/internal/payment/service"
	dbpkg "github.com/classfund/classfund/pkg/db"
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

type fixture struct {
	db        *gorm.DB
	svc       *paymentservice.Service
	ledgerSvc ledgerdomain.Service
	node      *snowflake.Node
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := dbpkg.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&campaigndomain.Campaign{}, &donationdomain.Donation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	schema := []string{
		`CREATE TABLE payment_events (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			donation_id BIGINT,
			campaign_id BIGINT,
			amount BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT '',
			payload TEXT,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			processed_at TIMESTAMPTZ,
			received_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_payment_events_provider_event ON payment_events(provider, provider_event_id)`,
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

	node, err := snowflake.NewNode(14)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		AuditSvc: noopAuditService{},
	})

	donationSvc := donationservice.NewService(donationservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Repo:         donationrepo.Provide(),
		CampaignRepo: campaignrepo.Provide(),
		FeeHolder:    config.NewStaticFeeScheduleHolder(config.DefaultFeeSchedule()),
		Gateway:      gateway.NewDisabled(),
		LedgerSvc:    ledgerSvc,
		AuditSvc:     noopAuditService{},
	})

	svc := paymentservice.NewService(paymentservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Repo:         paymentrepo.Provide(),
		DonationRepo: donationrepo.Provide(),
		DonationSvc:  donationSvc,
	})

	return &fixture{db: db, svc: svc, ledgerSvc: ledgerSvc, node: node}
}

func (f *fixture) seedDonation(t *testing.T, status donationdomain.Status) *donationdomain.Donation {
	t.Helper()

	campaign := &campaigndomain.Campaign{
		ID:          f.node.Generate(),
		OrganizerID: snowflake.ID(7),
		Title:       "Robotics Club",
		GoalAmount:  100000,
		Currency:    "usd",
		Status:      campaigndomain.StatusActive,
	}
	if err := f.db.Create(campaign).Error; err != nil {
		t.Fatalf("create campaign: %v", err)
	}

	donation := &donationdomain.Donation{
		ID:           f.node.Generate(),
		CampaignID:   campaign.ID,
		GrossAmount:  5000,
		ProcessorFee: 175,
		PlatformFee:  250,
		NetAmount:    5000,
		TotalCharge:  5425,
		CoverFees:    true,
		Currency:     "usd",
		Status:       status,
		Provider:     "stripe",
	}
	donation.ProviderIntentID = "pi_" + donation.ID.String()
	if err := f.db.Create(donation).Error; err != nil {
		t.Fatalf("create donation: %v", err)
	}
	return donation
}

func succeededEvent(donation *donationdomain.Donation, eventID string) *paymentdomain.PaymentEvent {
	return &paymentdomain.PaymentEvent{
		Provider:         "stripe",
		ProviderEventID:  eventID,
		ProviderIntentID: donation.ProviderIntentID,
		Type:             paymentdomain.EventTypePaymentSucceeded,
		DonationID:       &donation.ID,
		Amount:           donation.TotalCharge,
		Currency:         "usd",
		OccurredAt:       time.Now().UTC(),
	}
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

func TestProcessEventSettlesDonation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	donation := f.seedDonation(t, donationdomain.StatusPending)

	event := succeededEvent(donation, "evt_1")
	if err := f.svc.ProcessEvent(ctx, event, []byte(`{"id":"evt_1"}`)); err != nil {
		t.Fatalf("process event: %v", err)
	}

	var status string
	if err := f.db.Raw(`SELECT status FROM donations WHERE id = ?`, donation.ID).Scan(&status).Error; err != nil {
		t.Fatalf("load status: %v", err)
	}
	if status != string(donationdomain.StatusSucceeded) {
		t.Fatalf("expected succeeded, got %s", status)
	}

	raised, err := f.ledgerSvc.CampaignRaised(ctx, donation.CampaignID)
	if err != nil {
		t.Fatalf("raised: %v", err)
	}
	if raised != donation.NetAmount {
		t.Fatalf("expected raised %d, got %d", donation.NetAmount, raised)
	}

	assertCount(t, f.db, `SELECT COUNT(*) FROM payment_events WHERE processed = TRUE`, 1)
}

func TestProcessEventReplayIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	donation := f.seedDonation(t, donationdomain.StatusPending)

	payload := []byte(`{"id":"evt_1"}`)
	if err := f.svc.ProcessEvent(ctx, succeededEvent(donation, "evt_1"), payload); err != nil {
		t.Fatalf("first process: %v", err)
	}
	err := f.svc.ProcessEvent(ctx, succeededEvent(donation, "evt_1"), payload)
	if !errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}

	assertCount(t, f.db, `SELECT COUNT(*) FROM payment_events`, 1)
	assertCount(t, f.db, `SELECT COUNT(*) FROM ledger_entries`, 1)
}

func TestProcessEventUnknownTypeAcknowledged(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	event := &paymentdomain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   "evt_x",
		ProviderEventType: "customer.created",
		Type:              paymentdomain.EventTypeUnknown,
		OccurredAt:        time.Now().UTC(),
	}
	if err := f.svc.ProcessEvent(ctx, event, []byte(`{"id":"evt_x"}`)); err != nil {
		t.Fatalf("process unknown event: %v", err)
	}

	assertCount(t, f.db, `SELECT COUNT(*) FROM payment_events WHERE processed = TRUE`, 1)
	assertCount(t, f.db, `SELECT COUNT(*) FROM ledger_entries`, 0)
}

func TestProcessEventHandlerFailureLeavesUnprocessed(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	donation := f.seedDonation(t, donationdomain.StatusRefunded)

	err := f.svc.ProcessEvent(ctx, succeededEvent(donation, "evt_1"), []byte(`{"id":"evt_1"}`))
	if err == nil {
		t.Fatalf("expected handler error")
	}

	assertCount(t, f.db, `SELECT COUNT(*) FROM payment_events`, 1)
	assertCount(t, f.db, `SELECT COUNT(*) FROM payment_events WHERE processed = TRUE`, 0)
}

func TestProcessRefundEvent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	donation := f.seedDonation(t, donationdomain.StatusPending)

	if err := f.svc.ProcessEvent(ctx, succeededEvent(donation, "evt_1"), []byte(`{"id":"evt_1"}`)); err != nil {
		t.Fatalf("settle: %v", err)
	}

	refund := &paymentdomain.PaymentEvent{
		Provider:         "stripe",
		ProviderEventID:  "evt_2",
		ProviderIntentID: donation.ProviderIntentID,
		Type:             paymentdomain.EventTypeRefunded,
		Amount:           donation.TotalCharge,
		Currency:         "usd",
		OccurredAt:       time.Now().UTC(),
	}
	if err := f.svc.ProcessEvent(ctx, refund, []byte(`{"id":"evt_2"}`)); err != nil {
		t.Fatalf("refund: %v", err)
	}

	var status string
	if err := f.db.Raw(`SELECT status FROM donations WHERE id = ?`, donation.ID).Scan(&status).Error; err != nil {
		t.Fatalf("load status: %v", err)
	}
	if status != string(donationdomain.StatusRefunded) {
		t.Fatalf("expected refunded, got %s", status)
	}

	raised, err := f.ledgerSvc.CampaignRaised(ctx, donation.CampaignID)
	if err != nil {
		t.Fatalf("raised: %v", err)
	}
	if raised != 0 {
		t.Fatalf("expected raised 0, got %d", raised)
	}
}
