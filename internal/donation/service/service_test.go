package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/classfund/classfund/internal/audit/domain"
	authdomain "github.com/classfund/classfund/internal/auth/domain"
	campaigndomain "github.com/classfund/classfund/internal/campaign/domain"
	campaignrepo "github.com/classfund/classfund/internal/campaign/repository"
	"github.com/classfund/classfund/internal/config"
	donationdomain "github.com/classfund/classfund/internal/donation/domain"
	donationrepo "github.com/classfund/classfund/internal/donation/repository"
	donationservice "github.com/classfund/classfund/internal/donation/service"
	ledgerdomain "github.com/classfund/classfund/internal/ledger/domain"
	ledgerservice "github.com/classfund/classfund/internal/ledger/service"
	"github.com/classfund/classfund/internal/payment/gateway"
	"github.com/classfund/classfund/internal/usercontext"
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

// fakeGateway scripts provider responses and records calls.
type fakeGateway struct {
	createResult  gateway.Result
	confirmResult gateway.Result
	refundResult  gateway.Result
	createCalls   int
	lastIntent    gateway.CreateIntentRequest
	refundAmounts []*int64
}

func (g *fakeGateway) Enabled() bool { return true }

func (g *fakeGateway) CreatePaymentIntent(ctx context.Context, req gateway.CreateIntentRequest) gateway.Result {
	g.createCalls++
	g.lastIntent = req
	return g.createResult
}

func (g *fakeGateway) ConfirmPayment(ctx context.Context, intentID string) gateway.Result {
	return g.confirmResult
}

func (g *fakeGateway) RefundPayment(ctx context.Context, intentID string, amount *int64) gateway.Result {
	g.refundAmounts = append(g.refundAmounts, amount)
	return g.refundResult
}

type fixture struct {
	db        *gorm.DB
	svc       donationdomain.Service
	ledgerSvc ledgerdomain.Service
	gateway   *fakeGateway
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

	node, err := snowflake.NewNode(13)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		AuditSvc: noopAuditService{},
	})

	gw := &fakeGateway{
		createResult:  gateway.Result{Success: true, IntentID: "pi_test", ClientSecret: "pi_test_secret", Status: "requires_payment_method"},
		confirmResult: gateway.Result{Success: true, IntentID: "pi_test", Status: "succeeded"},
		refundResult:  gateway.Result{Success: true, IntentID: "re_test", Status: "succeeded"},
	}

	svc := donationservice.NewService(donationservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Repo:         donationrepo.Provide(),
		CampaignRepo: campaignrepo.Provide(),
		FeeHolder:    config.NewStaticFeeScheduleHolder(config.DefaultFeeSchedule()),
		Gateway:      gw,
		LedgerSvc:    ledgerSvc,
		AuditSvc:     noopAuditService{},
	})

	return &fixture{db: db, svc: svc, ledgerSvc: ledgerSvc, gateway: gw, node: node}
}

func (f *fixture) createCampaign(t *testing.T, status campaigndomain.Status) *campaigndomain.Campaign {
	t.Helper()

	campaign := &campaigndomain.Campaign{
		ID:          f.node.Generate(),
		OrganizerID: snowflake.ID(7),
		Title:       "Band Trip",
		GoalAmount:  100000,
		Currency:    "usd",
		Status:      status,
	}
	if err := f.db.Create(campaign).Error; err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return campaign
}

func organizerContext(id int64) context.Context {
	return usercontext.WithUser(context.Background(), &authdomain.User{
		ID:   snowflake.ID(id),
		Role: authdomain.RoleOrganizer,
	})
}

func TestCreateComputesFeesAndStoresPending(t *testing.T) {
	f := setup(t)
	campaign := f.createCampaign(t, campaigndomain.StatusActive)

	resp, err := f.svc.Create(context.Background(), donationdomain.CreateRequest{
		CampaignID: campaign.ID.String(),
		Amount:     5000,
		DonorName:  "Pat",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.ClientSecret != "pi_test_secret" {
		t.Fatalf("expected client secret, got %q", resp.ClientSecret)
	}
	d := resp.Donation
	if d.Status != donationdomain.StatusPending {
		t.Fatalf("expected pending, got %s", d.Status)
	}
	// Fees ride on top of the donation by default.
	if d.ProcessorFee != 175 || d.PlatformFee != 250 || d.NetAmount != 5000 || d.TotalCharge != 5425 {
		t.Fatalf("unexpected breakdown %+v", d)
	}
	if f.gateway.lastIntent.Amount != 5425 {
		t.Fatalf("expected intent for 5425, got %d", f.gateway.lastIntent.Amount)
	}
	if d.ProviderIntentID != "pi_test" {
		t.Fatalf("expected intent id recorded, got %q", d.ProviderIntentID)
	}
}

func TestCreateAbsorbFees(t *testing.T) {
	f := setup(t)
	campaign := f.createCampaign(t, campaigndomain.StatusActive)

	resp, err := f.svc.Create(context.Background(), donationdomain.CreateRequest{
		CampaignID: campaign.ID.String(),
		Amount:     5000,
		AbsorbFees: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	d := resp.Donation
	if d.ProcessorFee != 175 || d.PlatformFee != 250 || d.NetAmount != 4575 || d.TotalCharge != 5000 {
		t.Fatalf("unexpected breakdown %+v", d)
	}
	if f.gateway.lastIntent.Amount != 5000 {
		t.Fatalf("expected intent for 5000, got %d", f.gateway.lastIntent.Amount)
	}
}

func TestCreateRejectsTinyAbsorbedAmount(t *testing.T) {
	f := setup(t)
	campaign := f.createCampaign(t, campaigndomain.StatusActive)

	_, err := f.svc.Create(context.Background(), donationdomain.CreateRequest{
		CampaignID: campaign.ID.String(),
		Amount:     25,
		AbsorbFees: true,
	})
	if !errors.Is(err, donationdomain.ErrAmountBelowMinimum) {
		t.Fatalf("expected below minimum, got %v", err)
	}

	// The same amount is fine when fees ride on top of it.
	if _, err := f.svc.Create(context.Background(), donationdomain.CreateRequest{
		CampaignID: campaign.ID.String(),
		Amount:     25,
	}); err != nil {
		t.Fatalf("create with fees on top: %v", err)
	}
}

func TestCreateRejectsInactiveCampaign(t *testing.T) {
	f := setup(t)
	campaign := f.createCampaign(t, campaigndomain.StatusDraft)

	_, err := f.svc.Create(context.Background(), donationdomain.CreateRequest{
		CampaignID: campaign.ID.String(),
		Amount:     5000,
	})
	if !errors.Is(err, donationdomain.ErrCampaignNotActive) {
		t.Fatalf("expected campaign not active, got %v", err)
	}
}

func TestCreateGatewayFailureStoresNothing(t *testing.T) {
	f := setup(t)
	campaign := f.createCampaign(t, campaigndomain.StatusActive)
	f.gateway.createResult = gateway.Result{Success: false, Message: "payment gateway not configured"}

	_, err := f.svc.Create(context.Background(), donationdomain.CreateRequest{
		CampaignID: campaign.ID.String(),
		Amount:     5000,
	})
	if !errors.Is(err, donationdomain.ErrPaymentUnavailable) {
		t.Fatalf("expected payment unavailable, got %v", err)
	}

	var count int64
	if err := f.db.Model(&donationdomain.Donation{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no donation rows, got %d", count)
	}
}

func TestConfirmSettlesDonation(t *testing.T) {
	f := setup(t)
	campaign := f.createCampaign(t, campaigndomain.StatusActive)

	created, err := f.svc.Create(context.Background(), donationdomain.CreateRequest{
		CampaignID: campaign.ID.String(),
		Amount:     5000,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	confirmed, err := f.svc.Confirm(context.Background(), created.Donation.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != donationdomain.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", confirmed.Status)
	}

	raised, err := f.ledgerSvc.CampaignRaised(context.Background(), campaign.ID)
	if err != nil {
		t.Fatalf("raised: %v", err)
	}
	if raised != 5000 {
		t.Fatalf("expected raised 5000, got %d", raised)
	}

	// Confirming again is a no-op.
	if _, err := f.svc.Confirm(context.Background(), created.Donation.ID); err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if raised, _ = f.ledgerSvc.CampaignRaised(context.Background(), campaign.ID); raised != 5000 {
		t.Fatalf("expected raised unchanged, got %d", raised)
	}
}

func TestConfirmPendingProviderStatus(t *testing.T) {
	f := setup(t)
	campaign := f.createCampaign(t, campaigndomain.StatusActive)

	created, err := f.svc.Create(context.Background(), donationdomain.CreateRequest{
		CampaignID: campaign.ID.String(),
		Amount:     5000,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	f.gateway.confirmResult = gateway.Result{Success: false, Status: "processing", Message: "payment not completed: processing"}
	if _, err := f.svc.Confirm(context.Background(), created.Donation.ID); !errors.Is(err, donationdomain.ErrPaymentNotCompleted) {
		t.Fatalf("expected payment not completed, got %v", err)
	}

	got, err := f.svc.Get(context.Background(), created.Donation.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != donationdomain.StatusPending {
		t.Fatalf("expected still pending, got %s", got.Status)
	}
}

func TestRefundFullReversesSettlement(t *testing.T) {
	f := setup(t)
	campaign := f.createCampaign(t, campaigndomain.StatusActive)

	created, err := f.svc.Create(context.Background(), donationdomain.CreateRequest{
		CampaignID: campaign.ID.String(),
		Amount:     5000,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Confirm(context.Background(), created.Donation.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// A donor cannot refund.
	donor := usercontext.WithUser(context.Background(), &authdomain.User{ID: snowflake.ID(99), Role: authdomain.RoleDonor})
	if _, err := f.svc.Refund(donor, created.Donation.ID, donationdomain.RefundRequest{}); !errors.Is(err, donationdomain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	refunded, err := f.svc.Refund(organizerContext(7), created.Donation.ID, donationdomain.RefundRequest{})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != donationdomain.StatusRefunded {
		t.Fatalf("expected refunded, got %s", refunded.Status)
	}
	if f.gateway.refundAmounts[0] != nil {
		t.Fatalf("expected full refund request to omit amount")
	}

	raised, err := f.ledgerSvc.CampaignRaised(context.Background(), campaign.ID)
	if err != nil {
		t.Fatalf("raised: %v", err)
	}
	if raised != 0 {
		t.Fatalf("expected raised 0 after refund, got %d", raised)
	}
}

func TestListByCampaign(t *testing.T) {
	f := setup(t)
	campaign := f.createCampaign(t, campaigndomain.StatusActive)

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Create(context.Background(), donationdomain.CreateRequest{
			CampaignID: campaign.ID.String(),
			Amount:     1000,
		}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	donations, err := f.svc.ListByCampaign(context.Background(), campaign.ID.String())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(donations) != 3 {
		t.Fatalf("expected 3 donations, got %d", len(donations))
	}
}
