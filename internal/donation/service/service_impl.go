package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	auditdomain "github.com/classfund/classfund/internal/audit/domain"
	authdomain "github.com/classfund/classfund/internal/auth/domain"
	campaigndomain "github.com/classfund/classfund/internal/campaign/domain"
	"github.com/classfund/classfund/internal/config"
	"github.com/classfund/classfund/internal/donation/domain"
	ledgerdomain "github.com/classfund/classfund/internal/ledger/domain"
	obsmetrics "github.com/classfund/classfund/internal/observability/metrics"
	"github.com/classfund/classfund/internal/payment/fees"
	"github.com/classfund/classfund/internal/payment/gateway"
	"github.com/classfund/classfund/internal/usercontext"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxDonorNameLength = 120

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         domain.Repository
	CampaignRepo campaigndomain.Repository
	FeeHolder    *config.FeeScheduleHolder
	Gateway      gateway.Gateway
	LedgerSvc    ledgerdomain.Service
	AuditSvc     auditdomain.Service `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	campaignRepo campaigndomain.Repository
	feeHolder    *config.FeeScheduleHolder
	gateway      gateway.Gateway
	ledgerSvc    ledgerdomain.Service
	auditSvc     auditdomain.Service
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		db:           p.DB,
		log:          p.Log.Named("donation.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		campaignRepo: p.CampaignRepo,
		feeHolder:    p.FeeHolder,
		gateway:      p.Gateway,
		ledgerSvc:    p.LedgerSvc,
		auditSvc:     p.AuditSvc,
		obsMetrics:   p.ObsMetrics,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.CreateResponse, error) {
	campaignID, err := snowflake.ParseString(strings.TrimSpace(req.CampaignID))
	if err != nil || campaignID == 0 {
		return nil, domain.ErrInvalidCampaign
	}
	campaign, err := s.campaignRepo.FindByID(ctx, s.db, campaignID)
	if err != nil {
		if err == campaigndomain.ErrNotFound {
			return nil, domain.ErrInvalidCampaign
		}
		return nil, err
	}
	if campaign.Status != campaigndomain.StatusActive {
		return nil, domain.ErrCampaignNotActive
	}

	breakdown, err := fees.Calculate(s.feeHolder.Get(), req.Amount, !req.AbsorbFees)
	if err != nil {
		if errors.Is(err, fees.ErrAmountBelowMinimum) {
			return nil, domain.ErrAmountBelowMinimum
		}
		return nil, domain.ErrInvalidAmount
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = campaign.Currency
	}

	donorName := strings.TrimSpace(req.DonorName)
	if len(donorName) > maxDonorNameLength {
		donorName = donorName[:maxDonorNameLength]
	}

	donation := &domain.Donation{
		ID:           s.genID.Generate(),
		CampaignID:   campaign.ID,
		DonorName:    donorName,
		DonorEmail:   strings.TrimSpace(req.DonorEmail),
		GrossAmount:  breakdown.Gross,
		ProcessorFee: breakdown.ProcessorFee,
		PlatformFee:  breakdown.PlatformFee,
		NetAmount:    breakdown.Net,
		TotalCharge:  breakdown.TotalCharge,
		CoverFees:    breakdown.CoverFees,
		Currency:     currency,
		Status:       domain.StatusPending,
		Provider:     "stripe",
	}
	if donorID, ok := usercontext.UserIDFromContext(ctx); ok {
		donation.DonorID = &donorID
	}

	result := s.gateway.CreatePaymentIntent(ctx, gateway.CreateIntentRequest{
		Amount:         donation.TotalCharge,
		Currency:       donation.Currency,
		DonationID:     donation.ID.String(),
		CampaignID:     donation.CampaignID.String(),
		IdempotencyKey: fmt.Sprintf("donation-%s", donation.ID.String()),
	})
	if !result.Success {
		s.log.Warn("payment intent creation failed",
			zap.String("campaign_id", campaign.ID.String()),
			zap.String("message", result.Message))
		return nil, domain.ErrPaymentUnavailable
	}
	donation.ProviderIntentID = result.IntentID

	if err := s.repo.Create(ctx, s.db, donation); err != nil {
		s.log.Error("failed to store donation", zap.Error(err))
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordDonation(ctx, string(domain.StatusPending))
	}
	s.audit(ctx, "donation.created", donation, map[string]any{
		"gross_amount": donation.GrossAmount,
		"total_charge": donation.TotalCharge,
		"cover_fees":   donation.CoverFees,
	})

	return &domain.CreateResponse{
		Donation:     toResponse(donation),
		ClientSecret: result.ClientSecret,
	}, nil
}

func (s *service) Get(ctx context.Context, id string) (*domain.Response, error) {
	donation, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(donation)
	return &resp, nil
}

func (s *service) Confirm(ctx context.Context, id string) (*domain.Response, error) {
	donation, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if donation.Status == domain.StatusSucceeded {
		resp := toResponse(donation)
		return &resp, nil
	}
	if donation.Status != domain.StatusPending {
		return nil, domain.ErrInvalidState
	}

	result := s.gateway.ConfirmPayment(ctx, donation.ProviderIntentID)
	if !result.Success {
		s.log.Info("payment confirmation not completed",
			zap.String("donation_id", donation.ID.String()),
			zap.String("provider_status", result.Status))
		return nil, domain.ErrPaymentNotCompleted
	}

	if err := s.Settle(ctx, donation.ID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *service) Refund(ctx context.Context, id string, req domain.RefundRequest) (*domain.Response, error) {
	donation, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRefund(ctx, donation); err != nil {
		return nil, err
	}
	if donation.Status != domain.StatusSucceeded {
		return nil, domain.ErrInvalidState
	}

	amount := donation.TotalCharge
	if req.Amount != nil {
		if *req.Amount <= 0 || *req.Amount > donation.TotalCharge {
			return nil, domain.ErrInvalidRefundAmount
		}
		amount = *req.Amount
	}

	result := s.gateway.RefundPayment(ctx, donation.ProviderIntentID, req.Amount)
	if !result.Success {
		s.log.Warn("refund rejected by provider",
			zap.String("donation_id", donation.ID.String()),
			zap.String("message", result.Message))
		return nil, domain.ErrPaymentUnavailable
	}

	sourceID := result.IntentID
	if sourceID == "" {
		sourceID = fmt.Sprintf("refund:%s", donation.ID.String())
	}
	if err := s.ApplyRefund(ctx, donation.ID, amount, sourceID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *service) ListByCampaign(ctx context.Context, campaignID string) ([]domain.Response, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(campaignID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidCampaign
	}
	donations, err := s.repo.ListByCampaign(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	responses := make([]domain.Response, 0, len(donations))
	for i := range donations {
		responses = append(responses, toResponse(&donations[i]))
	}
	return responses, nil
}

// Settle marks a donation succeeded and posts it to the ledger. Safe to call
// from both the confirm endpoint and the webhook processor; the ledger entry
// is keyed by donation id so repeats are no-ops.
func (s *service) Settle(ctx context.Context, donationID snowflake.ID, occurredAt time.Time) error {
	donation, err := s.repo.FindByID(ctx, s.db, donationID)
	if err != nil {
		return err
	}
	if donation.Status == domain.StatusRefunded {
		return domain.ErrInvalidState
	}

	if donation.Status != domain.StatusSucceeded {
		if err := s.repo.UpdateFields(ctx, s.db, donation.ID, map[string]any{
			"status":         string(domain.StatusSucceeded),
			"failure_reason": "",
			"updated_at":     time.Now().UTC(),
		}); err != nil {
			return err
		}
		if s.obsMetrics != nil {
			s.obsMetrics.RecordDonation(ctx, string(domain.StatusSucceeded))
		}
		s.audit(ctx, "donation.succeeded", donation, map[string]any{
			"net_amount": donation.NetAmount,
		})
	}

	lines := []ledgerdomain.EntryLine{
		{AccountCode: ledgerdomain.AccountCodeCash, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: donation.TotalCharge - donation.ProcessorFee},
		{AccountCode: ledgerdomain.AccountCodeCampaignFunds, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: donation.NetAmount},
		{AccountCode: ledgerdomain.AccountCodePlatformRevenue, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: donation.PlatformFee},
	}
	return s.ledgerSvc.CreateEntry(
		ctx,
		donation.CampaignID,
		ledgerdomain.SourceTypeDonation,
		donation.ID.String(),
		donation.Currency,
		occurredAt,
		lines,
	)
}

func (s *service) MarkFailed(ctx context.Context, donationID snowflake.ID, reason string) error {
	donation, err := s.repo.FindByID(ctx, s.db, donationID)
	if err != nil {
		return err
	}
	if donation.Status != domain.StatusPending {
		return nil
	}

	if err := s.repo.UpdateFields(ctx, s.db, donation.ID, map[string]any{
		"status":         string(domain.StatusFailed),
		"failure_reason": strings.TrimSpace(reason),
		"updated_at":     time.Now().UTC(),
	}); err != nil {
		return err
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordDonation(ctx, string(domain.StatusFailed))
	}
	s.audit(ctx, "donation.failed", donation, map[string]any{
		"failure_reason": strings.TrimSpace(reason),
	})
	return nil
}

// ApplyRefund posts a refund to the ledger and updates donation status. A
// full refund reverses the original settlement including the fee expense; a
// partial refund only backs money out of the campaign funds.
func (s *service) ApplyRefund(ctx context.Context, donationID snowflake.ID, amount int64, sourceID string, occurredAt time.Time) error {
	if amount <= 0 {
		return domain.ErrInvalidRefundAmount
	}
	donation, err := s.repo.FindByID(ctx, s.db, donationID)
	if err != nil {
		return err
	}
	if donation.Status != domain.StatusSucceeded && donation.Status != domain.StatusRefunded {
		return domain.ErrInvalidState
	}
	if amount > donation.TotalCharge {
		return domain.ErrInvalidRefundAmount
	}

	var lines []ledgerdomain.EntryLine
	full := amount == donation.TotalCharge
	if full {
		lines = []ledgerdomain.EntryLine{
			{AccountCode: ledgerdomain.AccountCodeCampaignFunds, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: donation.NetAmount},
			{AccountCode: ledgerdomain.AccountCodePlatformRevenue, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: donation.PlatformFee},
			{AccountCode: ledgerdomain.AccountCodeProcessorFeeExpense, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: donation.ProcessorFee},
			{AccountCode: ledgerdomain.AccountCodeCash, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: donation.TotalCharge},
		}
	} else {
		lines = []ledgerdomain.EntryLine{
			{AccountCode: ledgerdomain.AccountCodeCampaignFunds, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: amount},
			{AccountCode: ledgerdomain.AccountCodeCash, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: amount},
		}
	}

	if err := s.ledgerSvc.CreateEntry(
		ctx,
		donation.CampaignID,
		ledgerdomain.SourceTypeRefund,
		sourceID,
		donation.Currency,
		occurredAt,
		lines,
	); err != nil {
		return err
	}

	if full && donation.Status != domain.StatusRefunded {
		if err := s.repo.UpdateFields(ctx, s.db, donation.ID, map[string]any{
			"status":     string(domain.StatusRefunded),
			"updated_at": time.Now().UTC(),
		}); err != nil {
			return err
		}
		if s.obsMetrics != nil {
			s.obsMetrics.RecordDonation(ctx, string(domain.StatusRefunded))
		}
	}
	s.audit(ctx, "donation.refunded", donation, map[string]any{
		"refund_amount": amount,
		"full_refund":   full,
	})
	return nil
}

func (s *service) load(ctx context.Context, id string) (*domain.Donation, error) {
	donationID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || donationID == 0 {
		return nil, domain.ErrInvalidID
	}
	return s.repo.FindByID(ctx, s.db, donationID)
}

func (s *service) authorizeRefund(ctx context.Context, donation *domain.Donation) error {
	user, ok := usercontext.UserFromContext(ctx)
	if !ok {
		return domain.ErrForbidden
	}
	if user.Role == authdomain.RoleAdmin {
		return nil
	}
	campaign, err := s.campaignRepo.FindByID(ctx, s.db, donation.CampaignID)
	if err != nil {
		return err
	}
	if campaign.OrganizerID != user.ID {
		return domain.ErrForbidden
	}
	return nil
}

func (s *service) audit(ctx context.Context, action string, donation *domain.Donation, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["campaign_id"] = donation.CampaignID.String()
	metadata["currency"] = donation.Currency

	targetID := donation.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "donation", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.Error(err), zap.String("action", action))
	}
}

func toResponse(donation *domain.Donation) domain.Response {
	resp := domain.Response{
		ID:               donation.ID.String(),
		CampaignID:       donation.CampaignID.String(),
		DonorName:        donation.DonorName,
		GrossAmount:      donation.GrossAmount,
		ProcessorFee:     donation.ProcessorFee,
		PlatformFee:      donation.PlatformFee,
		NetAmount:        donation.NetAmount,
		TotalCharge:      donation.TotalCharge,
		CoverFees:        donation.CoverFees,
		Currency:         donation.Currency,
		Status:           donation.Status,
		Provider:         donation.Provider,
		ProviderIntentID: donation.ProviderIntentID,
		FailureReason:    donation.FailureReason,
		CreatedAt:        donation.CreatedAt,
	}
	if donation.DonorID != nil {
		resp.DonorID = donation.DonorID.String()
	}
	return resp
}
