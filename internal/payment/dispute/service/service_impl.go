package service

import (
	"context"
	"errors"
	"strings"
	"time"

	auditdomain "github.com/classfund/classfund/internal/audit/domain"
	donationdomain "github.com/classfund/classfund/internal/donation/domain"
	ledgerdomain "github.com/classfund/classfund/internal/ledger/domain"
	disputedomain "github.com/classfund/classfund/internal/payment/dispute/domain"
	paymentdomain "github.com/classfund/classfund/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	LedgerSvc    ledgerdomain.Service
	DonationRepo donationdomain.Repository
	Repo         disputedomain.Repository
	AuditSvc     auditdomain.Service `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	ledgerSvc    ledgerdomain.Service
	donationRepo donationdomain.Repository
	repo         disputedomain.Repository
	auditSvc     auditdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.dispute"),
		genID:        p.GenID,
		ledgerSvc:    p.LedgerSvc,
		donationRepo: p.DonationRepo,
		repo:         p.Repo,
		auditSvc:     p.AuditSvc,
	}
}

// ProcessEvent upserts the dispute row keyed by (provider,
// provider_dispute_id) and applies its ledger effect. The stored
// provider_event_id plus processed_at make replays of the same event no-ops.
func (s *Service) ProcessEvent(ctx context.Context, event *disputedomain.DisputeEvent) error {
	if err := validateDisputeEvent(event); err != nil {
		return err
	}

	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.Reason = strings.TrimSpace(event.Reason)

	donation, err := s.resolveDonation(ctx, event)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var stored *disputedomain.DisputeRecord

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindDisputeForUpdate(ctx, tx, event.Provider, event.ProviderDisputeID)
		if err != nil {
			return err
		}
		if existing != nil && existing.ProviderEventID == event.ProviderEventID && existing.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}

		status := statusForEvent(event.Type)
		if existing == nil {
			record := disputedomain.DisputeRecord{
				ID:                s.genID.Generate(),
				Provider:          event.Provider,
				ProviderDisputeID: event.ProviderDisputeID,
				ProviderEventID:   event.ProviderEventID,
				DonationID:        &donation.ID,
				CampaignID:        &donation.CampaignID,
				Amount:            event.Amount,
				Currency:          event.Currency,
				Status:            status,
				Reason:            event.Reason,
				OpenedAt:          now,
			}
			inserted, err := s.repo.InsertDispute(ctx, tx, &record)
			if err != nil {
				return err
			}
			if !inserted {
				loaded, err := s.repo.FindDisputeForUpdate(ctx, tx, event.Provider, event.ProviderDisputeID)
				if err != nil {
					return err
				}
				if loaded == nil {
					return errors.New("dispute_not_found")
				}
				if loaded.ProviderEventID == event.ProviderEventID && loaded.ProcessedAt != nil {
					return paymentdomain.ErrEventAlreadyProcessed
				}
				existing = loaded
			} else {
				stored = &record
				return nil
			}
		}

		existing.ProviderEventID = event.ProviderEventID
		existing.DonationID = &donation.ID
		existing.CampaignID = &donation.CampaignID
		existing.Amount = event.Amount
		existing.Currency = event.Currency
		if event.Reason != "" {
			existing.Reason = event.Reason
		}
		existing.Status = nextStatus(existing.Status, status)
		if existing.Status == disputedomain.DisputeStatusClosed && existing.ClosedAt == nil {
			closedAt := now
			existing.ClosedAt = &closedAt
		}
		existing.ProcessedAt = nil

		if err := s.repo.UpdateDispute(ctx, tx, existing); err != nil {
			return err
		}
		stored = existing
		return nil
	})
	if err != nil {
		return err
	}
	if stored == nil {
		return paymentdomain.ErrInvalidEvent
	}

	if err := s.applyLedgerEffect(ctx, stored, event, donation); err != nil {
		return err
	}

	action := auditAction(event.Type)
	if action == "" {
		return paymentdomain.ErrInvalidEvent
	}
	s.writeAuditLog(ctx, action, stored, event)

	return s.repo.MarkProcessed(ctx, s.db, stored.ID, now)
}

func (s *Service) resolveDonation(ctx context.Context, event *disputedomain.DisputeEvent) (*donationdomain.Donation, error) {
	if event.DonationID != nil && *event.DonationID != 0 {
		donation, err := s.donationRepo.FindByID(ctx, s.db, *event.DonationID)
		if err == nil {
			return donation, nil
		}
		if !errors.Is(err, donationdomain.ErrNotFound) {
			return nil, err
		}
	}
	if event.ProviderIntentID != "" {
		donation, err := s.donationRepo.FindByProviderIntent(ctx, s.db, event.Provider, event.ProviderIntentID)
		if err == nil {
			return donation, nil
		}
		if !errors.Is(err, donationdomain.ErrNotFound) {
			return nil, err
		}
	}

	s.log.Warn("dispute event references no known donation",
		zap.String("provider", event.Provider),
		zap.String("provider_dispute_id", event.ProviderDisputeID))
	return nil, paymentdomain.ErrInvalidDonation
}

// applyLedgerEffect posts the dispute's financial movement:
// funds withdrawn holds campaign funds against the refund liability,
// funds reinstated releases the hold, a lost close pays the liability
// out of cash. Entries are keyed by dispute id so replays are no-ops.
func (s *Service) applyLedgerEffect(ctx context.Context, stored *disputedomain.DisputeRecord, event *disputedomain.DisputeEvent, donation *donationdomain.Donation) error {
	var (
		sourceType ledgerdomain.LedgerSourceType
		lines      []ledgerdomain.EntryLine
	)

	switch event.Type {
	case disputedomain.EventTypeDisputeFundsWithdrawn:
		sourceType = ledgerdomain.SourceTypeDisputeHold
		lines = []ledgerdomain.EntryLine{
			{AccountCode: ledgerdomain.AccountCodeCampaignFunds, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: event.Amount},
			{AccountCode: ledgerdomain.AccountCodeRefundLiab, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: event.Amount},
		}
	case disputedomain.EventTypeDisputeFundsReinstated:
		sourceType = ledgerdomain.SourceTypeDisputeWin
		lines = []ledgerdomain.EntryLine{
			{AccountCode: ledgerdomain.AccountCodeRefundLiab, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: event.Amount},
			{AccountCode: ledgerdomain.AccountCodeCampaignFunds, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: event.Amount},
		}
	case disputedomain.EventTypeDisputeClosed:
		if event.ProviderStatus != "lost" {
			return nil
		}
		sourceType = ledgerdomain.SourceTypeDisputeLoss
		lines = []ledgerdomain.EntryLine{
			{AccountCode: ledgerdomain.AccountCodeRefundLiab, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: event.Amount},
			{AccountCode: ledgerdomain.AccountCodeCash, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: event.Amount},
		}
	default:
		return nil
	}

	return s.ledgerSvc.CreateEntry(
		ctx,
		donation.CampaignID,
		sourceType,
		stored.ID.String(),
		event.Currency,
		event.OccurredAt,
		lines,
	)
}

func validateDisputeEvent(event *disputedomain.DisputeEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}

	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.ProviderDisputeID = strings.TrimSpace(event.ProviderDisputeID)
	if event.ProviderDisputeID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return paymentdomain.ErrInvalidEvent
	}

	currency := strings.TrimSpace(event.Currency)
	if currency == "" {
		return paymentdomain.ErrInvalidCurrency
	}
	event.Currency = strings.ToLower(currency)
	if event.OccurredAt.IsZero() {
		return paymentdomain.ErrInvalidEvent
	}
	if event.Amount <= 0 {
		return paymentdomain.ErrInvalidAmount
	}

	switch event.Type {
	case disputedomain.EventTypeDisputeCreated,
		disputedomain.EventTypeDisputeFundsWithdrawn,
		disputedomain.EventTypeDisputeFundsReinstated,
		disputedomain.EventTypeDisputeClosed:
		return nil
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

func statusForEvent(eventType string) string {
	switch eventType {
	case disputedomain.EventTypeDisputeCreated:
		return disputedomain.DisputeStatusOpen
	case disputedomain.EventTypeDisputeFundsWithdrawn:
		return disputedomain.DisputeStatusWithdrawn
	case disputedomain.EventTypeDisputeFundsReinstated:
		return disputedomain.DisputeStatusReinstated
	case disputedomain.EventTypeDisputeClosed:
		return disputedomain.DisputeStatusClosed
	default:
		return ""
	}
}

func nextStatus(current string, desired string) string {
	if desired == "" {
		return current
	}
	if current == disputedomain.DisputeStatusClosed {
		return current
	}
	if desired == disputedomain.DisputeStatusClosed {
		return desired
	}

	rank := map[string]int{
		disputedomain.DisputeStatusOpen:       1,
		disputedomain.DisputeStatusWithdrawn:  2,
		disputedomain.DisputeStatusReinstated: 3,
		disputedomain.DisputeStatusClosed:     4,
	}

	currentRank := rank[strings.TrimSpace(current)]
	desiredRank := rank[strings.TrimSpace(desired)]
	if desiredRank == 0 {
		return current
	}
	if currentRank == 0 || desiredRank > currentRank {
		return desired
	}
	return current
}

func (s *Service) writeAuditLog(ctx context.Context, action string, stored *disputedomain.DisputeRecord, event *disputedomain.DisputeEvent) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"provider":            stored.Provider,
		"provider_event_id":   stored.ProviderEventID,
		"provider_dispute_id": stored.ProviderDisputeID,
		"amount":              event.Amount,
		"currency":            event.Currency,
		"status":              stored.Status,
		"occurred_at":         event.OccurredAt.UTC().Format(time.RFC3339),
	}
	if stored.DonationID != nil {
		metadata["donation_id"] = stored.DonationID.String()
	}
	if stored.Reason != "" {
		metadata["reason"] = stored.Reason
	}

	targetID := stored.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "payment_dispute", &targetID, metadata); err != nil {
		s.log.Warn("failed to write dispute audit log", zap.String("action", action), zap.Error(err))
	}
}

func auditAction(eventType string) string {
	switch eventType {
	case disputedomain.EventTypeDisputeCreated:
		return "dispute.opened"
	case disputedomain.EventTypeDisputeFundsWithdrawn:
		return "dispute.funds_withdrawn"
	case disputedomain.EventTypeDisputeFundsReinstated:
		return "dispute.funds_reinstated"
	case disputedomain.EventTypeDisputeClosed:
		return "dispute.closed"
	default:
		return ""
	}
}
