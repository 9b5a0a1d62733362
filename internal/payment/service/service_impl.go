package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	donationdomain "github.com/classfund/classfund/internal/donation/domain"
	obsmetrics "github.com/classfund/classfund/internal/observability/metrics"
	paymentdomain "github.com/classfund/classfund/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         paymentdomain.Repository
	DonationRepo donationdomain.Repository
	DonationSvc  donationdomain.Service
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         paymentdomain.Repository
	donationRepo donationdomain.Repository
	donationSvc  donationdomain.Service
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		donationRepo: p.DonationRepo,
		donationSvc:  p.DonationSvc,
		obsMetrics:   p.ObsMetrics,
	}
}

// ProcessEvent stores and dispatches one provider event. The payment_events
// insert-if-absent is the exactly-once primitive: a replay of a processed
// event id returns ErrEventAlreadyProcessed, and a handler failure leaves the
// stored event unprocessed so the provider retries.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent, payload []byte) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}
	if err := validateEvent(event); err != nil {
		return err
	}

	donation, err := s.resolveDonation(ctx, event)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Amount:          event.Amount,
		Currency:        event.Currency,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	if donation != nil {
		received.DonationID = &donation.ID
		received.CampaignID = &donation.CampaignID
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.Processed {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	if err := s.dispatch(ctx, stored, event, donation); err != nil {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, time.Now().UTC()); err != nil {
		return err
	}

	if inserted && s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}

	return nil
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded, paymentdomain.EventTypeRefunded:
		if event.Amount <= 0 {
			return paymentdomain.ErrInvalidAmount
		}
		if strings.TrimSpace(event.Currency) == "" {
			return paymentdomain.ErrInvalidCurrency
		}
		event.Currency = strings.ToLower(strings.TrimSpace(event.Currency))
	case paymentdomain.EventTypePaymentFailed, paymentdomain.EventTypeUnknown:
	default:
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}

// resolveDonation finds the donation an event refers to, preferring the
// donation_id metadata and falling back to the provider intent id. Unknown
// events carry no donation linkage.
func (s *Service) resolveDonation(ctx context.Context, event *paymentdomain.PaymentEvent) (*donationdomain.Donation, error) {
	if event.Type == paymentdomain.EventTypeUnknown {
		return nil, nil
	}

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

	s.log.Warn("payment event references no known donation",
		zap.String("provider", event.Provider),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("event_type", event.Type))
	return nil, paymentdomain.ErrInvalidDonation
}

func (s *Service) dispatch(ctx context.Context, stored *paymentdomain.EventRecord, event *paymentdomain.PaymentEvent, donation *donationdomain.Donation) error {
	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded:
		return s.donationSvc.Settle(ctx, donation.ID, event.OccurredAt)
	case paymentdomain.EventTypeRefunded:
		return s.donationSvc.ApplyRefund(ctx, donation.ID, event.Amount, event.ProviderEventID, event.OccurredAt)
	case paymentdomain.EventTypePaymentFailed:
		return s.donationSvc.MarkFailed(ctx, donation.ID, event.FailureReason)
	case paymentdomain.EventTypeUnknown:
		// Recorded for inspection, no side effect.
		s.log.Info("unrecognized payment event recorded",
			zap.String("provider", stored.Provider),
			zap.String("provider_event_id", stored.ProviderEventID),
			zap.String("provider_event_type", event.ProviderEventType))
		return nil
	default:
		return paymentdomain.ErrInvalidEvent
	}
}
