package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/classfund/classfund/internal/config"
	"github.com/classfund/classfund/internal/payment/adapters"
	disputedomain "github.com/classfund/classfund/internal/payment/dispute/domain"
	disputeservice "github.com/classfund/classfund/internal/payment/dispute/service"
	paymentdomain "github.com/classfund/classfund/internal/payment/domain"
	paymentservice "github.com/classfund/classfund/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	DisputeSvc *disputeservice.Service
	Adapters   *adapters.Registry
	Cfg        config.Config
}

type Service struct {
	log           *zap.Logger
	paymentSvc    *paymentservice.Service
	disputeSvc    *disputeservice.Service
	adapters      *adapters.Registry
	webhookSecret string
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		log:           p.Log.Named("payment.webhook"),
		paymentSvc:    p.PaymentSvc,
		disputeSvc:    p.DisputeSvc,
		adapters:      p.Adapters,
		webhookSecret: strings.TrimSpace(p.Cfg.StripeWebhookSecret),
	}
}

// IngestWebhook verifies, parses and dispatches one provider delivery.
// Signature verification is cryptographic in every environment.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.IngestResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return nil, paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return nil, paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.NewAdapter(provider, paymentdomain.AdapterConfig{
		Provider:      provider,
		WebhookSecret: s.webhookSecret,
	})
	if err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidConfig) {
			s.log.Warn("webhook secret not configured", zap.String("provider", provider))
		}
		return nil, err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return nil, err
	}

	if disputeAdapter, ok := adapter.(disputedomain.DisputeAdapter); ok {
		disputeEvent, err := disputeAdapter.ParseDispute(ctx, payload)
		if err == nil {
			disputeEvent.Provider = provider
			if disputeEvent.RawPayload == nil {
				disputeEvent.RawPayload = payload
			}
			result := &paymentdomain.IngestResult{
				Provider:        provider,
				ProviderEventID: disputeEvent.ProviderEventID,
			}
			return result, s.disputeSvc.ProcessEvent(ctx, disputeEvent)
		}
		if !errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil, err
		}
	}

	paymentEvent, err := adapter.Parse(ctx, payload)
	if err != nil {
		return nil, err
	}
	paymentEvent.Provider = provider
	if paymentEvent.RawPayload == nil {
		paymentEvent.RawPayload = payload
	}

	result := &paymentdomain.IngestResult{
		Provider:        provider,
		ProviderEventID: paymentEvent.ProviderEventID,
	}
	return result, s.paymentSvc.ProcessEvent(ctx, paymentEvent, payload)
}
