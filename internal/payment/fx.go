package payment

import (
	"github.com/classfund/classfund/internal/config"
	"github.com/classfund/classfund/internal/payment/adapters"
	"github.com/classfund/classfund/internal/payment/adapters/stripe"
	disputerepo "github.com/classfund/classfund/internal/payment/dispute/repository"
	disputeservice "github.com/classfund/classfund/internal/payment/dispute/service"
	"github.com/classfund/classfund/internal/payment/gateway"
	"github.com/classfund/classfund/internal/payment/repository"
	paymentservice "github.com/classfund/classfund/internal/payment/service"
	"github.com/classfund/classfund/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(disputerepo.Provide),
	fx.Provide(func(cfg config.Config, log *zap.Logger) gateway.Gateway {
		if !cfg.PaymentsEnabled() {
			return gateway.NewDisabled()
		}
		return gateway.NewStripe(cfg.StripeSecretKey, cfg.StripeAccountID, log)
	}),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(disputeservice.NewService),
	fx.Provide(webhook.NewService),
)
