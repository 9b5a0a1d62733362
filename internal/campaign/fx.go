package campaign

import (
	"github.com/classfund/classfund/internal/campaign/repository"
	"github.com/classfund/classfund/internal/campaign/service"
	"go.uber.org/fx"
)

var Module = fx.Module("campaign.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
