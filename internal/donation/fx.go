package donation

import (
	"github.com/classfund/classfund/internal/donation/repository"
	"github.com/classfund/classfund/internal/donation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("donation.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
