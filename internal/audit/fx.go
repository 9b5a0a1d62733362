package audit

import (
	"github.com/classfund/classfund/internal/audit/repository"
	"github.com/classfund/classfund/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
