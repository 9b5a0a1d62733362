package auth

import (
	"github.com/classfund/classfund/internal/auth/repository"
	"github.com/classfund/classfund/internal/auth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
