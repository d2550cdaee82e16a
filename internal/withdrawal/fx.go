package withdrawal

import (
	"github.com/tunevault/tunevault/internal/withdrawal/repository"
	"github.com/tunevault/tunevault/internal/withdrawal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("withdrawal.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
