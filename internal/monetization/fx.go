package monetization

import (
	"github.com/tunevault/tunevault/internal/monetization/repository"
	"github.com/tunevault/tunevault/internal/monetization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("monetization.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
