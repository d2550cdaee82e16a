package payment

import (
	"github.com/tunevault/tunevault/internal/config"
	"github.com/tunevault/tunevault/internal/payment/domain"
	"github.com/tunevault/tunevault/internal/payment/gateway"
	"github.com/tunevault/tunevault/internal/payment/repository"
	"github.com/tunevault/tunevault/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config, log *zap.Logger) gateway.Gateway {
		return gateway.NewClient(cfg, log)
	}),
	fx.Provide(service.NewService),
	fx.Provide(func(repo domain.Repository) domain.EarningsSource {
		return repo
	}),
)
