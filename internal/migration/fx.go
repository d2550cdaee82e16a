package migration

import (
	"github.com/tunevault/tunevault/internal/config"
	"github.com/tunevault/tunevault/internal/creatorstats"
	monetizationdomain "github.com/tunevault/tunevault/internal/monetization/domain"
	paymentdomain "github.com/tunevault/tunevault/internal/payment/domain"
	"github.com/tunevault/tunevault/internal/seed"
	withdrawaldomain "github.com/tunevault/tunevault/internal/withdrawal/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := conn.AutoMigrate(
				&creatorstats.CreatorProfile{},
				&creatorstats.Track{},
				&monetizationdomain.Account{},
				&paymentdomain.Payment{},
				&withdrawaldomain.Withdrawal{},
			); err != nil {
				return err
			}
		}

		if cfg.SeedDemoData {
			return seed.EnsureDemoCatalog(conn)
		}
		return nil
	}),
)
