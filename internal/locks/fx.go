package locks

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/tunevault/tunevault/internal/config"
	"go.uber.org/fx"
)

func NewFromConfig(cfg config.Config) *Locker {
	if !cfg.Redis.Enabled || cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return NewLocker(client)
}

var Module = fx.Module("locks",
	fx.Provide(NewFromConfig),
	fx.Provide(NewKeyedMutex),
)
