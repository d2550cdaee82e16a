package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PayoutConfig is the admin-tunable monetization policy. It controls the
// eligibility thresholds, the default earnings split applied on approval and
// the withdrawal floor.
type PayoutConfig struct {
	FollowerThreshold  int     `mapstructure:"followerThreshold"`
	TrackThreshold     int     `mapstructure:"trackThreshold"`
	DefaultRate        float64 `mapstructure:"defaultRate"`
	DefaultCommission  float64 `mapstructure:"defaultCommission"`
	MinWithdrawal      int64   `mapstructure:"minWithdrawal"`
	Currency           string  `mapstructure:"currency"`
	EnforceEligibility bool    `mapstructure:"enforceEligibility"`
}

func DefaultPayoutConfig() PayoutConfig {
	return PayoutConfig{
		FollowerThreshold:  20,
		TrackThreshold:     3,
		DefaultRate:        1.00,
		DefaultCommission:  20,
		MinWithdrawal:      10,
		Currency:           "RWF",
		EnforceEligibility: false,
	}
}

type PayoutConfigHolder struct {
	current atomic.Value // holds PayoutConfig
}

// NewPayoutConfigHolder loads payout.yml and keeps the active policy hot-reloadable.
func NewPayoutConfigHolder() (*PayoutConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("payout")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tunevault/config")
	v.AddConfigPath("/etc/tunevault")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TUNEVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPayoutConfig()
	v.SetDefault("payout.followerThreshold", defaults.FollowerThreshold)
	v.SetDefault("payout.trackThreshold", defaults.TrackThreshold)
	v.SetDefault("payout.defaultRate", defaults.DefaultRate)
	v.SetDefault("payout.defaultCommission", defaults.DefaultCommission)
	v.SetDefault("payout.minWithdrawal", defaults.MinWithdrawal)
	v.SetDefault("payout.currency", defaults.Currency)
	v.SetDefault("payout.enforceEligibility", defaults.EnforceEligibility)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg PayoutConfig
	if err := v.UnmarshalKey("payout", &cfg); err != nil {
		return nil, err
	}
	if err := validatePayoutConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PayoutConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PayoutConfig
		if err := v.UnmarshalKey("payout", &updated); err != nil {
			log.Printf("[payout-config] reload failed: %v", err)
			return
		}
		if err := validatePayoutConfig(updated); err != nil {
			log.Printf("[payout-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[payout-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPayoutConfigHolder returns a holder pinned to cfg. Used in tests.
func NewStaticPayoutConfigHolder(cfg PayoutConfig) *PayoutConfigHolder {
	holder := &PayoutConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PayoutConfigHolder) Get() PayoutConfig {
	return h.current.Load().(PayoutConfig)
}

func validatePayoutConfig(cfg PayoutConfig) error {
	if cfg.FollowerThreshold < 0 || cfg.TrackThreshold < 0 {
		return errors.New("payout thresholds cannot be negative")
	}
	if cfg.DefaultRate < 0 {
		return errors.New("payout.defaultRate cannot be negative")
	}
	if cfg.DefaultCommission < 0 || cfg.DefaultCommission > 100 {
		return errors.New("payout.defaultCommission must be within 0-100")
	}
	if cfg.MinWithdrawal < 0 {
		return errors.New("payout.minWithdrawal cannot be negative")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("payout.currency is required")
	}
	return nil
}
