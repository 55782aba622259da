package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BookingConfig holds the reservation protocol tunables. These live in an
// optional config file so operators can adjust lock behavior without a
// redeploy; environment variables override file values.
type BookingConfig struct {
	// LockTimeout bounds how long a reserve transaction may wait for the
	// slot row lock before giving up.
	LockTimeout time.Duration `mapstructure:"lockTimeout"`
	// ReserveTimeout bounds the whole reserve transaction.
	ReserveTimeout time.Duration `mapstructure:"reserveTimeout"`

	OutboxBatchSize int           `mapstructure:"outboxBatchSize"`
	OutboxInterval  time.Duration `mapstructure:"outboxInterval"`
	OutboxMaxTries  int           `mapstructure:"outboxMaxTries"`
}

func DefaultBookingConfig() BookingConfig {
	return BookingConfig{
		LockTimeout:     2 * time.Second,
		ReserveTimeout:  5 * time.Second,
		OutboxBatchSize: 50,
		OutboxInterval:  5 * time.Second,
		OutboxMaxTries:  10,
	}
}

// LoadBookingConfig reads booking tunables from booking.yml when present and
// falls back to defaults otherwise.
func LoadBookingConfig() BookingConfig {
	v := viper.New()

	v.SetConfigName("booking")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/fiscoach")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FISCOACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBookingConfig()
	v.SetDefault("booking.lockTimeout", defaults.LockTimeout)
	v.SetDefault("booking.reserveTimeout", defaults.ReserveTimeout)
	v.SetDefault("booking.outboxBatchSize", defaults.OutboxBatchSize)
	v.SetDefault("booking.outboxInterval", defaults.OutboxInterval)
	v.SetDefault("booking.outboxMaxTries", defaults.OutboxMaxTries)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return defaults
		}
	}

	var cfg BookingConfig
	if err := v.UnmarshalKey("booking", &cfg); err != nil {
		return defaults
	}
	cfg.normalize(defaults)
	return cfg
}

func (c *BookingConfig) normalize(defaults BookingConfig) {
	if c.LockTimeout <= 0 {
		c.LockTimeout = defaults.LockTimeout
	}
	if c.ReserveTimeout <= 0 {
		c.ReserveTimeout = defaults.ReserveTimeout
	}
	if c.OutboxBatchSize <= 0 {
		c.OutboxBatchSize = defaults.OutboxBatchSize
	}
	if c.OutboxInterval <= 0 {
		c.OutboxInterval = defaults.OutboxInterval
	}
	if c.OutboxMaxTries <= 0 {
		c.OutboxMaxTries = defaults.OutboxMaxTries
	}
}
