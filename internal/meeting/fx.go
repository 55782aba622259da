package meeting

import (
	"time"

	"github.com/fiscoach/fiscoach/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.meeting",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	if cfg.Meeting.BaseURL == "" {
		return &NoOpProvider{}
	}
	return NewHTTP(HTTPConfig{
		BaseURL:   cfg.Meeting.BaseURL,
		AuthToken: cfg.Meeting.AuthToken,
		Timeout:   time.Duration(cfg.Meeting.TimeoutSeconds) * time.Second,
	})
}
