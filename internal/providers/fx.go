package providers

import (
	"github.com/fiscoach/fiscoach/internal/providers/email"
	"github.com/fiscoach/fiscoach/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	slack.Module,
)
