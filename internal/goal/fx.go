package goal

import (
	"github.com/fiscoach/fiscoach/internal/goal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("goal.service",
	fx.Provide(service.New),
)
