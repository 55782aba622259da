package coach

import (
	"github.com/fiscoach/fiscoach/internal/coach/service"
	"go.uber.org/fx"
)

var Module = fx.Module("coach.service",
	fx.Provide(service.New),
)
