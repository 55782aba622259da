package summary

import (
	"github.com/fiscoach/fiscoach/internal/summary/service"
	"go.uber.org/fx"
)

var Module = fx.Module("summary.service",
	fx.Provide(service.New),
)
