package organization

import (
	"github.com/fiscoach/fiscoach/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(service.New),
)
