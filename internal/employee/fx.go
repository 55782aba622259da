package employee

import (
	"github.com/fiscoach/fiscoach/internal/employee/service"
	"go.uber.org/fx"
)

var Module = fx.Module("employee.service",
	fx.Provide(service.New),
)
