package account

import (
	"github.com/fiscoach/fiscoach/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(service.New),
)
