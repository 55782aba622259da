package transaction

import (
	"github.com/fiscoach/fiscoach/internal/transaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.service",
	fx.Provide(service.New),
)
