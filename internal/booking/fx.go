package booking

import (
	"github.com/fiscoach/fiscoach/internal/booking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("booking.service",
	fx.Provide(service.New),
)
