package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/fiscoach/fiscoach/internal/config"
	"github.com/fiscoach/fiscoach/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if err := seed.EnsureDefaultOrg(conn); err != nil {
			return err
		}
		return seed.EnsureAdmin(conn, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminToken)
	}),
)
