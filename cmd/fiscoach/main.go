package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/fiscoach/fiscoach/internal/migration"
	"github.com/fiscoach/fiscoach/internal/observability"
	"github.com/fiscoach/fiscoach/internal/server"
	"github.com/fiscoach/fiscoach/pkg/db"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
