package main

import (
	"github.com/arandulabs/kuatia/internal/migration"
	"github.com/arandulabs/kuatia/internal/observability"
	"github.com/arandulabs/kuatia/internal/server"
	"github.com/arandulabs/kuatia/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
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
