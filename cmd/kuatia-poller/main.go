package main

import (
	"context"

	"github.com/arandulabs/kuatia/internal/config"
	"github.com/arandulabs/kuatia/internal/customer"
	"github.com/arandulabs/kuatia/internal/fiscal/document"
	"github.com/arandulabs/kuatia/internal/fiscal/sifen"
	"github.com/arandulabs/kuatia/internal/fiscal/sign"
	"github.com/arandulabs/kuatia/internal/invoice"
	"github.com/arandulabs/kuatia/internal/observability"
	"github.com/arandulabs/kuatia/internal/order"
	"github.com/arandulabs/kuatia/internal/poller"
	"github.com/arandulabs/kuatia/internal/sequence"
	"github.com/arandulabs/kuatia/internal/submitlock"
	"github.com/arandulabs/kuatia/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,

		// The invoice lifecycle and its fiscal dependencies; no HTTP server.
		sequence.Module,
		submitlock.Module,
		document.Module,
		sign.Module,
		sifen.Module,
		customer.Module,
		order.Module,
		invoice.Module,

		poller.Module,
		fx.Invoke(StartPoller),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

func StartPoller(lc fx.Lifecycle, w *poller.Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go w.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
