package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/pledgekit/fundway/internal/cache"
	"github.com/pledgekit/fundway/internal/clock"
	"github.com/pledgekit/fundway/internal/config"
	"github.com/pledgekit/fundway/internal/idempotency"
	"github.com/pledgekit/fundway/internal/migration"
	"github.com/pledgekit/fundway/internal/observability"
	"github.com/pledgekit/fundway/internal/outbox"
	"github.com/pledgekit/fundway/internal/payment"
	"github.com/pledgekit/fundway/internal/pledge"
	pledgeservice "github.com/pledgekit/fundway/internal/pledge/service"
	"github.com/pledgekit/fundway/internal/scheduler"
	"github.com/pledgekit/fundway/internal/totals"
	totalsservice "github.com/pledgekit/fundway/internal/totals/service"
	"github.com/pledgekit/fundway/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		cache.Module,
		clock.Module,
		migration.Module,

		// Domain services required by the relay and its jobs
		outbox.Module,
		idempotency.Module,
		pledge.Module,
		payment.Module,
		totals.Module,
		scheduler.Module,

		// Stream consumers only run in this process
		pledge.ConsumerModule,
		totals.ConsumerModule,

		// No server module!
		fx.Invoke(StartConsumers),
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

func StartConsumers(lc fx.Lifecycle, settle *pledgeservice.Consumer, invalidate *totalsservice.Consumer) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go settle.Run(ctx)
			go invalidate.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
