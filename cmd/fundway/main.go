package main

import (
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
	"github.com/pledgekit/fundway/internal/server"
	"github.com/pledgekit/fundway/internal/totals"
	"github.com/pledgekit/fundway/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		cache.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		outbox.Module,
		idempotency.Module,
		pledge.Module,
		payment.Module,
		totals.Module,

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
