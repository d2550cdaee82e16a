package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tunevault/tunevault/internal/clock"
	"github.com/tunevault/tunevault/internal/config"
	"github.com/tunevault/tunevault/internal/creatorstats"
	"github.com/tunevault/tunevault/internal/locks"
	"github.com/tunevault/tunevault/internal/logger"
	"github.com/tunevault/tunevault/internal/migration"
	"github.com/tunevault/tunevault/internal/monetization"
	"github.com/tunevault/tunevault/internal/observability"
	"github.com/tunevault/tunevault/internal/payment"
	"github.com/tunevault/tunevault/internal/ratelimit"
	"github.com/tunevault/tunevault/internal/scheduler"
	"github.com/tunevault/tunevault/internal/server"
	"github.com/tunevault/tunevault/internal/withdrawal"
	"github.com/tunevault/tunevault/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		locks.Module,
		ratelimit.Module,
		migration.Module,

		// Ledger domains
		creatorstats.Module,
		monetization.Module,
		payment.Module,
		withdrawal.Module,

		scheduler.Module,
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
