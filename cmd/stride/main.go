package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/stridehealth/stride/internal/clock"
	"github.com/stridehealth/stride/internal/config"
	"github.com/stridehealth/stride/internal/ledger"
	"github.com/stridehealth/stride/internal/migration"
	"github.com/stridehealth/stride/internal/observability"
	"github.com/stridehealth/stride/internal/payment"
	"github.com/stridehealth/stride/internal/plan"
	"github.com/stridehealth/stride/internal/redemption"
	"github.com/stridehealth/stride/internal/server"
	"github.com/stridehealth/stride/internal/steps"
	"github.com/stridehealth/stride/internal/subscription"
	"github.com/stridehealth/stride/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		ledger.Module,
		steps.Module,
		redemption.Module,
		plan.Module,
		subscription.Module,
		payment.Module,

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
