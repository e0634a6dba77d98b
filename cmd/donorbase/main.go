package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/opencollect/donorbase/internal/audit"
	"github.com/opencollect/donorbase/internal/campaign"
	campaigndomain "github.com/opencollect/donorbase/internal/campaign/domain"
	"github.com/opencollect/donorbase/internal/clock"
	"github.com/opencollect/donorbase/internal/config"
	"github.com/opencollect/donorbase/internal/entitlement"
	entitlementdomain "github.com/opencollect/donorbase/internal/entitlement/domain"
	"github.com/opencollect/donorbase/internal/gateway"
	"github.com/opencollect/donorbase/internal/logger"
	"github.com/opencollect/donorbase/internal/migration"
	"github.com/opencollect/donorbase/internal/scheduler"
	"github.com/opencollect/donorbase/internal/transaction"
	transactiondomain "github.com/opencollect/donorbase/internal/transaction/domain"
	"github.com/opencollect/donorbase/internal/webhook"
	webhookdomain "github.com/opencollect/donorbase/internal/webhook/domain"
	"github.com/opencollect/donorbase/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		audit.Module,
		gateway.Module,
		entitlement.Module,
		transaction.Module,
		campaign.Module,
		webhook.Module,
		scheduler.Module,

		// Force the graph so lifecycle hooks attach even before a
		// transport surface is mounted.
		fx.Invoke(func(
			transactiondomain.Service,
			webhookdomain.Service,
			entitlementdomain.Service,
			campaigndomain.Service,
		) {
		}),
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
