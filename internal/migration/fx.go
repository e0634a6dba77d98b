package migration

import (
	auditdomain "github.com/opencollect/donorbase/internal/audit/domain"
	campaigndomain "github.com/opencollect/donorbase/internal/campaign/domain"
	"github.com/opencollect/donorbase/internal/config"
	entitlementdomain "github.com/opencollect/donorbase/internal/entitlement/domain"
	transactiondomain "github.com/opencollect/donorbase/internal/transaction/domain"
	webhookdomain "github.com/opencollect/donorbase/internal/webhook/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Versioned migrations are postgres only. Other dialects are for
		// local development and lean on gorm's schema sync.
		return conn.AutoMigrate(
			&transactiondomain.Tenant{},
			&transactiondomain.MonetaryRecord{},
			&transactiondomain.ReceiptSequence{},
			&webhookdomain.CallbackRecord{},
			&campaigndomain.Campaign{},
			&campaigndomain.CampaignMilestone{},
			&campaigndomain.CampaignPosting{},
			&campaigndomain.CampaignContributor{},
			&entitlementdomain.TenantEntitlement{},
			&entitlementdomain.UsageCounter{},
			&auditdomain.AuditLog{},
		)
	}),
)
