package migration

import (
	"strings"

	"github.com/stridehealth/stride/internal/config"
	ledgerdomain "github.com/stridehealth/stride/internal/ledger/domain"
	paymentdomain "github.com/stridehealth/stride/internal/payment/domain"
	plandomain "github.com/stridehealth/stride/internal/plan/domain"
	redemptiondomain "github.com/stridehealth/stride/internal/redemption/domain"
	stepsdomain "github.com/stridehealth/stride/internal/steps/domain"
	subscriptiondomain "github.com/stridehealth/stride/internal/subscription/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if strings.EqualFold(cfg.DBType, "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Versioned migrations target postgres; other dialects are for
		// local development and get the schema straight from the models.
		if err := conn.AutoMigrate(
			&ledgerdomain.UserCoinAccount{},
			&stepsdomain.StepsConfig{},
			&stepsdomain.StepsHistory{},
			&redemptiondomain.CoinRedemption{},
			&redemptiondomain.CoinRedemptionHistory{},
			&plandomain.SubscriptionPlan{},
			&subscriptiondomain.UserSubscription{},
			&paymentdomain.PaymentIntent{},
		); err != nil {
			return err
		}

		// Partial indexes cannot be expressed in struct tags; the
		// single-active-subscription invariant depends on this one.
		return conn.Exec(
			`CREATE UNIQUE INDEX IF NOT EXISTS ux_user_subscriptions_active
			 ON user_subscriptions (user_id) WHERE status = 'active'`,
		).Error
	}),
)
