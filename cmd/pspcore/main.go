// Command pspcore is the composition root: it wires every bounded context's
// fx module behind the Facade, applies migrations, and idles as a worker
// process. There is no HTTP/gRPC surface (spec's Non-goals exclude an outer
// API); this core is a library of domain services meant to be embedded by a
// caller, with this binary existing to prove the wiring boots, following the
// donor's cmd/valora/main.go fx.New/app.Run shape. It registers no scheduled
// job: reconciliation runs only when a caller invokes it.
package main

import (
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payroll-psp-core/internal/config"
	"github.com/smallbiznis/payroll-psp-core/internal/events"
	"github.com/smallbiznis/payroll-psp-core/internal/fundinggate"
	"github.com/smallbiznis/payroll-psp-core/internal/ledger"
	"github.com/smallbiznis/payroll-psp-core/internal/liability"
	"github.com/smallbiznis/payroll-psp-core/internal/migration"
	"github.com/smallbiznis/payroll-psp-core/internal/observability"
	"github.com/smallbiznis/payroll-psp-core/internal/payment"
	"github.com/smallbiznis/payroll-psp-core/internal/payment/providers"
	"github.com/smallbiznis/payroll-psp-core/internal/payment/providers/railclient"
	"github.com/smallbiznis/payroll-psp-core/internal/psp"
	"github.com/smallbiznis/payroll-psp-core/internal/ratelimit"
	"github.com/smallbiznis/payroll-psp-core/internal/reconciliation"
	"github.com/smallbiznis/payroll-psp-core/pkg/db"
	"github.com/smallbiznis/payroll-psp-core/pkg/idgen"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		fx.Provide(config.Load),
		observability.Module,
		fx.Provide(newSnowflakeNode),
		fx.Provide(idgen.NewSequencer),
		fx.Provide(newRedisClient),
		fx.Provide(ratelimit.NewSubmitGuard),
		fx.Provide(newPolicyHolder),
		db.Module,

		fx.Provide(newRailConfig),
		providers.Module,

		events.Module,
		ledger.Module,
		fundinggate.Module,
		payment.Module,
		reconciliation.Module,
		liability.Module,
		psp.Module,

		fx.Invoke(runMigrations),
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
}

func newPolicyHolder() (*config.PolicyConfigHolder, error) {
	return config.NewPolicyConfigHolder("configs/policy.yaml", "/etc/pspcore/policy.yaml")
}

// newRailConfig reads rail base URLs/keys from the environment; a blank
// BaseURL leaves that rail's adapter out of the registry, per
// providers.NewRegistryFromConfig.
func newRailConfig() providers.RailConfig {
	return providers.RailConfig{
		ACH:    railclient.Config{BaseURL: envOr("ACH_RAIL_BASE_URL", ""), APIKey: envOr("ACH_RAIL_API_KEY", "")},
		RTP:    railclient.Config{BaseURL: envOr("RTP_RAIL_BASE_URL", ""), APIKey: envOr("RTP_RAIL_API_KEY", "")},
		FedNow: railclient.Config{BaseURL: envOr("FEDNOW_RAIL_BASE_URL", ""), APIKey: envOr("FEDNOW_RAIL_API_KEY", "")},
		Wire:   railclient.Config{BaseURL: envOr("WIRE_RAIL_BASE_URL", ""), APIKey: envOr("WIRE_RAIL_API_KEY", "")},
	}
}

func runMigrations(conn *gorm.DB, log *zap.Logger) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := migration.RunMigrations(sqlDB); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
