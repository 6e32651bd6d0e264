package migrate

import (
	"context"

	"github.com/angelmondragon/velora-notify/pkg/config"
	"github.com/angelmondragon/velora-notify/pkg/db"
	"github.com/angelmondragon/velora-notify/pkg/logger"
)

// MaybeRunDev applies pending migrations automatically in dev environments,
// so a local host comes up against a current schema without a separate step.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !cfg.App.IsDev() {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return err
	}
	logg.Info(ctx, "applying dev migrations")
	return Run(ctx, sqlDB, DefaultDir, "up")
}
