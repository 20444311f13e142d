package migrate

import (
	"context"
	"fmt"

	"github.com/mtarikucar/kds-sub004/pkg/config"
	"github.com/mtarikucar/kds-sub004/pkg/db"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot in dev when the
// AutoMigrate flag is on. SQLite databases are skipped.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if cfg.DB.IsSQLite() {
		logg.Warn(ctx, "skipping dev auto-migrate: migrations target postgres")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	source, err := Source("")
	if err != nil {
		return err
	}
	runner, err := NewRunner(sqlDB, source)
	if err != nil {
		return err
	}

	applied, err := runner.Apply(ctx, "up")
	for _, a := range applied {
		logg.Info(logg.WithFields(ctx, map[string]any{"version": a.Version, "file": a.Path}), "migration applied")
	}
	if err != nil {
		return fmt.Errorf("dev auto-migrate: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "applied": len(applied)}), "dev auto-migrate complete")
	return nil
}
