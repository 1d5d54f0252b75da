package main

import (
	"context"
	"time"

	mongoMigration "masjid/internal/migrations/mongo"
	"masjid/pkg/config"
)

const JobName = "iftar-migrate"

const migrationTimeout = 2 * time.Minute

func main() {
	cfg := config.Load(JobName)

	// The embedded store applies its schema when it is opened.
	if cfg.StoreDriver != config.StoreMongo {
		cfg.Log.Info("Nothing to migrate", "store_driver", cfg.StoreDriver)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrationTimeout)
	defer cancel()

	cfg.SetMongo()
	defer cfg.Client.GracefulShutdown(ctx, cfg.Log)

	cfg.Log.Info("Migrating iftar collections",
		"database", cfg.MongoDatabaseName,
		"collections", len(mongoMigration.Collections()),
	)
	if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log); err != nil {
		cfg.Log.Fatal("Migration failed", "error", err)
	}
	cfg.Log.Info("Migration completed")
}
