package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	campaignrepo "masjid/internal/campaigns/repository"
	ledgerrepo "masjid/internal/ledger/repository"
	"masjid/internal/migrations/mongo/validators"
	"masjid/pkg/logger"
)

type CollectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

var (
	IftarDatesIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "year", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "sponsor_reference", Value: 1}}},
		{
			Keys:    bson.D{{Key: "pending_since", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	CampaignsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "year", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		// At most one campaign may be active.
		{
			Keys: bson.D{{Key: "is_active", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_active": true}),
		},
	}

	ReconciliationsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "date_id", Value: 1}, {Key: "payment_intent_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "resolved", Value: 1}, {Key: "created_at", Value: -1}}},
	}
)

func Collections() map[string]CollectionDef {
	return map[string]CollectionDef{
		ledgerrepo.DatesCollection: {
			Indexes:   IftarDatesIndexes,
			Validator: validators.IftarDateValidator,
		},
		campaignrepo.CampaignsCollection: {
			Indexes:   CampaignsIndexes,
			Validator: validators.CampaignValidator,
		},
		ledgerrepo.ReconciliationsCollection: {
			Indexes:   ReconciliationsIndexes,
			Validator: validators.ReconciliationValidator,
		},
	}
}

// RunMigration creates the ledger collections with their validators and
// indexes. It is safe to run repeatedly.
func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	for name, def := range Collections() {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
