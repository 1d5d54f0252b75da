package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	campaignerrors "masjid/internal/campaigns/errors"
	"masjid/pkg/config"
	mongotx "masjid/pkg/db/mongo"
	"masjid/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoCampaignRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoCampaignRepository(cfg *config.Config) CampaignRepository {
	return &mongoCampaignRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(CampaignsCollection),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoCampaignRepository) Upsert(ctx context.Context, settings *model.CampaignSettings) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"start_date":    settings.StartDate,
			"end_date":      settings.EndDate,
			"cost_per_slot": settings.CostPerSlot,
			"currency":      settings.Currency,
			"capacity":      settings.Capacity,
			"title":         settings.Title,
			"description":   settings.Description,
			"updated_at":    settings.UpdatedAt,
		},
		"$setOnInsert": bson.M{"is_active": false},
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"year": settings.Year}, update, options.Update().SetUpsert(true))
	if err != nil {
		return storeError("upsert campaign", err)
	}
	return nil
}

func (r *mongoCampaignRepository) FindByYear(ctx context.Context, year int) (*model.CampaignSettings, error) {
	return r.findOne(ctx, bson.M{"year": year}, fmt.Errorf("%w: %d", campaignerrors.ErrNotFound, year))
}

func (r *mongoCampaignRepository) FindActive(ctx context.Context) (*model.CampaignSettings, error) {
	return r.findOne(ctx, bson.M{"is_active": true}, campaignerrors.ErrNoActiveCampaign)
}

func (r *mongoCampaignRepository) findOne(ctx context.Context, filter bson.M, notFound error) (*model.CampaignSettings, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var settings model.CampaignSettings
	if err := r.collection.FindOne(ctx, filter).Decode(&settings); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound
		}
		return nil, storeError("find campaign", err)
	}
	return &settings, nil
}

func (r *mongoCampaignRepository) List(ctx context.Context) ([]*model.CampaignSettings, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "year", Value: -1}}))
	if err != nil {
		return nil, storeError("list campaigns", err)
	}
	defer cursor.Close(ctx)

	campaigns := make([]*model.CampaignSettings, 0)
	if err := cursor.All(ctx, &campaigns); err != nil {
		return nil, storeError("decode campaigns", err)
	}
	return campaigns, nil
}

// Activate flips the flags inside one transaction. The partial unique index
// on is_active rejects a second active row if two activations interleave.
func (r *mongoCampaignRepository) Activate(ctx context.Context, year int, now time.Time) error {
	err := r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := r.collection.UpdateMany(sessCtx,
			bson.M{"is_active": true, "year": bson.M{"$ne": year}},
			bson.M{"$set": bson.M{"is_active": false, "updated_at": now}},
		); err != nil {
			return fmt.Errorf("failed to deactivate other campaigns: %w", err)
		}

		result, err := r.collection.UpdateOne(sessCtx,
			bson.M{"year": year},
			bson.M{"$set": bson.M{"is_active": true, "updated_at": now}},
		)
		if err != nil {
			return fmt.Errorf("failed to activate campaign: %w", err)
		}
		if result.MatchedCount == 0 {
			return fmt.Errorf("%w: %d", campaignerrors.ErrNotFound, year)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, campaignerrors.ErrNotFound) {
			return err
		}
		return storeError("activate campaign", err)
	}
	return nil
}

func (r *mongoCampaignRepository) Deactivate(ctx context.Context, year int, now time.Time) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"year": year, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": now}},
	)
	if err != nil {
		return false, storeError("deactivate campaign", err)
	}
	if result.MatchedCount == 1 {
		return true, nil
	}

	if _, err := r.FindByYear(ctx, year); err != nil {
		return false, err
	}
	return false, nil
}

func storeError(op string, err error) error {
	if mongotx.IsUnavailable(err) {
		return fmt.Errorf("%w: failed to %s: %w", campaignerrors.ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
