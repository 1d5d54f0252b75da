package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	ledgererrors "masjid/internal/ledger/errors"
	"masjid/pkg/config"
	mongotx "masjid/pkg/db/mongo"
	"masjid/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoReconciliationRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoReconciliationRepository(cfg *config.Config) ReconciliationRepository {
	return &mongoReconciliationRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(ReconciliationsCollection),
	}
}

func (r *mongoReconciliationRepository) Record(ctx context.Context, rec *model.Reconciliation) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, rec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, mongoStoreError("record reconciliation", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		rec.ID = oid.Hex()
	}
	return true, nil
}

func (r *mongoReconciliationRepository) List(ctx context.Context, onlyOpen bool, limit int, offset int64) ([]*model.Reconciliation, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{}
	if onlyOpen {
		filter["resolved"] = false
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, mongoStoreError("query reconciliations", err)
	}
	defer cursor.Close(ctx)

	records := make([]*model.Reconciliation, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, mongoStoreError("decode reconciliations", err)
	}
	return records, nil
}

func (r *mongoReconciliationRepository) Resolve(ctx context.Context, id, note string, now time.Time) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ledgererrors.ErrReconciliationNotFound, id)
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID, "resolved": false},
		bson.M{"$set": bson.M{"resolved": true, "resolution_note": note, "resolved_at": now}},
	)
	if err != nil {
		return false, mongoStoreError("resolve reconciliation", err)
	}
	if result.MatchedCount == 1 {
		return true, nil
	}

	if err := r.collection.FindOne(ctx, bson.M{"_id": objectID}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, fmt.Errorf("%w: %s", ledgererrors.ErrReconciliationNotFound, id)
		}
		return false, mongoStoreError("find reconciliation", err)
	}
	return false, nil
}
