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

type mongoDateRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoDateRepository(cfg *config.Config) DateRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoDateRepository{
		cfg:        cfg,
		collection: db.Collection(DatesCollection),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoDateRepository) Generate(ctx context.Context, year int, days []string, regenerate bool) (int, error) {
	if !regenerate {
		return r.upsertDays(ctx, year, days)
	}

	var created int
	err := r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := r.collection.DeleteMany(sessCtx, bson.M{"year": year}); err != nil {
			return fmt.Errorf("failed to delete dates for %d: %w", year, err)
		}
		n, err := r.upsertDays(sessCtx, year, days)
		if err != nil {
			return err
		}
		created = n
		return nil
	})
	if err != nil {
		return 0, mongoStoreError("regenerate dates", err)
	}
	return created, nil
}

// upsertDays inserts each day only if (date, year) is absent. A duplicate key
// error means a concurrent generation inserted the row first.
func (r *mongoDateRepository) upsertDays(ctx context.Context, year int, days []string) (int, error) {
	if len(days) == 0 {
		return 0, nil
	}

	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	models := make([]mongo.WriteModel, 0, len(days))
	for _, day := range days {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"date": day, "year": year}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{
				"date":              day,
				"year":              year,
				"available":         true,
				"sponsor_reference": nil,
				"sponsor_name":      nil,
				"sponsor_email":     nil,
				"notes":             "",
				"pending_since":     nil,
				"sponsored_at":      nil,
				"version":           int64(1),
				"created_at":        now,
				"updated_at":        now,
			}}).
			SetUpsert(true))
	}

	result, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return 0, mongoStoreError("generate dates", err)
	}
	if result == nil {
		return 0, nil
	}
	return int(result.UpsertedCount), nil
}

func (r *mongoDateRepository) ListByYear(ctx context.Context, year int, onlyAvailable bool) ([]*model.BookableDate, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"year": year}
	if onlyAvailable {
		filter["available"] = true
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, mongoStoreError("query dates", err)
	}
	defer cursor.Close(ctx)

	dates := make([]*model.BookableDate, 0)
	if err := cursor.All(ctx, &dates); err != nil {
		return nil, mongoStoreError("decode dates", err)
	}
	return dates, nil
}

func (r *mongoDateRepository) ListYears(ctx context.Context) ([]int, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	values, err := r.collection.Distinct(ctx, "year", bson.M{})
	if err != nil {
		return nil, mongoStoreError("list years", err)
	}

	years := make([]int, 0, len(values))
	for _, v := range values {
		switch y := v.(type) {
		case int32:
			years = append(years, int(y))
		case int64:
			years = append(years, int(y))
		case float64:
			years = append(years, int(y))
		}
	}
	return years, nil
}

func (r *mongoDateRepository) FindByID(ctx context.Context, id string) (*model.BookableDate, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ledgererrors.ErrInvalidID, id)
	}

	var date model.BookableDate
	if err := r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&date); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ledgererrors.ErrNotFound, id)
		}
		return nil, mongoStoreError("find date", err)
	}
	return &date, nil
}

func (r *mongoDateRepository) ClaimIfAvailable(ctx context.Context, id, pendingRef string, email *string, now time.Time) (bool, error) {
	filter := bson.M{"available": true, "sponsor_reference": nil}
	update := bson.M{
		"$set": bson.M{
			"available":         false,
			"sponsor_reference": pendingRef,
			"sponsor_email":     email,
			"pending_since":     now,
			"updated_at":        now,
		},
		"$inc": bson.M{"version": 1},
	}
	return r.conditionalUpdate(ctx, "claim date", id, filter, update)
}

func (r *mongoDateRepository) CommitIfPending(ctx context.Context, id, pendingRef, reference, sponsorName string, now time.Time) (bool, error) {
	filter := bson.M{"sponsor_reference": pendingRef}
	update := bson.M{
		"$set": bson.M{
			"available":         false,
			"sponsor_reference": reference,
			"sponsor_name":      sponsorName,
			"pending_since":     nil,
			"sponsored_at":      now,
			"updated_at":        now,
		},
		"$inc": bson.M{"version": 1},
	}
	return r.conditionalUpdate(ctx, "commit claim", id, filter, update)
}

func (r *mongoDateRepository) ReleaseIfPending(ctx context.Context, id, pendingRef string, pendingBefore *time.Time, now time.Time) (bool, error) {
	filter := bson.M{"sponsor_reference": pendingRef}
	if pendingBefore != nil {
		filter["pending_since"] = bson.M{"$lt": *pendingBefore}
	}
	update := bson.M{
		"$set": bson.M{
			"available":         true,
			"sponsor_reference": nil,
			"sponsor_name":      nil,
			"sponsor_email":     nil,
			"pending_since":     nil,
			"updated_at":        now,
		},
		"$inc": bson.M{"version": 1},
	}
	return r.conditionalUpdate(ctx, "release claim", id, filter, update)
}

func (r *mongoDateRepository) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*model.BookableDate, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	// pending_since is only set while a claim is pending; $lt never matches null.
	filter := bson.M{"pending_since": bson.M{"$lt": cutoff}}
	opts := options.Find().
		SetSort(bson.D{{Key: "pending_since", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, mongoStoreError("query stale claims", err)
	}
	defer cursor.Close(ctx)

	dates := make([]*model.BookableDate, 0)
	if err := cursor.All(ctx, &dates); err != nil {
		return nil, mongoStoreError("decode stale claims", err)
	}
	return dates, nil
}

func (r *mongoDateRepository) AdminUpdate(ctx context.Context, id string, change *AdminChange, version int64, now time.Time) (bool, error) {
	filter := bson.M{"version": version}
	update := bson.M{
		"$set": bson.M{
			"available":         change.SponsorReference == nil,
			"sponsor_reference": change.SponsorReference,
			"sponsor_name":      change.SponsorName,
			"sponsor_email":     change.SponsorEmail,
			"sponsored_at":      change.SponsoredAt,
			"pending_since":     change.PendingSince,
			"notes":             change.Notes,
			"updated_at":        now,
		},
		"$inc": bson.M{"version": 1},
	}
	return r.conditionalUpdate(ctx, "update date", id, filter, update)
}

// conditionalUpdate applies update to the row with id when filter still
// matches it. It reports whether a row was written.
func (r *mongoDateRepository) conditionalUpdate(ctx context.Context, op, id string, filter, update bson.M) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ledgererrors.ErrInvalidID, id)
	}
	filter["_id"] = objectID

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, mongoStoreError(op, err)
	}
	return result.MatchedCount == 1, nil
}

func mongoStoreError(op string, err error) error {
	if errors.Is(err, ledgererrors.ErrStoreUnavailable) {
		return err
	}
	if mongotx.IsUnavailable(err) {
		return fmt.Errorf("%w: failed to %s: %w", ledgererrors.ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
