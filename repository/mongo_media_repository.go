package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/RigelNana/media-service/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type assetDocument struct {
	Provider    string                 `bson:"provider"`
	Key         string                 `bson:"key"`
	URL         string                 `bson:"url"`
	ContentType string                 `bson:"content_type"`
	Format      string                 `bson:"format"`
	Width       int                    `bson:"width"`
	Height      int                    `bson:"height"`
	Bytes       int64                  `bson:"bytes"`
	Attributes  map[string]interface{} `bson:"attributes,omitempty"`
}

type mediaDocument struct {
	ID          string        `bson:"_id"`
	Title       string        `bson:"title"`
	Description string        `bson:"description"`
	Category    string        `bson:"category"`
	Section     string        `bson:"section"`
	Year        string        `bson:"year"`
	Completed   bool          `bson:"completed,omitempty"`
	Asset       assetDocument `bson:"asset"`
	CreatedAt   time.Time     `bson:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at"`
}

func toDocument(rec *models.MediaRecord) mediaDocument {
	return mediaDocument{
		ID:          rec.ID.String(),
		Title:       rec.Title,
		Description: rec.Description,
		Category:    rec.Category,
		Section:     rec.Section,
		Year:        rec.Year,
		Completed:   rec.Completed,
		Asset: assetDocument{
			Provider:    rec.Asset.Provider,
			Key:         rec.Asset.Key,
			URL:         rec.Asset.URL,
			ContentType: rec.Asset.ContentType,
			Format:      rec.Asset.Format,
			Width:       rec.Asset.Width,
			Height:      rec.Asset.Height,
			Bytes:       rec.Asset.Bytes,
			Attributes:  rec.Asset.Attributes,
		},
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func (d mediaDocument) record(kind models.Kind) (*models.MediaRecord, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("document %q: %w", d.ID, err)
	}
	rec := &models.MediaRecord{
		Kind:        kind,
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Section:     d.Section,
		Year:        d.Year,
		Completed:   d.Completed,
		Asset: models.AssetRef{
			Provider:    d.Asset.Provider,
			Key:         d.Asset.Key,
			URL:         d.Asset.URL,
			ContentType: d.Asset.ContentType,
			Format:      d.Asset.Format,
			Width:       d.Asset.Width,
			Height:      d.Asset.Height,
			Bytes:       d.Asset.Bytes,
			Attributes:  d.Asset.Attributes,
		},
	}
	rec.ID = id
	rec.CreatedAt = d.CreatedAt
	rec.UpdatedAt = d.UpdatedAt
	return rec, nil
}

// MongoMediaRepository keeps each kind in its own collection.
type MongoMediaRepository struct {
	db *mongo.Database
}

func NewMongoMediaRepository(db *mongo.Database) *MongoMediaRepository {
	return &MongoMediaRepository{db: db}
}

func (r *MongoMediaRepository) coll(kind models.Kind) *mongo.Collection {
	return r.db.Collection(kind.Spec().Collection)
}

// EnsureIndexes creates the asset key and ordering indexes for every kind.
func (r *MongoMediaRepository) EnsureIndexes(ctx context.Context) error {
	for _, kind := range models.Kinds() {
		_, err := r.coll(kind).Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "asset.key", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "section", Value: 1}, {Key: "year", Value: 1}}},
		})
		if err != nil {
			return fmt.Errorf("create indexes for %s: %w", kind, err)
		}
	}
	return nil
}

func (r *MongoMediaRepository) Create(ctx context.Context, rec *models.MediaRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := r.coll(rec.Kind).InsertOne(ctx, toDocument(rec))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateAsset
	}
	return err
}

func (r *MongoMediaRepository) GetByID(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.MediaRecord, error) {
	var doc mediaDocument
	err := r.coll(kind).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.record(kind)
}

func (r *MongoMediaRepository) Update(ctx context.Context, rec *models.MediaRecord) error {
	prev := rec.UpdatedAt
	rec.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	filter := bson.M{"_id": rec.ID.String(), "updated_at": prev}
	res, err := r.coll(rec.Kind).ReplaceOne(ctx, filter, toDocument(rec))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateAsset
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, gerr := r.GetByID(ctx, rec.Kind, rec.ID); gerr != nil {
			return gerr
		}
		return ErrStaleRecord
	}
	return nil
}

func (r *MongoMediaRepository) Delete(ctx context.Context, kind models.Kind, id uuid.UUID) error {
	res, err := r.coll(kind).DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoMediaRepository) List(ctx context.Context, kind models.Kind, f models.Filter, p models.Page) ([]*models.MediaRecord, int64, error) {
	filter := mongoFilter(f)
	total, err := r.coll(kind).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(newestFirst).
		SetSkip(int64(p.Offset())).
		SetLimit(int64(p.Limit))
	records, err := r.find(ctx, kind, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *MongoMediaRepository) FindAll(ctx context.Context, kind models.Kind, f models.Filter) ([]*models.MediaRecord, error) {
	return r.find(ctx, kind, mongoFilter(f), options.Find().SetSort(newestFirst))
}

func (r *MongoMediaRepository) DeleteByIDs(ctx context.Context, kind models.Kind, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make(bson.A, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}
	res, err := r.coll(kind).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *MongoMediaRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, nil)
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

func (r *MongoMediaRepository) find(ctx context.Context, kind models.Kind, filter bson.M, opts *options.FindOptionsBuilder) ([]*models.MediaRecord, error) {
	cursor, err := r.coll(kind).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []mediaDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	records := make([]*models.MediaRecord, 0, len(docs))
	for _, d := range docs {
		rec, err := d.record(kind)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func mongoFilter(f models.Filter) bson.M {
	filter := bson.M{}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Section != "" {
		filter["section"] = f.Section
	}
	if f.Year != "" {
		filter["year"] = f.Year
	}
	if f.Search != "" {
		re := bson.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"description": re},
		}
	}
	return filter
}
