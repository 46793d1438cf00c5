// Package mongostore provides the MongoDB-backed movie store.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
)

const (
	defaultDatabase   = "imdb"
	defaultCollection = "movies"
)

// Config selects the deployment, database and collection.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// MovieStore reads and writes movie documents keyed by external_id.
type MovieStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMovieStore connects, pings the primary and returns a store.
func NewMovieStore(ctx context.Context, cfg Config) (*MovieStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	if cfg.Database == "" {
		cfg.Database = defaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w: %v", crawler.ErrStoreUnavailable, err)
	}
	return &MovieStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Close disconnects the client.
func (s *MovieStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

// EnsureIndexes creates the unique key and the secondary indexes.
func (s *MovieStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "external_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "genres", Value: 1}}},
		{Keys: bson.D{{Key: "production_year", Value: 1}}},
		{Keys: bson.D{{Key: "rating", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", classify(err))
	}
	return nil
}

// InsertIfAbsent relies on the unique index; a duplicate key is reported as skipped.
func (s *MovieStore) InsertIfAbsent(ctx context.Context, rec crawler.Record) (crawler.Outcome, error) {
	if rec.ExternalID == "" {
		return "", fmt.Errorf("record external_id is required")
	}
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		err = classify(err)
		if errors.Is(err, crawler.ErrDuplicateKey) {
			return crawler.OutcomeSkipped, nil
		}
		return "", fmt.Errorf("insert movie %s: %w", rec.ExternalID, err)
	}
	return crawler.OutcomeInserted, nil
}

// FindByID fetches one movie document.
func (s *MovieStore) FindByID(ctx context.Context, externalID string) (crawler.Record, bool, error) {
	var rec crawler.Record
	err := s.coll.FindOne(ctx, bson.D{{Key: "external_id", Value: externalID}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return crawler.Record{}, false, nil
	}
	if err != nil {
		return crawler.Record{}, false, fmt.Errorf("find movie %s: %w", externalID, classify(err))
	}
	return rec, true, nil
}

// Find returns documents matching q ordered by rating descending.
func (s *MovieStore) Find(ctx context.Context, q crawler.Query) ([]crawler.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "rating", Value: -1}, {Key: "external_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	cursor, err := s.coll.Find(ctx, buildFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("find movies: %w", classify(err))
	}
	out := []crawler.Record{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode movies: %w", classify(err))
	}
	return out, nil
}

// Count returns the number of stored documents.
func (s *MovieStore) Count(ctx context.Context) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count movies: %w", classify(err))
	}
	return int(n), nil
}

func buildFilter(q crawler.Query) bson.D {
	filter := bson.D{}
	if q.Genre != "" {
		filter = append(filter, bson.E{Key: "genres", Value: bson.Regex{
			Pattern: "^" + regexp.QuoteMeta(q.Genre) + "$",
			Options: "i",
		}})
	}
	year := bson.D{}
	if q.Year != 0 {
		year = append(year, bson.E{Key: "$eq", Value: q.Year})
	}
	if q.MinYear != 0 {
		year = append(year, bson.E{Key: "$gte", Value: q.MinYear})
	}
	if len(year) > 0 {
		filter = append(filter, bson.E{Key: "production_year", Value: year})
	}
	rating := bson.D{}
	if q.Rating != nil {
		rating = append(rating, bson.E{Key: "$eq", Value: *q.Rating})
	}
	if q.RatingBelow != nil {
		rating = append(rating, bson.E{Key: "$lt", Value: *q.RatingBelow})
	}
	if len(rating) > 0 {
		filter = append(filter, bson.E{Key: "rating", Value: rating})
	}
	if q.TitleContains != "" {
		filter = append(filter, bson.E{Key: "title", Value: bson.Regex{
			Pattern: regexp.QuoteMeta(q.TitleContains),
			Options: "i",
		}})
	}
	return filter
}

// classify maps driver errors onto the crawler store taxonomy.
func classify(err error) error {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return err
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", crawler.ErrDuplicateKey, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", crawler.ErrStoreUnavailable, err)
	default:
		return err
	}
}
