package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"rental-tracker/filter"
	"rental-tracker/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMongoDatabase = "rental_tracker"

// MongoStore keeps one document per listing, keyed by address, with refs
// as a native array.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
	listings *mongo.Collection
	brokers  *mongo.Collection
	filters  *mongo.Collection
}

// NewMongoStore connects to MongoDB. An empty database name is taken from
// the URI path, falling back to "rental_tracker".
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		database = databaseFromURI(uri)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		database: db,
		listings: db.Collection("listings"),
		brokers:  db.Collection("brokers"),
		filters:  db.Collection("search_filters"),
	}
	s.createIndexes(connectCtx)

	return s, nil
}

func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultMongoDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultMongoDatabase
}

func (s *MongoStore) createIndexes(ctx context.Context) {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: 1}},
	}
	if _, err := s.listings.Indexes().CreateOne(ctx, indexModel); err != nil {
		log.Printf("Warning: Failed to create index on listings.timestamp: %v\n", err)
	}

	indexModel = mongo.IndexModel{
		Keys:    bson.D{{Key: "url", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.brokers.Indexes().CreateOne(ctx, indexModel); err != nil {
		log.Printf("Warning: Failed to create index on brokers.url: %v\n", err)
	}
}

// Close disconnects from MongoDB
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the whole database. Used by tests.
func (s *MongoStore) Drop(ctx context.Context) error {
	return s.database.Drop(ctx)
}

func (s *MongoStore) ListListings(ctx context.Context) ([]models.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.listings.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer cursor.Close(ctx)

	var listings []models.Listing
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}
	return listings, nil
}

func (s *MongoStore) GetListing(ctx context.Context, address string) (models.Listing, error) {
	var l models.Listing
	err := s.listings.FindOne(ctx, bson.M{"_id": address}).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Listing{}, ErrNotFound
	}
	if err != nil {
		return models.Listing{}, fmt.Errorf("failed to get listing %q: %w", address, err)
	}
	return l, nil
}

// UpsertListing is a single atomic update: snapshot fields are only written
// on insert and refs are merged with $addToSet.
func (s *MongoStore) UpsertListing(ctx context.Context, l models.Listing) error {
	refs, _ := mergeRefs(nil, l.Refs...)
	update := bson.M{
		"$setOnInsert": bson.M{
			"price":     l.Price,
			"beds":      l.Beds,
			"baths":     l.Baths,
			"date":      l.AvailableDate,
			"notes":     l.Notes,
			"favorite":  l.IsFavorite,
			"dismissed": l.IsDismissed,
			"timestamp": l.Timestamp,
		},
		"$addToSet": bson.M{
			"refs": bson.M{"$each": refs},
		},
	}

	_, err := s.listings.UpdateOne(ctx, bson.M{"_id": l.Address}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert listing %q: %w", l.Address, err)
	}
	return nil
}

func (s *MongoStore) AppendRef(ctx context.Context, address, ref string) error {
	res, err := s.listings.UpdateOne(ctx, bson.M{"_id": address}, bson.M{"$addToSet": bson.M{"refs": ref}})
	if err != nil {
		return fmt.Errorf("failed to append ref to %q: %w", address, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SetFavorite(ctx context.Context, address string, favorite bool) error {
	return s.set(ctx, address, "favorite", favorite)
}

func (s *MongoStore) SetDismissed(ctx context.Context, address string, dismissed bool) error {
	return s.set(ctx, address, "dismissed", dismissed)
}

func (s *MongoStore) SetNotes(ctx context.Context, address, notes string) error {
	return s.set(ctx, address, "notes", notes)
}

func (s *MongoStore) set(ctx context.Context, address, field string, value any) error {
	res, err := s.listings.UpdateOne(ctx, bson.M{"_id": address}, bson.M{"$set": bson.M{field: value}})
	if err != nil {
		return fmt.Errorf("failed to update %s of %q: %w", field, address, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListBrokers(ctx context.Context) ([]models.Broker, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "url", Value: 1}})
	cursor, err := s.brokers.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query brokers: %w", err)
	}
	defer cursor.Close(ctx)

	var brokers []models.Broker
	if err := cursor.All(ctx, &brokers); err != nil {
		return nil, fmt.Errorf("failed to decode brokers: %w", err)
	}
	return brokers, nil
}

func (s *MongoStore) AddBroker(ctx context.Context, b models.Broker) error {
	_, err := s.brokers.UpdateOne(ctx,
		bson.M{"url": b.URL},
		bson.M{"$set": bson.M{"url": b.URL, "name": b.Name}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save broker %q: %w", b.URL, err)
	}
	return nil
}

func (s *MongoStore) ListFilterRules(ctx context.Context) ([]filter.RawRule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := s.filters.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query filters: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []filter.RawRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode filters: %w", err)
	}
	return rules, nil
}

func (s *MongoStore) SetFilterRule(ctx context.Context, r filter.RawRule) error {
	_, err := s.filters.UpdateOne(ctx,
		bson.M{"name": r.Name},
		bson.M{"$set": bson.M{"name": r.Name, "value": r.Value, "type": filterType(r.Name)}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save filter %q: %w", r.Name, err)
	}
	return nil
}
