package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appetiteclub/kds/services/terminal/internal/cache"
	"github.com/appetiteclub/kds/services/terminal/internal/store"
	"github.com/aquamarinepk/aqm"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "responses"

type responseDoc struct {
	Key      string    `bson:"_id"`
	Body     []byte    `bson:"body"`
	ETag     string    `bson:"etag,omitempty"`
	Token    int64     `bson:"token"`
	StoredAt time.Time `bson:"stored_at"`
}

func toDoc(e cache.Entry) responseDoc {
	return responseDoc{
		Key:      e.Key,
		Body:     e.Body,
		ETag:     e.ETag,
		Token:    int64(e.Token),
		StoredAt: e.StoredAt.UTC(),
	}
}

func (d responseDoc) entry() cache.Entry {
	return cache.Entry{
		Key:      d.Key,
		Body:     d.Body,
		ETag:     d.ETag,
		Token:    store.Token(d.Token),
		StoredAt: d.StoredAt,
	}
}

// ResponseRepo is a cache.ResponseCache stored in MongoDB, shared by the
// terminals of one site when they run next to a database.
type ResponseRepo struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	logger     aqm.Logger
	config     *aqm.Config
}

func NewResponseRepo(config *aqm.Config, logger aqm.Logger) *ResponseRepo {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &ResponseRepo{
		logger: logger,
		config: config,
	}
}

func (r *ResponseRepo) Start(ctx context.Context) error {
	mongoURL, _ := r.config.GetString("db.mongo.url")
	if mongoURL == "" {
		mongoURL = "mongodb://localhost:27017"
	}

	dbName, _ := r.config.GetString("db.mongo.name")
	if dbName == "" {
		dbName = "kds_terminal"
	}

	clientOptions := options.Client().ApplyURI(mongoURL).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("cannot connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("cannot ping MongoDB: %w", err)
	}

	r.client = client
	r.db = client.Database(dbName)
	r.collection = r.db.Collection(collectionName)

	tokenIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "token", Value: -1}},
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, tokenIndex); err != nil {
		return fmt.Errorf("cannot create token index: %w", err)
	}

	r.logger.Infof("Connected to MongoDB: %s, database: %s, collection: %s", mongoURL, dbName, collectionName)
	return nil
}

func (r *ResponseRepo) Stop(ctx context.Context) error {
	if r.client != nil {
		if err := r.client.Disconnect(ctx); err != nil {
			return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
		}
		r.logger.Info("Disconnected from MongoDB")
	}
	return nil
}

func (r *ResponseRepo) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var doc responseDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, fmt.Errorf("cannot find response %s: %w", key, err)
	}
	return doc.entry(), true, nil
}

func (r *ResponseRepo) Put(ctx context.Context, e cache.Entry) error {
	doc := toDoc(e)
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc, opts); err != nil {
		return fmt.Errorf("cannot store response %s: %w", e.Key, err)
	}
	return nil
}

func (r *ResponseRepo) Touch(ctx context.Context, key string, at time.Time) error {
	update := bson.M{"$set": bson.M{"stored_at": at.UTC()}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": key}, update); err != nil {
		return fmt.Errorf("cannot touch response %s: %w", key, err)
	}
	return nil
}

func (r *ResponseRepo) MaxToken(ctx context.Context) (store.Token, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "token", Value: -1}})
	var doc responseDoc
	err := r.collection.FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("cannot find max token: %w", err)
	}
	return store.Token(doc.Token), nil
}

func (r *ResponseRepo) Clear(ctx context.Context) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("cannot clear responses: %w", err)
	}
	return nil
}

var _ cache.ResponseCache = (*ResponseRepo)(nil)
