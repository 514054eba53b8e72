package cache

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/imgembed/pkg/errors"
)

// Default MongoDB names.
const (
	DefaultMongoDatabase   = "imgembed"
	DefaultMongoCollection = "image_cache"
)

// MongoCache stores entries as documents keyed by _id.
type MongoCache struct {
	client *mongo.Client
	coll   *mongo.Collection
	owned  bool
}

type mongoEntry struct {
	Key      string    `bson:"_id"`
	Data     []byte    `bson:"data"`
	StoredAt time.Time `bson:"stored_at"`
}

// NewMongoCache connects to uri and uses database.collection. An index on
// stored_at is created so sweeps do not scan the collection.
func NewMongoCache(ctx context.Context, uri, database, collection string) (*MongoCache, error) {
	if database == "" {
		database = DefaultMongoDatabase
	}
	if collection == "" {
		collection = DefaultMongoCollection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCache, err, "connect mongodb")
	}
	c := &MongoCache{client: client, coll: client.Database(database).Collection(collection), owned: true}

	_, err = c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "stored_at", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(errors.ErrCodeCache, err, "create stored_at index")
	}
	return c, nil
}

// NewMongoCacheFromCollection wraps an existing collection. Close does not
// disconnect the client.
func NewMongoCacheFromCollection(coll *mongo.Collection) *MongoCache {
	return &MongoCache{coll: coll}
}

// Get retrieves a value from the cache.
func (c *MongoCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	var doc mongoEntry
	err := c.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errors.Wrap(errors.ErrCodeCache, err, "mongo get")
	}
	return Entry{Data: doc.Data, StoredAt: doc.StoredAt}, true, nil
}

// Set stores a value in the cache.
func (c *MongoCache) Set(ctx context.Context, key string, e Entry) error {
	doc := mongoEntry{Key: key, Data: e.Data, StoredAt: e.StoredAt.UTC()}
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(errors.ErrCodeCache, err, "mongo set")
	}
	return nil
}

// Delete removes a value from the cache.
func (c *MongoCache) Delete(ctx context.Context, key string) error {
	if _, err := c.coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return errors.Wrap(errors.ErrCodeCache, err, "mongo delete")
	}
	return nil
}

// Sweep deletes matching documents stored before cutoff.
func (c *MongoCache) Sweep(ctx context.Context, prefix string, cutoff time.Time) (int, error) {
	res, err := c.coll.DeleteMany(ctx, sweepFilter(prefix, cutoff))
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeCache, err, "mongo sweep")
	}
	return int(res.DeletedCount), nil
}

// sweepFilter selects documents whose _id starts with prefix and whose
// stored_at is before cutoff.
func sweepFilter(prefix string, cutoff time.Time) bson.M {
	filter := bson.M{"stored_at": bson.M{"$lt": cutoff.UTC()}}
	if prefix != "" {
		filter["_id"] = bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}
	}
	return filter
}

// Close disconnects the client if this cache created it.
func (c *MongoCache) Close() error {
	if !c.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}

// Ensure MongoCache implements Cache.
var _ Cache = (*MongoCache)(nil)
