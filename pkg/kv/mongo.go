package kv

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoEntry struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps one document per key, with the key as _id.
type MongoStore struct {
	coll   *mongo.Collection
	prefix string
	owned  bool
}

// NewMongoStore wraps an existing collection. Close does not disconnect a
// client passed in this way.
func NewMongoStore(coll *mongo.Collection, prefix string) *MongoStore {
	return &MongoStore{coll: coll, prefix: prefix}
}

func (s *MongoStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	var e mongoEntry
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: s.prefix + key}}).Decode(&e)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, ErrNotFound
	case err != nil:
		return nil, errors.Join(ErrStoreFailed, err)
	}
	return e.Value, nil
}

func (s *MongoStore) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	e := mongoEntry{Key: s.prefix + key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: e.Key}},
		e,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return errors.Join(ErrStoreFailed, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, keys ...string) error {
	full := prefixed(s.prefix, keys)
	if len(full) == 0 {
		return nil
	}
	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: full}}}}
	if _, err := s.coll.DeleteMany(ctx, filter); err != nil {
		return errors.Join(ErrStoreFailed, err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.coll.Database().Client().Disconnect(context.Background())
}
