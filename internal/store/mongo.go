package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const changeChannelPrefix = "docs:"

// MongoStore persists documents in MongoDB and fans change notifications out
// over a Redis channel per collection. MongoDB's query model gives us the
// conjunctive equality filters; Redis Pub/Sub gives every live subscription a
// cheap "something in this collection changed" signal, after which the
// subscription re-runs its query and diffs.
type MongoStore struct {
	db  *mongo.Database
	rdb *redis.Client
}

func NewMongoStore(db *mongo.Database, rdb *redis.Client) *MongoStore {
	return &MongoStore{db: db, rdb: rdb}
}

func (s *MongoStore) Create(ctx context.Context, collection string, fields Fields) (Document, error) {
	doc := bson.M(fields)
	id := primitive.NewObjectID().Hex()
	doc["_id"] = id
	if _, ok := doc["timestamp"]; !ok {
		doc["timestamp"] = time.Now().UTC()
	}

	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return Document{}, fmt.Errorf("store: create in %s: %w", collection, err)
	}
	s.notify(collection, id)

	out := Fields{}
	for k, v := range doc {
		if k != "_id" {
			out[k] = v
		}
	}
	return Document{ID: id, Fields: out}, nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, fields Fields, when Filter) error {
	match := bson.M{"_id": id}
	for k, v := range when {
		match[k] = v
	}

	res, err := s.db.Collection(collection).UpdateOne(ctx, match, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return fmt.Errorf("store: update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		if when == nil {
			return ErrNotFound
		}
		// Distinguish a vanished document from a stale precondition.
		n, err := s.db.Collection(collection).CountDocuments(ctx, bson.M{"_id": id})
		if err == nil && n > 0 {
			return ErrPreconditionFailed
		}
		return ErrNotFound
	}
	s.notify(collection, id)
	return nil
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("store: get %s/%s: %w", collection, id, err)
	}
	return documentFromRaw(raw), nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	s.notify(collection, id)
	return nil
}

func (s *MongoStore) BatchUpdate(ctx context.Context, collection string, writes []BatchWrite) error {
	if len(writes) == 0 {
		return nil
	}
	wm := make([]mongo.WriteModel, 0, len(writes))
	for _, w := range writes {
		wm = append(wm, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": w.ID}).
			SetUpdate(bson.M{"$set": bson.M(w.Fields)}))
	}
	if _, err := s.db.Collection(collection).BulkWrite(ctx, wm); err != nil {
		return fmt.Errorf("store: batch update in %s: %w", collection, err)
	}
	s.notify(collection, "batch")
	return nil
}

func (s *MongoStore) Find(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cur, err := s.db.Collection(collection).Find(ctx, bson.M(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("store: find in %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var docs []Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			continue
		}
		docs = append(docs, documentFromRaw(raw))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("store: find in %s: %w", collection, err)
	}
	return docs, nil
}

func (s *MongoStore) Subscribe(ctx context.Context, collection string, filter Filter) (Subscription, error) {
	sub := newLiveQuery(ctx, func(ctx context.Context) ([]Document, error) {
		return s.Find(ctx, collection, filter)
	})

	go s.listen(sub, collection)

	// Initial result set, delivered before any change notification.
	sub.refresh()
	return sub, nil
}

// listen follows the collection's Redis channel and triggers a refresh on
// every notification, reconnecting with capped exponential backoff.
func (s *MongoStore) listen(sub *liveQuery, collection string) {
	backoff := time.Second
	channel := changeChannelPrefix + collection

	for {
		if sub.ctx.Err() != nil {
			return
		}

		pubsub := s.rdb.Subscribe(sub.ctx, channel)
		for {
			msg, err := pubsub.ReceiveMessage(sub.ctx)
			if err != nil {
				pubsub.Close()
				if sub.ctx.Err() != nil {
					return
				}
				log.Printf("store: change listener for %s: %v", collection, err)
				time.Sleep(backoff)
				backoff *= 2
				if backoff > 30*time.Second {
					backoff = 30 * time.Second
				}
				break
			}
			backoff = time.Second
			_ = msg
			sub.refresh()
		}
	}
}

func (s *MongoStore) notify(collection, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.rdb.Publish(ctx, changeChannelPrefix+collection, id).Err(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("store: change notify for %s failed: %v", collection, err)
	}
}

func documentFromRaw(raw bson.M) Document {
	doc := Document{Fields: Fields{}}
	for k, v := range raw {
		if k == "_id" {
			if id, ok := v.(string); ok {
				doc.ID = id
			} else if oid, ok := v.(primitive.ObjectID); ok {
				doc.ID = oid.Hex()
			}
			continue
		}
		doc.Fields[k] = v
	}
	return doc
}
