package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is the primary production backend. Documents are stored with
// the collection id mirrored into _id; the JSON body keeps its own id field
// so reads round-trip without rewriting.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func OpenMongo(ctx context.Context, url, database string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) Collection(name string) Collection {
	return &mongoCollection{coll: s.db.Collection(name)}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) Find(ctx context.Context, filter Filter) ([]json.RawMessage, error) {
	cursor, err := c.coll.Find(ctx, bsonFilter(filter), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer cursor.Close(ctx)

	docs := make([]json.RawMessage, 0)
	for cursor.Next(ctx) {
		var fields bson.M
		if err := cursor.Decode(&fields); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		doc, err := jsonFromFields(fields)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (c *mongoCollection) FindByID(ctx context.Context, id string) (json.RawMessage, error) {
	var fields bson.M
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&fields)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by id: %w", err)
	}
	return jsonFromFields(fields)
}

func (c *mongoCollection) Insert(ctx context.Context, id string, doc json.RawMessage) error {
	fields, err := fieldsFromJSON(doc)
	if err != nil {
		return err
	}
	fields["_id"] = id
	if _, err := c.coll.InsertOne(ctx, fields); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

func (c *mongoCollection) Update(ctx context.Context, id string, doc json.RawMessage) error {
	fields, err := fieldsFromJSON(doc)
	if err != nil {
		return err
	}
	fields["_id"] = id
	result, err := c.coll.ReplaceOne(ctx, bson.M{"_id": id}, fields)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) Remove(ctx context.Context, id string) error {
	if _, err := c.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

func (c *mongoCollection) Count(ctx context.Context, filter Filter) (int, error) {
	count, err := c.coll.CountDocuments(ctx, bsonFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return int(count), nil
}

func bsonFilter(filter Filter) bson.M {
	out := bson.M{}
	for key, value := range filter {
		out[key] = value
	}
	return out
}

func fieldsFromJSON(doc json.RawMessage) (bson.M, error) {
	var fields bson.M
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return fields, nil
}

func jsonFromFields(fields bson.M) (json.RawMessage, error) {
	delete(fields, "_id")
	doc, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return doc, nil
}
