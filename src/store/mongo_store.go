package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Protocol-Lattice/go-context/src/model"
)

// MongoStore reads the interaction log from a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

const mongoCloseTimeout = 5 * time.Second

type mongoInteraction struct {
	ID        int64     `bson:"_id"`
	Timestamp time.Time `bson:"ts"`
	SessionID string    `bson:"session_id"`
	UserID    string    `bson:"user_id"`
	Kind      string    `bson:"kind"`
	TextIn    string    `bson:"text_in"`
	TextOut   string    `bson:"text_out"`
	Status    string    `bson:"status"`
	Metadata  string    `bson:"metadata"`
}

func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (ms *MongoStore) Recent(ctx context.Context, window time.Duration, limit int) ([]model.Interaction, error) {
	if ms == nil || ms.collection == nil {
		return nil, nil
	}
	filter := bson.M{}
	if window > 0 {
		filter["ts"] = bson.M{"$gte": time.Now().UTC().Add(-window)}
	}
	// Fetch newest first to honor the cap, then reverse to chronological.
	opts := options.Find().SetSort(bson.D{{Key: "ts", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cur, err := ms.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out, err := decodeInteractions(ctx, cur)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (ms *MongoStore) BySession(ctx context.Context, sessionID string) ([]model.Interaction, error) {
	if ms == nil || ms.collection == nil {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "ts", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := ms.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	return decodeInteractions(ctx, cur)
}

func decodeInteractions(ctx context.Context, cur *mongo.Cursor) ([]model.Interaction, error) {
	defer cur.Close(ctx)
	var out []model.Interaction
	for cur.Next(ctx) {
		var doc mongoInteraction
		if err := cur.Decode(&doc); err != nil {
			// A single undecodable document must not abort the read.
			continue
		}
		out = append(out, model.Interaction{
			ID:        doc.ID,
			Timestamp: doc.Timestamp,
			SessionID: doc.SessionID,
			UserID:    doc.UserID,
			Kind:      model.Kind(doc.Kind),
			TextIn:    doc.TextIn,
			TextOut:   doc.TextOut,
			Status:    model.Status(doc.Status),
			Metadata:  doc.Metadata,
		})
	}
	return out, cur.Err()
}

// Close disconnects the underlying client.
func (ms *MongoStore) Close(ctx context.Context) error {
	if ms == nil || ms.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}
