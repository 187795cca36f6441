package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/triql/internal/querypipe"
)

// Documents runs aggregation pipelines against a document database.
type Documents struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenDocuments connects to uri and selects database.
func OpenDocuments(ctx context.Context, uri, database string) (*Documents, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to document store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to reach document store: %w", err)
	}
	return &Documents{client: client, db: client.Database(database)}, nil
}

// Close disconnects from the server.
func (d *Documents) Close(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	return d.client.Disconnect(ctx)
}

// Aggregate runs p against its collection and returns every document with
// BSON-specific types converted to plain Go values.
func (d *Documents) Aggregate(ctx context.Context, p querypipe.Pipeline) ([]map[string]any, error) {
	cur, err := d.db.Collection(p.Collection).Aggregate(ctx, mongo.Pipeline(p.Stages))
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", p.Collection, err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read %s results: %w", p.Collection, err)
	}

	out := make([]map[string]any, len(docs))
	for i, doc := range docs {
		out[i] = plainDocument(doc)
	}
	return out, nil
}

func plainDocument(doc bson.M) map[string]any {
	m := make(map[string]any, len(doc))
	for k, v := range doc {
		m[k] = plainValue(v)
	}
	return m
}

// plainValue converts decoded BSON values into the types the rest of the
// module works with.
func plainValue(v any) any {
	switch x := v.(type) {
	case bson.M:
		return plainDocument(x)
	case bson.D:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = plainValue(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plainValue(item)
		}
		return out
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.ObjectID:
		return x.Hex()
	case primitive.Decimal128:
		return x.String()
	case int32:
		return int64(x)
	}
	return v
}
