package source

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo opens a client for uri and checks the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// MongoReader iterates over the documents of a collection query.
type MongoReader struct {
	cursor *mongo.Cursor
}

// NewMongoReader runs filter against coll in _id order. A nil filter
// matches every document.
func NewMongoReader(ctx context.Context, coll *mongo.Collection, filter any) (*MongoReader, error) {
	if filter == nil {
		filter = bson.D{}
	}
	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", coll.Name(), err)
	}
	return &MongoReader{cursor: cursor}, nil
}

func (r *MongoReader) Next(ctx context.Context) (*Record, error) {
	if !r.cursor.Next(ctx) {
		if err := r.cursor.Err(); err != nil {
			return nil, fmt.Errorf("mongo cursor: %w", err)
		}
		return nil, io.EOF
	}
	var doc bson.D
	if err := r.cursor.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return RecordFromBSON(doc), nil
}

func (r *MongoReader) Close() error {
	return r.cursor.Close(context.Background())
}

// RecordFromBSON converts a decoded document, keeping field order.
func RecordFromBSON(doc bson.D) *Record {
	r := NewRecord()
	for _, e := range doc {
		r.Set(e.Key, fromBSON(e.Value))
	}
	return r
}

func fromBSON(v any) any {
	switch x := v.(type) {
	case primitive.D:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = fromBSON(e.Value)
		}
		return m
	case primitive.M:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = fromBSON(e)
		}
		return m
	case primitive.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = fromBSON(e)
		}
		return out
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC().Format(time.RFC3339)
	case primitive.Null, primitive.Undefined:
		return nil
	case primitive.Decimal128:
		return x.String()
	default:
		return v
	}
}

// MongoPopulation lists the values of an auxiliary collection.
type MongoPopulation struct {
	db *mongo.Database
}

// NewMongoPopulation reads collections of db.
func NewMongoPopulation(db *mongo.Database) *MongoPopulation {
	return &MongoPopulation{db: db}
}

// Items returns the distinct "name" values of collection. When
// secondaryExpr is set, each item also carries the result of that JMESPath
// expression on the first document with the name.
func (p *MongoPopulation) Items(ctx context.Context, collection, secondaryExpr string) ([]Item, error) {
	coll := p.db.Collection(collection)
	raw, err := coll.Distinct(ctx, "name", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("distinct names in %s: %w", collection, err)
	}
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if s := Text(fromBSON(v)); s != "" {
			names = append(names, s)
		}
	}
	if secondaryExpr == "" {
		return NamesToItems(names), nil
	}

	reader, err := NewMongoReader(ctx, coll, nil)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	docs, err := Collect(ctx, reader)
	if err != nil {
		return nil, err
	}
	return ItemsWithSecondary(names, docs, "name", secondaryExpr)
}
