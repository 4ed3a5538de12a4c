// Package mongo reads watched collections stored in MongoDB.
//
// Each watched table maps to a collection of the same name whose documents
// use the integer object id as _id.
package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/syntrixbase/datewatch/internal/condition"
	"github.com/syntrixbase/datewatch/internal/datewatch/store"
	"github.com/syntrixbase/datewatch/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Source implements store.EntitySource on a MongoDB database.
type Source struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.EntitySource = (*Source)(nil)

// Connect dials MongoDB and verifies the connection.
func Connect(ctx context.Context, uri, dbName string) (*Source, error) {
	clientOpts := options.Client().ApplyURI(uri)
	if clientOpts.ConnectTimeout == nil {
		clientOpts.SetConnectTimeout(10 * time.Second)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return NewSource(client, dbName), nil
}

// NewSource wraps an existing client.
func NewSource(client *mongo.Client, dbName string) *Source {
	return &Source{client: client, db: client.Database(dbName)}
}

func (s *Source) Scan(ctx context.Context, table, field string, since int64, cond condition.Set, fn func(store.Entry) error) error {
	if !model.IsIdentifier(table) || !model.IsIdentifier(field) {
		return model.ErrInvalidDefinition
	}
	filter, err := scanFilter(field, since, cond)
	if err != nil {
		return err
	}

	opts := options.Find().
		SetProjection(bson.M{"_id": 1, field: 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(table).Find(ctx, filter, opts)
	if err != nil {
		return model.WrapError(err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return err
		}
		rec := toRecord(doc)
		value, ok := rec.Int64(field)
		if !ok {
			continue
		}
		if err := fn(store.Entry{ObjectID: rec.ID(), Value: value}); err != nil {
			return err
		}
	}
	return model.WrapError(cursor.Err())
}

func (s *Source) Get(ctx context.Context, table string, id int64) (model.Record, error) {
	if !model.IsIdentifier(table) {
		return nil, model.ErrInvalidDefinition
	}
	var doc bson.M
	err := s.db.Collection(table).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, model.WrapError(err)
	}
	return toRecord(doc), nil
}

func (s *Source) Exists(ctx context.Context, table string, id int64) (bool, error) {
	if !model.IsIdentifier(table) {
		return false, model.ErrInvalidDefinition
	}
	n, err := s.db.Collection(table).CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, model.WrapError(err)
	}
	return n > 0, nil
}

// Close disconnects the client.
func (s *Source) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// scanFilter selects documents whose field is >= since and match cond.
func scanFilter(field string, since int64, cond condition.Set) (bson.M, error) {
	filter := bson.M{field: bson.M{"$gte": since}}
	or, err := makeConditionBSON(cond)
	if err != nil {
		return nil, err
	}
	if or != nil {
		filter["$or"] = or
	}
	return filter, nil
}

// makeConditionBSON renders the set as the operand of $or. Nil means no restriction.
func makeConditionBSON(cond condition.Set) (bson.A, error) {
	if cond.MatchesAll() {
		return nil, nil
	}
	if err := cond.Validate(); err != nil {
		return nil, err
	}
	or := make(bson.A, 0, len(cond))
	for _, conj := range cond {
		and := make(bson.A, 0, len(conj))
		for _, f := range conj {
			and = append(and, bson.M{f.Field: bson.M{mapOp(f.Op): f.Value}})
		}
		or = append(or, bson.M{"$and": and})
	}
	return or, nil
}

func mapOp(op model.FilterOp) string {
	switch op {
	case model.OpEq:
		return "$eq"
	case model.OpNe:
		return "$ne"
	case model.OpGt:
		return "$gt"
	case model.OpGte:
		return "$gte"
	case model.OpLt:
		return "$lt"
	case model.OpLte:
		return "$lte"
	case model.OpIn:
		return "$in"
	default:
		return ""
	}
}

func toRecord(doc bson.M) model.Record {
	rec := make(model.Record, len(doc))
	for k, v := range doc {
		if k == "_id" {
			k = "id"
		}
		rec[k] = normalize(v)
	}
	return rec
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.DateTime:
		return val.Time().Unix()
	case int32:
		return int64(val)
	case primitive.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
