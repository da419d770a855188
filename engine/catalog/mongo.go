package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ragplane/ragplane/engine/core"
)

const seqCounterID = "catalog_seq"

// MongoStore persists configurations with one collection per kind.
type MongoStore struct {
	db *mongo.Database
}

type mongoEntry struct {
	ID        string         `bson:"_id"`
	Body      map[string]any `bson:"body"`
	Seq       int64          `bson:"seq"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

// NewMongoStore wraps the given database handle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) collection(kind Kind) *mongo.Collection {
	return s.db.Collection("configs_" + string(kind))
}

func (s *MongoStore) nextSeq(ctx context.Context) (int64, error) {
	var doc struct {
		Value int64 `bson:"value"`
	}
	err := s.db.Collection("counters").FindOneAndUpdate(
		ctx,
		bson.M{"_id": seqCounterID},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("catalog: next sequence: %w", err)
	}
	return doc.Value, nil
}

func (s *MongoStore) Create(ctx context.Context, kind Kind, id string, body map[string]any) error {
	if id == "" {
		return core.Validationf("catalog: config id is required")
	}
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.collection(kind).InsertOne(ctx, mongoEntry{
		ID:        id,
		Body:      body,
		Seq:       seq,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if mongo.IsDuplicateKeyError(err) {
		return core.AlreadyExistsf("catalog: %s config %q", kind, id)
	}
	if err != nil {
		return fmt.Errorf("catalog: create %s/%s: %w", kind, id, err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, kind Kind, id string) (map[string]any, error) {
	var entry mongoEntry
	err := s.collection(kind).FindOne(ctx, bson.M{"_id": id}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.NotFoundf("catalog: %s config %q", kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s/%s: %w", kind, id, err)
	}
	return normalizeBody(entry.Body)
}

func (s *MongoStore) Update(ctx context.Context, kind Kind, id string, body map[string]any) error {
	res, err := s.collection(kind).UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"body": body, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("catalog: update %s/%s: %w", kind, id, err)
	}
	if res.MatchedCount == 0 {
		return core.NotFoundf("catalog: %s config %q", kind, id)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, kind Kind, id string) error {
	res, err := s.collection(kind).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("catalog: delete %s/%s: %w", kind, id, err)
	}
	if res.DeletedCount == 0 {
		return core.NotFoundf("catalog: %s config %q", kind, id)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, kind Kind) ([]Entry, error) {
	return s.find(ctx, kind, bson.M{})
}

// Search evaluates the nested predicate directly on the backend. The filter
// DSL is structurally a document query, so field paths are rewritten to the
// stored body prefix and handed to the server as-is.
func (s *MongoStore) Search(ctx context.Context, kind Kind, filter map[string]any) ([]Entry, error) {
	rewritten, err := rewriteFilter(filter)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, kind, rewritten)
}

func (s *MongoStore) find(ctx context.Context, kind Kind, filter bson.M) ([]Entry, error) {
	cursor, err := s.collection(kind).Find(
		ctx,
		filter,
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: list %s: %w", kind, err)
	}
	defer cursor.Close(ctx)
	entries := make([]Entry, 0)
	for cursor.Next(ctx) {
		var entry mongoEntry
		if err := cursor.Decode(&entry); err != nil {
			return nil, fmt.Errorf("catalog: decode %s entry: %w", kind, err)
		}
		body, err := normalizeBody(entry.Body)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Kind:      kind,
			ID:        entry.ID,
			Body:      body,
			Seq:       entry.Seq,
			CreatedAt: entry.CreatedAt,
			UpdatedAt: entry.UpdatedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate %s: %w", kind, err)
	}
	return entries, nil
}

// EnsureCollections bootstraps one metadata collection per kind with the
// seq index List sorts on.
func (s *MongoStore) EnsureCollections(ctx context.Context) error {
	for _, kind := range Kinds() {
		_, err := s.collection(kind).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "seq", Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("catalog: ensure %s indexes: %w", kind, err)
		}
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

func rewriteFilter(filter map[string]any) (bson.M, error) {
	out := bson.M{}
	for key, value := range filter {
		switch key {
		case "$and", "$or":
			list, ok := value.([]any)
			if !ok {
				return nil, core.Validationf("catalog: %s expects an array of sub-filters", key)
			}
			branches := make([]bson.M, 0, len(list))
			for i, item := range list {
				sub, ok := item.(map[string]any)
				if !ok {
					return nil, core.Validationf("catalog: %s[%d] must be an object", key, i)
				}
				branch, err := rewriteFilter(sub)
				if err != nil {
					return nil, err
				}
				branches = append(branches, branch)
			}
			out[key] = branches
		default:
			out["body."+key] = value
		}
	}
	return out, nil
}

// normalizeBody round-trips the decoded bson into plain JSON types so stored
// bodies look identical regardless of backend.
func normalizeBody(body map[string]any) (map[string]any, error) {
	if body == nil {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := core.DeepCopyJSON(body, &out); err != nil {
		return nil, fmt.Errorf("catalog: normalize body: %w", err)
	}
	return out, nil
}
