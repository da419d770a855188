package docstore

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

const collectionInfoName = "doc_store_collections"

// MongoStore keeps one backend collection per document bucket, prefixed to
// avoid clashing with catalog collections, plus one collection-info record
// per bucket.
type MongoStore struct {
	db *mongo.Database
}

type mongoDocument struct {
	ID          string         `bson:"_id"`
	Collection  string         `bson:"collection"`
	PageContent string         `bson:"page_content"`
	Metadata    map[string]any `bson:"metadata"`
	Seq         int64          `bson:"seq"`
}

type mongoCollectionInfo struct {
	Name        string         `bson:"_id"`
	Description string         `bson:"description,omitempty"`
	CreatedAt   time.Time      `bson:"created_at"`
	Custom      map[string]any `bson:"custom_metadata,omitempty"`
}

// NewMongoStore wraps the given database handle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) bucket(collection string) *mongo.Collection {
	return s.db.Collection("docs_" + collection)
}

func (s *MongoStore) CreateCollection(ctx context.Context, name, description string, custom map[string]any) error {
	if name == "" {
		return core.Validationf("docstore: collection name is required")
	}
	_, err := s.db.Collection(collectionInfoName).InsertOne(ctx, mongoCollectionInfo{
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		Custom:      custom,
	})
	if mongo.IsDuplicateKeyError(err) {
		return core.AlreadyExistsf("docstore: collection %q", name)
	}
	if err != nil {
		return fmt.Errorf("docstore: create collection %s: %w", name, err)
	}
	return nil
}

func (s *MongoStore) GetCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	var info mongoCollectionInfo
	err := s.db.Collection(collectionInfoName).FindOne(ctx, bson.M{"_id": name}).Decode(&info)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.NotFoundf("docstore: collection %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get collection %s: %w", name, err)
	}
	return &CollectionInfo{
		Name:        info.Name,
		Description: info.Description,
		CreatedAt:   info.CreatedAt,
		Custom:      info.Custom,
	}, nil
}

func (s *MongoStore) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	cursor, err := s.db.Collection(collectionInfoName).Find(
		ctx,
		bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("docstore: list collections: %w", err)
	}
	defer cursor.Close(ctx)
	out := make([]CollectionInfo, 0)
	for cursor.Next(ctx) {
		var info mongoCollectionInfo
		if err := cursor.Decode(&info); err != nil {
			return nil, fmt.Errorf("docstore: decode collection info: %w", err)
		}
		out = append(out, CollectionInfo{
			Name:        info.Name,
			Description: info.Description,
			CreatedAt:   info.CreatedAt,
			Custom:      info.Custom,
		})
	}
	return out, cursor.Err()
}

func (s *MongoStore) DeleteCollection(ctx context.Context, name string) error {
	res, err := s.db.Collection(collectionInfoName).DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		return fmt.Errorf("docstore: delete collection %s: %w", name, err)
	}
	if err := s.bucket(name).Drop(ctx); err != nil {
		return fmt.Errorf("docstore: drop collection %s: %w", name, err)
	}
	if res.DeletedCount == 0 {
		return core.NotFoundf("docstore: collection %q", name)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, collection string, doc *Document) (string, error) {
	id, err := Normalize(collection, doc)
	if err != nil {
		return "", err
	}
	_, err = s.bucket(collection).InsertOne(ctx, mongoDocument{
		ID:          id,
		Collection:  collection,
		PageContent: doc.PageContent,
		Metadata:    doc.Metadata,
		Seq:         time.Now().UTC().UnixNano(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return "", core.AlreadyExistsf("docstore: document %q in collection %q", id, collection)
	}
	if err != nil {
		return "", fmt.Errorf("docstore: create document %s/%s: %w", collection, id, err)
	}
	return id, nil
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var doc mongoDocument
	err := s.bucket(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.NotFoundf("docstore: document %q in collection %q", id, collection)
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get document %s/%s: %w", collection, id, err)
	}
	return toDocument(&doc)
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, doc *Document) error {
	doc.ID = id
	if _, err := Normalize(collection, doc); err != nil {
		return err
	}
	res, err := s.bucket(collection).UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"page_content": doc.PageContent, "metadata": doc.Metadata}},
	)
	if err != nil {
		return fmt.Errorf("docstore: update document %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return core.NotFoundf("docstore: document %q in collection %q", id, collection)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.bucket(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("docstore: delete document %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return core.NotFoundf("docstore: document %q in collection %q", id, collection)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, collection, prefix string, skip, limit int) ([]Document, error) {
	filter := bson.M{}
	if prefix != "" {
		filter["_id"] = bson.M{"$regex": "^" + regexEscape(prefix)}
	}
	return s.find(ctx, collection, filter, skip, limit)
}

func (s *MongoStore) Search(ctx context.Context, collection, pattern string, skip, limit int) ([]Document, error) {
	filter := bson.M{"$or": []bson.M{
		{"page_content": bson.M{"$regex": pattern}},
		{"metadata.title": bson.M{"$regex": pattern}},
		{"_id": bson.M{"$regex": pattern}},
	}}
	return s.find(ctx, collection, filter, skip, limit)
}

func (s *MongoStore) All(ctx context.Context, collection string) ([]Document, error) {
	return s.find(ctx, collection, bson.M{}, 0, 0)
}

func (s *MongoStore) find(ctx context.Context, collection string, filter bson.M, skip, limit int) ([]Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	if skip > 0 {
		opts.SetSkip(int64(skip))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.bucket(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("docstore: query collection %s: %w", collection, err)
	}
	defer cursor.Close(ctx)
	out := make([]Document, 0)
	for cursor.Next(ctx) {
		var doc mongoDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("docstore: decode document: %w", err)
		}
		converted, err := toDocument(&doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *converted)
	}
	return out, cursor.Err()
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

func toDocument(doc *mongoDocument) (*Document, error) {
	var metadata map[string]any
	if err := core.DeepCopyJSON(doc.Metadata, &metadata); err != nil {
		return nil, fmt.Errorf("docstore: normalize metadata: %w", err)
	}
	return &Document{
		ID:          doc.ID,
		Collection:  doc.Collection,
		PageContent: doc.PageContent,
		Metadata:    metadata,
	}, nil
}

func regexEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '.', '^', '$', '*', '+', '?', '(', ')', '[', ']', '{', '}', '|', '\\':
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
