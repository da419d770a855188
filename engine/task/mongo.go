package task

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ragplane/ragplane/engine/core"
)

const tasksCollection = "tasks"

// MongoStore persists task records in a single collection.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore wraps the given database handle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) collection() *mongo.Collection {
	return s.db.Collection(tasksCollection)
}

func (s *MongoStore) Put(ctx context.Context, task *Task) error {
	_, err := s.collection().ReplaceOne(
		ctx,
		bson.M{"_id": task.ID},
		task,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("task: put %s: %w", task.ID, err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Task, error) {
	var task Task
	err := s.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.NotFoundf("task %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("task: get %s: %w", id, err)
	}
	return &task, nil
}

func (s *MongoStore) List(ctx context.Context) ([]Task, error) {
	cursor, err := s.collection().Find(
		ctx,
		bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("task: list: %w", err)
	}
	defer cursor.Close(ctx)
	tasks := make([]Task, 0)
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("task: decode list: %w", err)
	}
	return tasks, nil
}
