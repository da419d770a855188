// Package task runs durable background work: each accepted request becomes a
// persisted task whose status survives the request that enqueued it.
package task

import (
	"context"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/ragplane/ragplane/engine/core"
)

// Task statuses. A task that never leaves RUNNING after a process restart is
// reported as-is; operators re-run by enqueuing a new task.
const (
	StatusPending = "PENDING"
	StatusRunning = "RUNNING"
	StatusDone    = "DONE"
	StatusError   = "ERROR"
)

// Task is one unit of background work and its durable record.
type Task struct {
	ID         string         `json:"id" bson:"_id"`
	Status     string         `json:"status" bson:"status"`
	Endpoint   string         `json:"endpoint,omitempty" bson:"endpoint,omitempty"`
	Payload    map[string]any `json:"payload,omitempty" bson:"payload,omitempty"`
	Result     any            `json:"result,omitempty" bson:"result,omitempty"`
	Error      string         `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at" bson:"created_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
}

// Store persists task records.
type Store interface {
	Put(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context) ([]Task, error)
}

// NewTask returns a fresh PENDING task.
func NewTask(endpoint string, payload map[string]any) *Task {
	return &Task{
		ID:        ksuid.New().String(),
		Status:    StatusPending,
		Endpoint:  endpoint,
		Payload:   core.CloneMap(payload),
		CreatedAt: time.Now().UTC(),
	}
}
