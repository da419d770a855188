package task

import (
	"context"
	"fmt"
	"time"

	"github.com/ragplane/ragplane/engine/metrics"
	"github.com/ragplane/ragplane/pkg/logger"
)

// Work executes one task and returns its result payload.
type Work func(ctx context.Context) (any, error)

// Runner enqueues tasks and runs them on background goroutines. Concurrency
// is bounded process-wide; within a task the worker applies its own.
type Runner struct {
	store Store
	slots chan struct{}
}

// NewRunner returns a runner executing at most maxConcurrency tasks at once.
func NewRunner(store Store, maxConcurrency int) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	return &Runner{store: store, slots: make(chan struct{}, maxConcurrency)}
}

// Store exposes the backing store for status lookups.
func (r *Runner) Store() Store { return r.store }

// Enqueue persists a PENDING task and schedules work on a detached context
// so the record outlives the request that created it. The returned task is
// the record as persisted.
func (r *Runner) Enqueue(ctx context.Context, endpoint string, payload map[string]any, work Work) (*Task, error) {
	t := NewTask(endpoint, payload)
	if err := r.store.Put(ctx, t); err != nil {
		return nil, err
	}
	bg := logger.ContextWithLogger(context.WithoutCancel(ctx), logger.FromContext(ctx))
	go r.execute(bg, *t, work)
	return t, nil
}

func (r *Runner) execute(ctx context.Context, t Task, work Work) {
	r.slots <- struct{}{}
	defer func() { <-r.slots }()
	log := logger.FromContext(ctx).With("task_id", t.ID, "endpoint", t.Endpoint)

	t.Status = StatusRunning
	if err := r.store.Put(ctx, &t); err != nil {
		log.Error("failed to mark task running", "error", err)
		return
	}
	metrics.RecordTaskTransition(ctx, t.Endpoint, t.Status)
	log.Info("task started")

	result, err := runWork(ctx, work)
	finished := time.Now().UTC()
	t.FinishedAt = &finished
	if err != nil {
		t.Status = StatusError
		t.Error = err.Error()
		log.Error("task failed", "error", err)
	} else {
		t.Status = StatusDone
		t.Result = result
		log.Info("task finished", "duration", finished.Sub(t.CreatedAt))
	}
	if err := r.store.Put(ctx, &t); err != nil {
		log.Error("failed to persist task outcome", "error", err)
	}
	metrics.RecordTaskTransition(ctx, t.Endpoint, t.Status)
}

// runWork recovers panics from the work function. The goroutine is detached
// from the request, so an unrecovered panic here would take the process down
// and leave the task stuck in RUNNING.
func runWork(ctx context.Context, work Work) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return work(ctx)
}
