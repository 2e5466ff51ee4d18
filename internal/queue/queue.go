// Package queue holds the bounded FIFO between submission and the worker
// pool. Tasks carry the uploaded bytes in memory, so nothing here touches
// disk or the database.
package queue

import (
	"context"

	"github.com/ignite/tabular-ingest/internal/parser"
)

// DefaultCapacity bounds how many submissions may wait for a worker
// before enqueueing blocks.
const DefaultCapacity = 100

// Task is one queued import: the job it belongs to, the raw file bytes,
// and the parse options chosen at submission. Tasks live only from
// submission to dequeue and are never persisted.
type Task struct {
	JobID    string
	FileName string
	Payload  []byte
	Options  parser.Options
}

// Queue is a fixed-capacity FIFO safe for any number of writers. The
// pool serializes dequeues, but nothing here depends on that.
type Queue struct {
	tasks chan Task
}

// New builds a queue with the given capacity; zero or negative means
// DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{tasks: make(chan Task, capacity)}
}

// Enqueue blocks while the queue is full, pushing backpressure onto the
// submitter. It fails only when ctx ends first.
func (q *Queue) Enqueue(ctx context.Context, t Task) error {
	select {
	case q.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks while the queue is empty and fails when ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case t := <-q.tasks:
		return t, nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// PendingCount reports how many tasks are waiting.
func (q *Queue) PendingCount() int { return len(q.tasks) }

// Capacity reports the fixed queue bound.
func (q *Queue) Capacity() int { return cap(q.tasks) }
