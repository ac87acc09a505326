package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTaskNotFound is returned when an operation names a task not in the queue.
	ErrTaskNotFound = errors.New("queue: task not found")

	// ErrAlreadyProcessing is returned when a second task would enter processing.
	ErrAlreadyProcessing = errors.New("queue: another task is already processing")

	// ErrInvalidTransition is returned for status changes the lifecycle does not allow.
	ErrInvalidTransition = errors.New("queue: invalid status transition")
)

// Queue is an ordered, mutex-guarded FIFO of tasks. Callers receive copies;
// status changes go through the queue so the single-processing invariant
// holds no matter how many goroutines enqueue.
type Queue struct {
	mu    sync.Mutex
	tasks []*Task
	now   func() time.Time
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{now: time.Now}
}

// Enqueue appends t as pending, assigning its id and enqueue timestamp.
// It returns a copy of the stored task.
func (q *Queue) Enqueue(t *Task) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored := t.clone()
	stored.ID = uuid.NewString()
	stored.Status = StatusPending
	stored.EnqueuedAt = q.now()
	q.tasks = append(q.tasks, stored)

	return stored.clone()
}

// PeekNextPending returns the first pending task in queue order.
func (q *Queue) PeekNextPending() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.tasks {
		if t.Status == StatusPending {
			return t.clone(), true
		}
	}
	return nil, false
}

// MarkProcessing moves the task from pending to processing.
func (q *Queue) MarkProcessing(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t := q.find(id)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if t.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusProcessing)
	}
	for _, other := range q.tasks {
		if other.Status == StatusProcessing {
			return fmt.Errorf("%w: %s", ErrAlreadyProcessing, other.ID)
		}
	}

	t.Status = StatusProcessing
	return nil
}

// Advance marks the task completed. Completed tasks stay visible until Compact.
func (q *Queue) Advance(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t := q.find(id)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if t.Status == StatusCompleted {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusCompleted)
	}

	t.Status = StatusCompleted
	return nil
}

// Compact removes completed tasks and returns how many were dropped.
func (q *Queue) Compact() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.tasks[:0]
	for _, t := range q.tasks {
		if t.Status != StatusCompleted {
			kept = append(kept, t)
		}
	}
	removed := len(q.tasks) - len(kept)
	for i := len(kept); i < len(q.tasks); i++ {
		q.tasks[i] = nil
	}
	q.tasks = kept
	return removed
}

// Clear drops every task that has not started. A processing task is kept so
// its in-flight call can complete normally.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var kept []*Task
	for _, t := range q.tasks {
		if t.Status == StatusProcessing {
			kept = append(kept, t)
		}
	}
	removed := len(q.tasks) - len(kept)
	q.tasks = kept
	return removed
}

// Snapshot returns copies of all tasks in queue order.
func (q *Queue) Snapshot() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Task, len(q.tasks))
	for i, t := range q.tasks {
		out[i] = t.clone()
	}
	return out
}

// Len returns the number of tasks currently held, in any status.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// CountPending returns the number of tasks waiting to start.
func (q *Queue) CountPending() int {
	return q.count(StatusPending)
}

// CountProcessing returns the number of processing tasks; never more than one.
func (q *Queue) CountProcessing() int {
	return q.count(StatusProcessing)
}

func (q *Queue) count(status Status) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, t := range q.tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

func (q *Queue) find(id string) *Task {
	for _, t := range q.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
