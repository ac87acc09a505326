// Package queue holds the ordered list of page generation tasks. Tasks are
// processed strictly one at a time; the queue enforces that at most one task
// is ever in the processing state.
package queue

import (
	"encoding/json"
	"time"
)

// Kind distinguishes first-time generation from a user-requested redo.
type Kind string

const (
	KindGenerate   Kind = "GENERATE"
	KindRegenerate Kind = "REGENERATE"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// PageRef identifies the page a task renders.
type PageRef struct {
	Index int    `json:"index"`
	Type  string `json:"page_type"`
	Label string `json:"label"`
}

// Task is one page generation request. Feedback is only meaningful for
// KindRegenerate tasks.
type Task struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	RunID      string          `json:"run_id,omitempty"`
	Page       PageRef         `json:"page"`
	Content    json.RawMessage `json:"content,omitempty"`
	Feedback   string          `json:"feedback,omitempty"`
	Status     Status          `json:"status"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewGenerateTask creates a GENERATE task for page.
func NewGenerateTask(page PageRef, content json.RawMessage) *Task {
	return &Task{
		Kind:    KindGenerate,
		Page:    page,
		Content: content,
	}
}

// NewRegenerateTask creates a REGENERATE task for page carrying the user's feedback.
func NewRegenerateTask(page PageRef, content json.RawMessage, feedback string) *Task {
	return &Task{
		Kind:     KindRegenerate,
		Page:     page,
		Content:  content,
		Feedback: feedback,
	}
}

// IsRegeneration reports whether t is a REGENERATE task.
func (t *Task) IsRegeneration() bool {
	return t.Kind == KindRegenerate
}

func (t *Task) clone() *Task {
	c := *t
	if t.Content != nil {
		c.Content = append(json.RawMessage(nil), t.Content...)
	}
	return &c
}
