package orchestrator

import (
	"time"

	"github.com/chiclooc-rgb/card-news-generator/internal/plan"
	"github.com/chiclooc-rgb/card-news-generator/internal/queue"
)

// Record is one generated page image. Fallback records carry a locally
// rendered placeholder and the error that caused it.
type Record struct {
	ID        string        `json:"id"`
	RunID     string        `json:"run_id"`
	Kind      queue.Kind    `json:"kind"`
	PageIndex int           `json:"page_index"`
	PageType  plan.PageType `json:"page_type"`
	Label     string        `json:"label"`
	URL       string        `json:"url"`
	Fallback  bool          `json:"fallback,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// RunContext is the state of one generation run: its plan and settings, the
// palette carried from the cover to later pages, the reference set shared by
// body pages, and the results recorded so far. A fresh RunContext is created
// by every StartRun.
type RunContext struct {
	ID          string
	Plan        *plan.Plan
	Tone        string
	Concept     plan.DesignConcept
	AspectRatio string
	StartedAt   time.Time

	palette  string
	bodyRefs []string
	results  []Record
}

// Palette returns the cover-derived palette, empty until established.
func (r *RunContext) Palette() string {
	return r.palette
}

// BodyRefs returns the shared body reference URLs, nil until established.
func (r *RunContext) BodyRefs() []string {
	if r.bodyRefs == nil {
		return nil
	}
	return append([]string(nil), r.bodyRefs...)
}

// setPalette stores p unless a palette is already set. It reports whether p was stored.
func (r *RunContext) setPalette(p string) bool {
	if r.palette != "" || p == "" {
		return false
	}
	r.palette = p
	return true
}

// setBodyRefs stores urls as the shared body set unless one exists.
func (r *RunContext) setBodyRefs(urls []string) bool {
	if r.bodyRefs != nil || len(urls) == 0 {
		return false
	}
	r.bodyRefs = append([]string(nil), urls...)
	return true
}

// snapshot copies the run so callers can read it without the orchestrator lock.
func (r *RunContext) snapshot() *RunContext {
	c := *r
	c.bodyRefs = r.BodyRefs()
	c.results = append([]Record(nil), r.results...)
	return &c
}

// Results returns the records of the run.
func (r *RunContext) Results() []Record {
	return append([]Record(nil), r.results...)
}

// RunOptions selects the style of a run.
type RunOptions struct {
	// ConceptIndex selects one of the plan's design concepts.
	ConceptIndex int

	// Concept overrides ConceptIndex when its Name is set.
	Concept plan.DesignConcept

	// AspectRatio is one of 4:5, 1:1 or 9:16. Empty uses the orchestrator default.
	AspectRatio string
}
