// Package planner turns a source document into a card-news plan, either
// through the plan model or with a local heuristic when the model is
// unavailable.
package planner

import (
	"context"
	"errors"

	"github.com/chiclooc-rgb/card-news-generator/internal/genai"
	"github.com/chiclooc-rgb/card-news-generator/internal/plan"
)

// ErrEmptyDocument is returned when there is no text to plan from.
var ErrEmptyDocument = errors.New("planner: document is empty")

// Source records where a plan came from.
type Source string

const (
	SourceModel  Source = "model"
	SourceCache  Source = "cache"
	SourceBasic  Source = "basic"
	SourceSample Source = "sample"
)

// Result is a generated plan and its origin. Cause holds the model error
// that forced a local fallback.
type Result struct {
	Plan   *plan.Plan `json:"plan"`
	Source Source     `json:"source"`
	Cause  string     `json:"cause,omitempty"`
}

// Fallback reports whether the plan was produced without the model.
func (r *Result) Fallback() bool {
	return r.Source == SourceBasic || r.Source == SourceSample
}

// Planner defines the interface for building plans from documents.
type Planner interface {
	// Plan builds a plan for content at the given detail level.
	Plan(ctx context.Context, content string, detail genai.DetailLevel) (*Result, error)

	// Initialize sets up the planner with any required configuration.
	Initialize() error
}
