// Package tools defines the MCP tool names and the request and response
// schemas of the card-news tool server.
package tools

import (
	"encoding/json"

	"github.com/chiclooc-rgb/card-news-generator/internal/corpus"
	"github.com/chiclooc-rgb/card-news-generator/internal/orchestrator"
	"github.com/chiclooc-rgb/card-news-generator/internal/plan"
	"github.com/chiclooc-rgb/card-news-generator/internal/telemetry"
)

const (
	// ToolSearchReferences is the name of the search_references MCP tool
	ToolSearchReferences = "search_references"

	// ToolGeneratePlan is the name of the generate_plan MCP tool
	ToolGeneratePlan = "generate_plan"

	// ToolStartRun is the name of the start_run MCP tool
	ToolStartRun = "start_run"

	// ToolRegeneratePage is the name of the regenerate_page MCP tool
	ToolRegeneratePage = "regenerate_page"

	// ToolQueueStatus is the name of the queue_status MCP tool
	ToolQueueStatus = "queue_status"

	// ToolPauseQueue is the name of the pause_queue MCP tool
	ToolPauseQueue = "pause_queue"

	// ToolResumeQueue is the name of the resume_queue MCP tool
	ToolResumeQueue = "resume_queue"

	// ToolClearQueue is the name of the clear_queue MCP tool
	ToolClearQueue = "clear_queue"

	// ToolListResults is the name of the list_results MCP tool
	ToolListResults = "list_results"

	// ToolHealth is the name of the health MCP tool
	ToolHealth = "health"

	// DefaultSampleSize is the number of references returned when a
	// search_references request does not set one
	DefaultSampleSize = 2

	// ClearConfirmation must be sent with clear_queue
	ClearConfirmation = "confirm"

	StatusSuccess = "success"
	StatusError   = "error"
)

// SearchReferencesRequest defines the input schema for search_references tool
type SearchReferencesRequest struct {
	// Query is the text whose embedding is compared against the corpus
	Query string `json:"query"`

	// Category restricts results to COVER, BODY or OUTRO references.
	// Empty searches every category.
	Category string `json:"category,omitempty"`

	// SampleSize is the number of references to return
	SampleSize int `json:"sample_size,omitempty"`
}

// SearchReferencesResponse defines the output schema for search_references tool
type SearchReferencesResponse struct {
	Status  string                 `json:"status"`
	Results []corpus.ReferenceItem `json:"results"`
	Code    string                 `json:"code,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// GeneratePlanRequest defines the input schema for generate_plan tool.
// Exactly one of Content and DocumentPath is used; Content wins when both are set.
type GeneratePlanRequest struct {
	Content      string `json:"content,omitempty"`
	DocumentPath string `json:"document_path,omitempty"`

	// DetailLevel is "detailed" (default) or "simple"
	DetailLevel string `json:"detail_level,omitempty"`
}

// GeneratePlanResponse defines the output schema for generate_plan tool
type GeneratePlanResponse struct {
	Status string     `json:"status"`
	Plan   *plan.Plan `json:"plan,omitempty"`

	// Source is model, cache, basic or sample
	Source string `json:"source,omitempty"`

	// FallbackReason is the error that made the planner fall back
	FallbackReason string `json:"fallback_reason,omitempty"`

	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// StartRunRequest defines the input schema for start_run tool
type StartRunRequest struct {
	// Plan is a plan document. When empty, the last plan produced by
	// generate_plan is used.
	Plan json.RawMessage `json:"plan,omitempty"`

	ConceptIndex int    `json:"concept_index,omitempty"`
	AspectRatio  string `json:"aspect_ratio,omitempty"`
}

// StartRunResponse defines the output schema for start_run tool
type StartRunResponse struct {
	Status      string `json:"status"`
	RunID       string `json:"run_id,omitempty"`
	Pages       int    `json:"pages,omitempty"`
	Concept     string `json:"concept,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Code        string `json:"code,omitempty"`
	Error       string `json:"error,omitempty"`
}

// RegeneratePageRequest defines the input schema for regenerate_page tool
type RegeneratePageRequest struct {
	// PageIndex is the position of the page in the run's page list
	PageIndex int `json:"page_index"`

	// PageType is COVER, BODY or OUTRO
	PageType string `json:"page_type"`

	Label    string `json:"label,omitempty"`
	Feedback string `json:"feedback,omitempty"`
}

// RegeneratePageResponse defines the output schema for regenerate_page tool
type RegeneratePageResponse struct {
	Status string `json:"status"`
	TaskID string `json:"task_id,omitempty"`
	Label  string `json:"label,omitempty"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// QueueStatusRequest defines the input schema for queue_status tool
type QueueStatusRequest struct{}

// QueueStatusResponse defines the output schema for queue_status tool
type QueueStatusResponse struct {
	Status string               `json:"status"`
	Queue  *orchestrator.Status `json:"queue,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// QueueControlRequest defines the input schema for pause_queue and resume_queue
type QueueControlRequest struct{}

// QueueControlResponse defines the output schema for pause_queue and resume_queue
type QueueControlResponse struct {
	Status string `json:"status"`
	Paused bool   `json:"paused"`
	Error  string `json:"error,omitempty"`
}

// ClearQueueRequest defines the input schema for clear_queue tool
type ClearQueueRequest struct {
	// Confirmation must be set to "confirm" to prevent accidental clearing
	Confirmation string `json:"confirmation"`
}

// ClearQueueResponse defines the output schema for clear_queue tool
type ClearQueueResponse struct {
	Status  string `json:"status"`
	Removed int    `json:"removed"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ListResultsRequest defines the input schema for list_results tool
type ListResultsRequest struct {
	// IncludeImages keeps the image URL of each record. Data URIs are
	// large, so they are dropped by default.
	IncludeImages bool `json:"include_images,omitempty"`
}

// ListResultsResponse defines the output schema for list_results tool
type ListResultsResponse struct {
	Status    string                `json:"status"`
	RunID     string                `json:"run_id,omitempty"`
	Results   []orchestrator.Record `json:"results"`
	Fallbacks int                   `json:"fallbacks"`
	Error     string                `json:"error,omitempty"`
}

// HealthRequest defines the input schema for health tool
type HealthRequest struct{}

// HealthResponse defines the output schema for health tool
type HealthResponse struct {
	Status string                  `json:"status"`
	Report *telemetry.HealthReport `json:"report,omitempty"`
	Error  string                  `json:"error,omitempty"`
}
