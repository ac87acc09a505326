// Package server provides the MCP tool server of the card-news generator.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/localrivet/gomcp/server"

	"github.com/chiclooc-rgb/card-news-generator/internal/corpus"
	"github.com/chiclooc-rgb/card-news-generator/internal/document"
	"github.com/chiclooc-rgb/card-news-generator/internal/errortypes"
	"github.com/chiclooc-rgb/card-news-generator/internal/genai"
	"github.com/chiclooc-rgb/card-news-generator/internal/orchestrator"
	"github.com/chiclooc-rgb/card-news-generator/internal/plan"
	"github.com/chiclooc-rgb/card-news-generator/internal/planner"
	"github.com/chiclooc-rgb/card-news-generator/internal/queue"
	"github.com/chiclooc-rgb/card-news-generator/internal/telemetry"
	"github.com/chiclooc-rgb/card-news-generator/internal/tools"
)

// Common server error types
var (
	ErrServerNotInitialized = errors.New("server not initialized")
	ErrMissingDependencies  = errors.New("one or more required dependencies are nil")
)

// ReferenceSearcher finds reference items for a text query.
type ReferenceSearcher interface {
	SearchText(ctx context.Context, query, category string, sampleSize int) []corpus.ReferenceItem
}

// Generation is the queue-facing side of the orchestrator.
type Generation interface {
	StartRun(p *plan.Plan, opts orchestrator.RunOptions) (*orchestrator.RunContext, error)
	EnqueueRegeneration(pageIndex int, pageType plan.PageType, label, feedback string) (*queue.Task, error)
	Pause()
	Resume()
	Clear() int
	Status() orchestrator.Status
	Results() []orchestrator.Record
}

// HealthFunc produces a health report on demand.
type HealthFunc func() (*telemetry.HealthReport, error)

// MCPCardNewsToolServer implements the CardNewsToolServer interface
// for handling MCP tool calls that search references, plan decks and
// drive the generation queue.
type MCPCardNewsToolServer struct {
	searcher   ReferenceSearcher
	planner    planner.Planner
	generation Generation
	health     HealthFunc
	logger     *slog.Logger
	mcpServer  server.Server

	// ctx bounds planning and search calls; Stop cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	lastPlan *plan.Plan
}

var _ CardNewsToolServer = (*MCPCardNewsToolServer)(nil)

// NewCardNewsToolServer creates a new MCPCardNewsToolServer instance.
// health may be nil; logger nil uses slog.Default().
func NewCardNewsToolServer(searcher ReferenceSearcher, p planner.Planner, generation Generation, health HealthFunc, logger *slog.Logger) *MCPCardNewsToolServer {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MCPCardNewsToolServer{
		searcher:   searcher,
		planner:    p,
		generation: generation,
		health:     health,
		logger:     logger.With("component", "mcp_server"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Initialize registers the tools on a new MCP server.
func (s *MCPCardNewsToolServer) Initialize() error {
	s.logger.Info("Initializing MCP card news tool server")

	if s.searcher == nil || s.planner == nil || s.generation == nil {
		return errortypes.ConfigError(ErrMissingDependencies, "server initialization failed")
	}

	srv := server.NewServer("card-news-generator")

	srv = srv.Tool(tools.ToolSearchReferences, "Find reference card-news images similar to a text query",
		s.handleSearchReferences)

	srv = srv.Tool(tools.ToolGeneratePlan, "Build a card-news plan (cover, body pages, outro) from a document",
		s.handleGeneratePlan)

	srv = srv.Tool(tools.ToolStartRun, "Start generating every page of a plan",
		s.handleStartRun)

	srv = srv.Tool(tools.ToolRegeneratePage, "Queue a regeneration of one page with optional feedback",
		s.handleRegeneratePage)

	srv = srv.Tool(tools.ToolQueueStatus, "Show the generation queue and the current run",
		s.handleQueueStatus)

	srv = srv.Tool(tools.ToolPauseQueue, "Pause the generation queue before its next task",
		s.handlePauseQueue)

	srv = srv.Tool(tools.ToolResumeQueue, "Resume the generation queue",
		s.handleResumeQueue)

	srv = srv.Tool(tools.ToolClearQueue, "Drop every queued task that has not started",
		s.handleClearQueue)

	srv = srv.Tool(tools.ToolListResults, "List the generated pages of the current run",
		s.handleListResults)

	srv = srv.Tool(tools.ToolHealth, "Report component health and generation statistics",
		s.handleHealth)

	s.mcpServer = srv
	s.logger.Info("MCP card news tool server initialized", "tool_count", 10)
	return nil
}

// Start serves the registered tools over stdio until stdin closes.
func (s *MCPCardNewsToolServer) Start() error {
	if s.mcpServer == nil {
		return errortypes.ConfigError(ErrServerNotInitialized, "cannot start server")
	}

	s.logger.Info("Starting MCP card news tool server")
	return s.mcpServer.AsStdio().Run()
}

// Stop gracefully shuts down the MCP server.
func (s *MCPCardNewsToolServer) Stop() error {
	s.logger.Info("Stopping MCP card news tool server")
	s.cancel()
	// The server will exit when stdin is closed
	return nil
}

// LastPlan returns the plan produced by the most recent generate_plan call.
func (s *MCPCardNewsToolServer) LastPlan() *plan.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPlan
}

// fail classifies and logs err and returns the response fields for it.
func (s *MCPCardNewsToolServer) fail(err error, message string, fields map[string]interface{}) ErrorResponse {
	err = classify(err, message)
	var appErr *errortypes.AppError
	if len(fields) > 0 && errors.As(err, &appErr) {
		appErr.WithFields(fields)
	}
	errortypes.LogError(s.logger, err)
	return errorToResponse(err)
}

// handleSearchReferences handles the search_references MCP tool call.
func (s *MCPCardNewsToolServer) handleSearchReferences(ctx *server.Context, req tools.SearchReferencesRequest) (tools.SearchReferencesResponse, error) {
	s.logger.Info("Processing search_references request", "category", req.Category, "sample_size", req.SampleSize)

	response := tools.SearchReferencesResponse{
		Status:  tools.StatusSuccess,
		Results: []corpus.ReferenceItem{},
	}

	if strings.TrimSpace(req.Query) == "" {
		e := s.fail(errortypes.ValidationError(errors.New("query cannot be empty"), "invalid search_references request"), "", nil)
		response.Status, response.Code, response.Error = tools.StatusError, e.Code, e.Message
		return response, nil
	}

	category := ""
	if req.Category != "" {
		pt, err := plan.ParsePageType(req.Category)
		if err != nil {
			e := s.fail(err, "invalid search_references category", map[string]interface{}{"category": req.Category})
			response.Status, response.Code, response.Error = tools.StatusError, e.Code, e.Message
			return response, nil
		}
		category = string(pt)
	}

	sampleSize := req.SampleSize
	if sampleSize <= 0 {
		sampleSize = tools.DefaultSampleSize
	}

	if results := s.searcher.SearchText(s.ctx, req.Query, category, sampleSize); len(results) > 0 {
		response.Results = results
	}
	s.logger.Info("Search completed", "count", len(response.Results))
	return response, nil
}

func detailLevel(s string) genai.DetailLevel {
	if strings.EqualFold(strings.TrimSpace(s), string(genai.DetailSimple)) {
		return genai.DetailSimple
	}
	return genai.DetailDetailed
}

// handleGeneratePlan handles the generate_plan MCP tool call.
func (s *MCPCardNewsToolServer) handleGeneratePlan(ctx *server.Context, req tools.GeneratePlanRequest) (tools.GeneratePlanResponse, error) {
	s.logger.Info("Processing generate_plan request",
		"content_length", len(req.Content),
		"document_path", req.DocumentPath,
		"detail_level", req.DetailLevel)

	response := tools.GeneratePlanResponse{
		Status: tools.StatusSuccess,
	}

	content := req.Content
	if content == "" && req.DocumentPath != "" {
		text, err := document.Load(req.DocumentPath)
		if err != nil {
			e := s.fail(err, "failed to load document", map[string]interface{}{"path": req.DocumentPath})
			response.Status, response.Code, response.Error = tools.StatusError, e.Code, e.Message
			return response, nil
		}
		content = text
	}

	result, err := s.planner.Plan(s.ctx, content, detailLevel(req.DetailLevel))
	if err != nil {
		e := s.fail(err, "failed to generate plan", map[string]interface{}{"content_length": len(content)})
		response.Status, response.Code, response.Error = tools.StatusError, e.Code, e.Message
		return response, nil
	}

	s.mu.Lock()
	s.lastPlan = result.Plan
	s.mu.Unlock()

	response.Plan = result.Plan
	response.Source = string(result.Source)
	response.FallbackReason = result.Cause
	s.logger.Info("Plan generated", "source", result.Source, "pages", len(result.Plan.Pages()))
	return response, nil
}

// handleStartRun handles the start_run MCP tool call.
func (s *MCPCardNewsToolServer) handleStartRun(ctx *server.Context, req tools.StartRunRequest) (tools.StartRunResponse, error) {
	s.logger.Info("Processing start_run request", "concept_index", req.ConceptIndex, "aspect_ratio", req.AspectRatio)

	response := tools.StartRunResponse{
		Status: tools.StatusSuccess,
	}

	p := s.LastPlan()
	if len(req.Plan) > 0 {
		parsed, err := plan.Parse(req.Plan)
		if err != nil {
			e := s.fail(errortypes.ValidationError(err, "invalid plan"), "", nil)
			response.Status, response.Code, response.Error = tools.StatusError, e.Code, e.Message
			return response, nil
		}
		p = parsed
	}

	run, err := s.generation.StartRun(p, orchestrator.RunOptions{
		ConceptIndex: req.ConceptIndex,
		AspectRatio:  req.AspectRatio,
	})
	if err != nil {
		e := s.fail(err, "failed to start run", nil)
		response.Status, response.Code, response.Error = tools.StatusError, e.Code, e.Message
		return response, nil
	}

	response.RunID = run.ID
	response.Pages = len(run.Plan.Pages())
	response.Concept = run.Concept.Name
	response.AspectRatio = run.AspectRatio
	s.logger.Info("Run started", "run_id", run.ID, "pages", response.Pages)
	return response, nil
}

// handleRegeneratePage handles the regenerate_page MCP tool call.
func (s *MCPCardNewsToolServer) handleRegeneratePage(ctx *server.Context, req tools.RegeneratePageRequest) (tools.RegeneratePageResponse, error) {
	s.logger.Info("Processing regenerate_page request",
		"page_index", req.PageIndex,
		"page_type", req.PageType,
		"feedback_length", len(req.Feedback))

	response := tools.RegeneratePageResponse{
		Status: tools.StatusSuccess,
	}

	pt, err := plan.ParsePageType(req.PageType)
	if err != nil {
		e := s.fail(err, "invalid regenerate_page request", map[string]interface{}{"page_type": req.PageType})
		response.Status, response.Code, response.Error = tools.StatusError, e.Code, e.Message
		return response, nil
	}
	if req.PageIndex < 0 {
		e := s.fail(errortypes.ValidationError(errors.New("page_index cannot be negative"), "invalid regenerate_page request"), "", nil)
		response.Status, response.Code, response.Error = tools.StatusError, e.Code, e.Message
		return response, nil
	}

	task, err := s.generation.EnqueueRegeneration(req.PageIndex, pt, req.Label, req.Feedback)
	if err != nil {
		e := s.fail(err, "failed to enqueue regeneration", map[string]interface{}{"page_index": req.PageIndex})
		response.Status, response.Code, response.Error = tools.StatusError, e.Code, e.Message
		return response, nil
	}

	response.TaskID = task.ID
	response.Label = task.Page.Label
	return response, nil
}

// handleQueueStatus handles the queue_status MCP tool call.
func (s *MCPCardNewsToolServer) handleQueueStatus(ctx *server.Context, req tools.QueueStatusRequest) (tools.QueueStatusResponse, error) {
	status := s.generation.Status()
	for _, t := range status.Tasks {
		t.Content = nil
	}
	return tools.QueueStatusResponse{
		Status: tools.StatusSuccess,
		Queue:  &status,
	}, nil
}

// handlePauseQueue handles the pause_queue MCP tool call.
func (s *MCPCardNewsToolServer) handlePauseQueue(ctx *server.Context, req tools.QueueControlRequest) (tools.QueueControlResponse, error) {
	s.generation.Pause()
	return tools.QueueControlResponse{Status: tools.StatusSuccess, Paused: true}, nil
}

// handleResumeQueue handles the resume_queue MCP tool call.
func (s *MCPCardNewsToolServer) handleResumeQueue(ctx *server.Context, req tools.QueueControlRequest) (tools.QueueControlResponse, error) {
	s.generation.Resume()
	return tools.QueueControlResponse{Status: tools.StatusSuccess, Paused: false}, nil
}

// handleClearQueue handles the clear_queue MCP tool call.
func (s *MCPCardNewsToolServer) handleClearQueue(ctx *server.Context, req tools.ClearQueueRequest) (tools.ClearQueueResponse, error) {
	s.logger.Info("Processing clear_queue request")

	response := tools.ClearQueueResponse{
		Status: tools.StatusSuccess,
	}

	if req.Confirmation != tools.ClearConfirmation {
		response.Status = tools.StatusError
		response.Code = StatusCodeValidationError
		response.Error = "Confirmation required. Set confirmation to 'confirm' to proceed with clearing the queue"
		s.logger.Warn("Clear queue operation rejected: missing confirmation")
		return response, nil
	}

	response.Removed = s.generation.Clear()
	s.logger.Info("Queue cleared", "removed", response.Removed)
	return response, nil
}

// handleListResults handles the list_results MCP tool call.
func (s *MCPCardNewsToolServer) handleListResults(ctx *server.Context, req tools.ListResultsRequest) (tools.ListResultsResponse, error) {
	records := s.generation.Results()

	response := tools.ListResultsResponse{
		Status:  tools.StatusSuccess,
		Results: make([]orchestrator.Record, 0, len(records)),
	}
	for _, r := range records {
		if r.Fallback {
			response.Fallbacks++
		}
		if !req.IncludeImages {
			r.URL = ""
		}
		response.RunID = r.RunID
		response.Results = append(response.Results, r)
	}
	return response, nil
}

// handleHealth handles the health MCP tool call.
func (s *MCPCardNewsToolServer) handleHealth(ctx *server.Context, req tools.HealthRequest) (tools.HealthResponse, error) {
	response := tools.HealthResponse{
		Status: tools.StatusSuccess,
	}
	if s.health == nil {
		response.Status = tools.StatusError
		response.Error = "health reporting is not configured"
		return response, nil
	}

	report, err := s.health()
	if err != nil {
		e := s.fail(err, "failed to build health report", nil)
		response.Status, response.Error = tools.StatusError, e.Message
		return response, nil
	}
	response.Report = report
	return response, nil
}
