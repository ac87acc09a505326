package server

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chiclooc-rgb/card-news-generator/internal/corpus"
	"github.com/chiclooc-rgb/card-news-generator/internal/genai"
	"github.com/chiclooc-rgb/card-news-generator/internal/orchestrator"
	"github.com/chiclooc-rgb/card-news-generator/internal/plan"
	"github.com/chiclooc-rgb/card-news-generator/internal/planner"
	"github.com/chiclooc-rgb/card-news-generator/internal/queue"
	"github.com/chiclooc-rgb/card-news-generator/internal/telemetry"
	"github.com/chiclooc-rgb/card-news-generator/internal/tools"
)

var testError = errors.New("test error")

// MockSearcher implements ReferenceSearcher for testing
type MockSearcher struct {
	Items      []corpus.ReferenceItem
	Categories []string
	Samples    []int
}

func (m *MockSearcher) SearchText(ctx context.Context, query, category string, sampleSize int) []corpus.ReferenceItem {
	m.Categories = append(m.Categories, category)
	m.Samples = append(m.Samples, sampleSize)
	if len(m.Items) > sampleSize {
		return m.Items[:sampleSize]
	}
	return m.Items
}

// MockPlanner implements planner.Planner for testing
type MockPlanner struct {
	Result      *planner.Result
	Contents    []string
	Details     []genai.DetailLevel
	ReturnError error
}

func (m *MockPlanner) Initialize() error {
	return nil
}

func (m *MockPlanner) Plan(ctx context.Context, content string, detail genai.DetailLevel) (*planner.Result, error) {
	m.Contents = append(m.Contents, content)
	m.Details = append(m.Details, detail)
	if m.ReturnError != nil {
		return nil, m.ReturnError
	}
	if strings.TrimSpace(content) == "" {
		return nil, planner.ErrEmptyDocument
	}
	return m.Result, nil
}

// MockGeneration implements Generation for testing
type MockGeneration struct {
	Plans         []*plan.Plan
	RunOptions    []orchestrator.RunOptions
	Regenerations []queue.PageRef
	Feedback      []string
	Paused        bool
	Pending       int
	Records       []orchestrator.Record
	ReturnError   error
}

func (m *MockGeneration) StartRun(p *plan.Plan, opts orchestrator.RunOptions) (*orchestrator.RunContext, error) {
	if m.ReturnError != nil {
		return nil, m.ReturnError
	}
	if p == nil {
		return nil, orchestrator.ErrNoPlan
	}
	m.Plans = append(m.Plans, p)
	m.RunOptions = append(m.RunOptions, opts)
	m.Pending = len(p.Pages())
	return &orchestrator.RunContext{
		ID:          "run-1",
		Plan:        p,
		Concept:     p.Concepts()[opts.ConceptIndex],
		AspectRatio: genai.NormalizeAspectRatio(opts.AspectRatio),
	}, nil
}

func (m *MockGeneration) EnqueueRegeneration(pageIndex int, pageType plan.PageType, label, feedback string) (*queue.Task, error) {
	if m.ReturnError != nil {
		return nil, m.ReturnError
	}
	if label == "" {
		label = plan.Label(pageType, pageIndex)
	}
	ref := queue.PageRef{Index: pageIndex, Type: string(pageType), Label: label}
	m.Regenerations = append(m.Regenerations, ref)
	m.Feedback = append(m.Feedback, feedback)
	m.Pending++
	return &queue.Task{ID: "task-1", Kind: queue.KindRegenerate, Page: ref}, nil
}

func (m *MockGeneration) Pause()  { m.Paused = true }
func (m *MockGeneration) Resume() { m.Paused = false }

func (m *MockGeneration) Clear() int {
	n := m.Pending
	m.Pending = 0
	return n
}

func (m *MockGeneration) Status() orchestrator.Status {
	return orchestrator.Status{
		State:   orchestrator.StateIdle,
		Paused:  m.Paused,
		Pending: m.Pending,
		Tasks: []*queue.Task{
			{ID: "t1", Content: []byte(`{"main_title":"x"}`), Status: queue.StatusPending},
		},
	}
}

func (m *MockGeneration) Results() []orchestrator.Record {
	return m.Records
}

func testPlan() *plan.Plan {
	return &plan.Plan{
		Sections: plan.Sections{
			Cover: []byte(`{"main_title":"건강검진 안내"}`),
			Body:  []json.RawMessage{[]byte(`{"title":"일정"}`), []byte(`{"title":"준비물"}`)},
			Outro: []byte(`{"cta":"지금 예약하세요"}`),
		},
	}
}

func newTestServer(t *testing.T) (*MCPCardNewsToolServer, *MockSearcher, *MockPlanner, *MockGeneration) {
	t.Helper()

	searcher := &MockSearcher{Items: []corpus.ReferenceItem{
		{FileURL: "https://cdn.example/1.png", PageType: "COVER"},
		{FileURL: "https://cdn.example/2.png", PageType: "COVER"},
		{FileURL: "https://cdn.example/3.png", PageType: "COVER"},
	}}
	mockPlanner := &MockPlanner{Result: &planner.Result{Plan: testPlan(), Source: planner.SourceModel}}
	generation := &MockGeneration{}

	server := NewCardNewsToolServer(searcher, mockPlanner, generation, func() (*telemetry.HealthReport, error) {
		return telemetry.CreateHealthReport(telemetry.NewMetricsCollector(), map[string]bool{"corpus": true})
	}, nil)
	if err := server.Initialize(); err != nil {
		t.Fatalf("Failed to initialize server: %v", err)
	}
	return server, searcher, mockPlanner, generation
}

func TestInitializeRequiresDependencies(t *testing.T) {
	server := NewCardNewsToolServer(nil, &MockPlanner{}, &MockGeneration{}, nil, nil)
	if err := server.Initialize(); err == nil {
		t.Fatal("Expected initialization to fail without a searcher")
	}
	if err := server.Start(); err == nil {
		t.Fatal("Expected Start to fail before Initialize")
	}
}

// TestSearchReferences tests the search_references tool handler
func TestSearchReferences(t *testing.T) {
	server, searcher, _, _ := newTestServer(t)

	response, err := server.handleSearchReferences(nil, tools.SearchReferencesRequest{
		Query:    "따뜻한 표지",
		Category: "cover",
	})
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}

	if response.Status != tools.StatusSuccess {
		t.Errorf("Expected status 'success', got '%s'", response.Status)
	}
	if len(response.Results) != tools.DefaultSampleSize {
		t.Errorf("Expected %d results, got %d", tools.DefaultSampleSize, len(response.Results))
	}
	if searcher.Categories[0] != "COVER" {
		t.Errorf("Expected category to be normalised to COVER, got %q", searcher.Categories[0])
	}
}

func TestSearchReferencesValidation(t *testing.T) {
	server, searcher, _, _ := newTestServer(t)

	tests := []struct {
		name string
		req  tools.SearchReferencesRequest
	}{
		{"empty query", tools.SearchReferencesRequest{Query: "  "}},
		{"unknown category", tools.SearchReferencesRequest{Query: "q", Category: "INTRO"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response, err := server.handleSearchReferences(nil, tt.req)
			if err != nil {
				t.Fatalf("Handler returned error: %v", err)
			}
			if response.Status != tools.StatusError || response.Code != StatusCodeValidationError {
				t.Errorf("Expected validation error, got %s/%s", response.Status, response.Code)
			}
		})
	}

	if len(searcher.Categories) != 0 {
		t.Errorf("Searcher should not be called for invalid requests")
	}
}

func TestSearchReferencesEmptyCorpus(t *testing.T) {
	server, searcher, _, _ := newTestServer(t)
	searcher.Items = nil

	response, _ := server.handleSearchReferences(nil, tools.SearchReferencesRequest{Query: "q", SampleSize: 5})
	if response.Status != tools.StatusSuccess {
		t.Errorf("An empty corpus is not an error, got %s", response.Error)
	}
	if response.Results == nil || len(response.Results) != 0 {
		t.Errorf("Expected an empty, non-nil result list, got %v", response.Results)
	}
}

// TestGeneratePlan tests the generate_plan tool handler
func TestGeneratePlan(t *testing.T) {
	server, _, mockPlanner, _ := newTestServer(t)

	response, err := server.handleGeneratePlan(nil, tools.GeneratePlanRequest{
		Content:     "무료 건강검진 안내",
		DetailLevel: "SIMPLE",
	})
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}

	if response.Status != tools.StatusSuccess {
		t.Fatalf("Expected status 'success', got '%s' (%s)", response.Status, response.Error)
	}
	if response.Source != string(planner.SourceModel) {
		t.Errorf("Expected source model, got %s", response.Source)
	}
	if mockPlanner.Details[0] != genai.DetailSimple {
		t.Errorf("Expected simple detail level, got %s", mockPlanner.Details[0])
	}
	if server.LastPlan() != response.Plan {
		t.Error("Expected the plan to be remembered for start_run")
	}
}

func TestGeneratePlanFromDocument(t *testing.T) {
	server, _, mockPlanner, _ := newTestServer(t)

	path := filepath.Join(t.TempDir(), "notice.md")
	if err := os.WriteFile(path, []byte("# 건강검진\n\n**무료**로 진행됩니다.\n"), 0o644); err != nil {
		t.Fatalf("Failed to write document: %v", err)
	}

	response, _ := server.handleGeneratePlan(nil, tools.GeneratePlanRequest{DocumentPath: path})
	if response.Status != tools.StatusSuccess {
		t.Fatalf("Expected success, got %s", response.Error)
	}
	if mockPlanner.Details[0] != genai.DetailDetailed {
		t.Errorf("Expected detailed by default, got %s", mockPlanner.Details[0])
	}
	if !strings.Contains(mockPlanner.Contents[0], "무료로 진행됩니다.") || strings.Contains(mockPlanner.Contents[0], "**") {
		t.Errorf("Expected markdown to be reduced to text, got %q", mockPlanner.Contents[0])
	}

	missing, _ := server.handleGeneratePlan(nil, tools.GeneratePlanRequest{DocumentPath: filepath.Join(t.TempDir(), "none.txt")})
	if missing.Status != tools.StatusError || missing.Code != StatusCodeNotFound {
		t.Errorf("Expected not found error, got %s/%s", missing.Status, missing.Code)
	}
}

// TestErrorHandling tests error responses of the plan handler
func TestErrorHandling(t *testing.T) {
	server, _, mockPlanner, _ := newTestServer(t)

	empty, err := server.handleGeneratePlan(nil, tools.GeneratePlanRequest{})
	if err != nil {
		t.Fatalf("Handler should not return errors, got: %v", err)
	}
	if empty.Status != tools.StatusError || empty.Code != StatusCodeValidationError {
		t.Errorf("Expected validation error for an empty document, got %s/%s", empty.Status, empty.Code)
	}

	mockPlanner.ReturnError = &genai.APIError{StatusCode: 503, Message: "unavailable"}
	failed, _ := server.handleGeneratePlan(nil, tools.GeneratePlanRequest{Content: "본문"})
	if failed.Status != tools.StatusError || failed.Code != StatusCodeExternalError {
		t.Errorf("Expected external error, got %s/%s", failed.Status, failed.Code)
	}
	if !strings.Contains(failed.Error, "unavailable") {
		t.Errorf("Expected API message in error, got %q", failed.Error)
	}
	if server.LastPlan() != nil {
		t.Error("Failed plans must not be remembered")
	}
}

// TestStartRun tests the start_run tool handler
func TestStartRun(t *testing.T) {
	server, _, _, generation := newTestServer(t)

	noPlan, _ := server.handleStartRun(nil, tools.StartRunRequest{})
	if noPlan.Status != tools.StatusError || noPlan.Code != StatusCodeValidationError {
		t.Errorf("Expected validation error without a plan, got %s/%s", noPlan.Status, noPlan.Code)
	}

	if _, err := server.handleGeneratePlan(nil, tools.GeneratePlanRequest{Content: "본문"}); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}

	response, _ := server.handleStartRun(nil, tools.StartRunRequest{ConceptIndex: 1, AspectRatio: "9:16"})
	if response.Status != tools.StatusSuccess {
		t.Fatalf("Expected success, got %s", response.Error)
	}
	if response.Pages != 4 {
		t.Errorf("Expected 4 pages, got %d", response.Pages)
	}
	if response.Concept != plan.DefaultConcepts()[1].Name {
		t.Errorf("Expected second default concept, got %q", response.Concept)
	}
	if response.AspectRatio != "9:16" {
		t.Errorf("Expected 9:16, got %s", response.AspectRatio)
	}
	if generation.RunOptions[0].ConceptIndex != 1 {
		t.Errorf("Run options not forwarded: %+v", generation.RunOptions[0])
	}
}

func TestStartRunInlinePlan(t *testing.T) {
	server, _, _, generation := newTestServer(t)

	response, _ := server.handleStartRun(nil, tools.StartRunRequest{
		Plan: []byte("```json\n{\"plan\":{\"cover\":{\"main_title\":\"표지\"},\"body\":[]}}\n```"),
	})
	if response.Status != tools.StatusSuccess {
		t.Fatalf("Expected success, got %s", response.Error)
	}
	if response.Pages != 1 || len(generation.Plans) != 1 {
		t.Errorf("Expected a one-page run, got %d pages", response.Pages)
	}

	invalid, _ := server.handleStartRun(nil, tools.StartRunRequest{Plan: []byte(`{"plan":{"body":[]}}`)})
	if invalid.Status != tools.StatusError || invalid.Code != StatusCodeValidationError {
		t.Errorf("Expected validation error for a plan without pages, got %s/%s", invalid.Status, invalid.Code)
	}
}

// TestRegeneratePage tests the regenerate_page tool handler
func TestRegeneratePage(t *testing.T) {
	server, _, _, generation := newTestServer(t)

	response, _ := server.handleRegeneratePage(nil, tools.RegeneratePageRequest{
		PageIndex: 2,
		PageType:  "body",
		Feedback:  "글씨를 더 크게",
	})
	if response.Status != tools.StatusSuccess {
		t.Fatalf("Expected success, got %s", response.Error)
	}
	if response.TaskID != "task-1" || response.Label != "본문 2" {
		t.Errorf("Unexpected response %+v", response)
	}
	if generation.Feedback[0] != "글씨를 더 크게" || generation.Regenerations[0].Type != "BODY" {
		t.Errorf("Regeneration not forwarded: %+v", generation.Regenerations)
	}

	tests := []struct {
		name     string
		req      tools.RegeneratePageRequest
		wantCode string
	}{
		{"unknown type", tools.RegeneratePageRequest{PageType: "INTRO"}, StatusCodeValidationError},
		{"negative index", tools.RegeneratePageRequest{PageIndex: -1, PageType: "COVER"}, StatusCodeValidationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := server.handleRegeneratePage(nil, tt.req)
			if resp.Status != tools.StatusError || resp.Code != tt.wantCode {
				t.Errorf("Expected %s, got %s/%s", tt.wantCode, resp.Status, resp.Code)
			}
		})
	}

	generation.ReturnError = orchestrator.ErrNoPlan
	noRun, _ := server.handleRegeneratePage(nil, tools.RegeneratePageRequest{PageType: "COVER"})
	if noRun.Code != StatusCodeValidationError {
		t.Errorf("Expected validation error without a run, got %s", noRun.Code)
	}
}

// TestQueueControls tests the pause, resume and status handlers
func TestQueueControls(t *testing.T) {
	server, _, _, generation := newTestServer(t)

	paused, _ := server.handlePauseQueue(nil, tools.QueueControlRequest{})
	if !paused.Paused || !generation.Paused {
		t.Error("Expected queue to be paused")
	}

	status, _ := server.handleQueueStatus(nil, tools.QueueStatusRequest{})
	if status.Queue == nil || !status.Queue.Paused {
		t.Fatalf("Expected paused status, got %+v", status.Queue)
	}
	if status.Queue.Tasks[0].Content != nil {
		t.Error("Expected task content to be left out of the status")
	}

	resumed, _ := server.handleResumeQueue(nil, tools.QueueControlRequest{})
	if resumed.Paused || generation.Paused {
		t.Error("Expected queue to be resumed")
	}
}

// TestClearQueueWithoutConfirmation tests that clear_queue requires confirmation
func TestClearQueueWithoutConfirmation(t *testing.T) {
	server, _, _, generation := newTestServer(t)
	generation.Pending = 3

	response, _ := server.handleClearQueue(nil, tools.ClearQueueRequest{Confirmation: "yes"})
	if response.Status != tools.StatusError {
		t.Errorf("Expected status 'error', got '%s'", response.Status)
	}
	if generation.Pending != 3 {
		t.Error("Queue should not be cleared without confirmation")
	}

	response, _ = server.handleClearQueue(nil, tools.ClearQueueRequest{Confirmation: tools.ClearConfirmation})
	if response.Status != tools.StatusSuccess || response.Removed != 3 {
		t.Errorf("Expected 3 removed tasks, got %+v", response)
	}
}

// TestListResults tests the list_results tool handler
func TestListResults(t *testing.T) {
	server, _, _, generation := newTestServer(t)
	generation.Records = []orchestrator.Record{
		{ID: "a", RunID: "run-1", PageType: plan.PageCover, URL: "data:image/png;base64,AAAA", CreatedAt: time.Now()},
		{ID: "b", RunID: "run-1", PageType: plan.PageBody, URL: "data:image/png;base64,BBBB", Fallback: true, Error: "no image"},
	}

	response, _ := server.handleListResults(nil, tools.ListResultsRequest{})
	if response.RunID != "run-1" || len(response.Results) != 2 || response.Fallbacks != 1 {
		t.Fatalf("Unexpected response %+v", response)
	}
	for _, r := range response.Results {
		if r.URL != "" {
			t.Errorf("Expected image URLs to be dropped, got %q", r.URL)
		}
	}
	if generation.Records[0].URL == "" {
		t.Error("Listing must not modify the stored records")
	}

	withImages, _ := server.handleListResults(nil, tools.ListResultsRequest{IncludeImages: true})
	if withImages.Results[0].URL != "data:image/png;base64,AAAA" {
		t.Errorf("Expected image URL, got %q", withImages.Results[0].URL)
	}
}

func TestHealth(t *testing.T) {
	server, _, _, _ := newTestServer(t)

	response, _ := server.handleHealth(nil, tools.HealthRequest{})
	if response.Status != tools.StatusSuccess || response.Report == nil {
		t.Fatalf("Expected a health report, got %+v", response)
	}
	if response.Report.Status != telemetry.StatusHealthy {
		t.Errorf("Expected healthy, got %s", response.Report.Status)
	}

	noHealth := NewCardNewsToolServer(&MockSearcher{}, &MockPlanner{}, &MockGeneration{}, nil, nil)
	if resp, _ := noHealth.handleHealth(nil, tools.HealthRequest{}); resp.Status != tools.StatusError {
		t.Error("Expected error without a health function")
	}

	failing := NewCardNewsToolServer(&MockSearcher{}, &MockPlanner{}, &MockGeneration{}, func() (*telemetry.HealthReport, error) {
		return nil, testError
	}, nil)
	if resp, _ := failing.handleHealth(nil, tools.HealthRequest{}); resp.Status != tools.StatusError {
		t.Error("Expected error from a failing health function")
	}
}

func TestStopCancelsRequests(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	if err := server.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if server.ctx.Err() == nil {
		t.Error("Expected the request context to be cancelled")
	}
}
