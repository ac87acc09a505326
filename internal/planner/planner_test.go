package planner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chiclooc-rgb/card-news-generator/internal/corpus"
	"github.com/chiclooc-rgb/card-news-generator/internal/genai"
	"github.com/chiclooc-rgb/card-news-generator/internal/plan"
	"github.com/chiclooc-rgb/card-news-generator/internal/telemetry"
)

// MockPlanGenerator fails the first failureCount calls, then returns result.
type MockPlanGenerator struct {
	mu           sync.Mutex
	err          error
	failureCount int
	calls        int
	requests     []genai.PlanRequest
	result       *plan.Plan
}

func (m *MockPlanGenerator) GeneratePlan(ctx context.Context, req genai.PlanRequest) (*plan.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.requests = append(m.requests, req)

	if m.err != nil && (m.failureCount == 0 || m.calls <= m.failureCount) {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return plan.SamplePlan(), nil
}

type mockSearcher struct {
	query    string
	category string
	n        int
}

func (m *mockSearcher) SearchText(ctx context.Context, query, category string, n int) []corpus.ReferenceItem {
	m.query, m.category, m.n = query, category, n
	return []corpus.ReferenceItem{{PageType: "COVER", MainTitle: "예시"}}
}

func fastConfig() *Config {
	return &Config{RetryDelay: time.Millisecond, MaxRetries: 2}
}

func TestNewGeminiPlannerDefaults(t *testing.T) {
	p := NewGeminiPlanner(nil, nil, nil, nil, nil)
	if p.config.Examples != DefaultExamples {
		t.Errorf("Expected %d examples, got %d", DefaultExamples, p.config.Examples)
	}
	if p.config.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected %d retries, got %d", DefaultMaxRetries, p.config.MaxRetries)
	}
	if p.metrics == nil {
		t.Error("Expected a metrics collector")
	}
	if err := p.Initialize(); !errors.Is(err, ErrNoGenerator) {
		t.Errorf("Expected ErrNoGenerator, got %v", err)
	}
}

func TestGeminiPlannerUsesModel(t *testing.T) {
	gen := &MockPlanGenerator{}
	searcher := &mockSearcher{}
	p := NewGeminiPlanner(gen, searcher, fastConfig(), nil, nil)

	doc := strings.Repeat("가", ExampleQueryLength+100)
	result, err := p.Plan(context.Background(), doc, genai.DetailSimple)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Source != SourceModel || result.Fallback() {
		t.Errorf("Expected model plan, got %s", result.Source)
	}
	if len([]rune(searcher.query)) != ExampleQueryLength {
		t.Errorf("Expected example query of %d characters, got %d", ExampleQueryLength, len([]rune(searcher.query)))
	}
	if searcher.category != "" || searcher.n != DefaultExamples {
		t.Errorf("Expected unfiltered search for %d examples, got %q/%d", DefaultExamples, searcher.category, searcher.n)
	}
	if len(gen.requests) != 1 || len(gen.requests[0].Examples) != 1 {
		t.Fatalf("Expected examples to be passed to the generator")
	}
	if gen.requests[0].DetailLevel != genai.DetailSimple {
		t.Errorf("Expected simple detail level, got %s", gen.requests[0].DetailLevel)
	}
	if got := p.GetMetrics().GetCounter(telemetry.MetricPlansGenerated); got != 1 {
		t.Errorf("Expected 1 generated plan, got %d", got)
	}
}

func TestGeminiPlannerCache(t *testing.T) {
	gen := &MockPlanGenerator{}
	p := NewGeminiPlanner(gen, nil, fastConfig(), nil, nil)

	if _, err := p.Plan(context.Background(), "문서", ""); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	result, err := p.Plan(context.Background(), "문서", genai.DetailDetailed)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Source != SourceCache {
		t.Errorf("Expected cached plan, got %s", result.Source)
	}
	if gen.calls != 1 {
		t.Errorf("Expected 1 generator call, got %d", gen.calls)
	}

	// Detail level is part of the key
	if result, _ := p.Plan(context.Background(), "문서", genai.DetailSimple); result.Source != SourceModel {
		t.Errorf("Expected a fresh plan for another detail level, got %s", result.Source)
	}
}

func TestGeminiPlannerCacheEviction(t *testing.T) {
	p := NewGeminiPlanner(&MockPlanGenerator{}, nil, &Config{CacheCapacity: 2}, nil, nil)

	for _, doc := range []string{"a", "b", "c"} {
		if _, err := p.Plan(context.Background(), doc, ""); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if got := len(p.cache.items); got != 2 {
		t.Errorf("Expected cache size 2, got %d", got)
	}
	if _, found := p.checkCache(cacheKey("a", genai.DetailDetailed)); found {
		t.Error("Expected the oldest entry to be evicted")
	}
}

func TestGeminiPlannerRetries(t *testing.T) {
	gen := &MockPlanGenerator{err: &genai.APIError{StatusCode: http.StatusServiceUnavailable}, failureCount: 2}
	p := NewGeminiPlanner(gen, nil, fastConfig(), nil, nil)

	result, err := p.Plan(context.Background(), "문서", "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Source != SourceModel {
		t.Errorf("Expected model plan after retries, got %s", result.Source)
	}
	if gen.calls != 3 {
		t.Errorf("Expected 3 calls, got %d", gen.calls)
	}
	if got := p.GetMetrics().GetCounter(telemetry.MetricRetryAttempts); got != 2 {
		t.Errorf("Expected 2 retry attempts, got %d", got)
	}
}

func TestGeminiPlannerFallback(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{"missing key is not retried", genai.ErrMissingAPIKey, 1},
		{"client error is not retried", &genai.APIError{StatusCode: http.StatusBadRequest, Message: "bad"}, 1},
		{"rate limit is retried", &genai.APIError{StatusCode: http.StatusTooManyRequests}, 3},
		{"parse error is retried", plan.ErrNoPages, 3},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			gen := &MockPlanGenerator{err: test.err}
			p := NewGeminiPlanner(gen, nil, fastConfig(), nil, nil)

			result, err := p.Plan(context.Background(), "봄철 건강 캠페인\n\n무료 검진을 받으세요.", "")
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if result.Source != SourceBasic || !result.Fallback() {
				t.Errorf("Expected basic plan, got %s", result.Source)
			}
			if result.Cause != test.err.Error() {
				t.Errorf("Expected cause %q, got %q", test.err.Error(), result.Cause)
			}
			if gen.calls != test.wantCalls {
				t.Errorf("Expected %d calls, got %d", test.wantCalls, gen.calls)
			}
			if got := p.GetMetrics().GetCounter(telemetry.MetricFallbackAttempts); got != 1 {
				t.Errorf("Expected 1 fallback attempt, got %d", got)
			}
		})
	}
}

func TestGeminiPlannerDisableFallback(t *testing.T) {
	gen := &MockPlanGenerator{err: genai.ErrMissingAPIKey}
	config := fastConfig()
	config.DisableFallback = true
	p := NewGeminiPlanner(gen, nil, config, nil, nil)

	if _, err := p.Plan(context.Background(), "문서", ""); !errors.Is(err, genai.ErrMissingAPIKey) {
		t.Errorf("Expected ErrMissingAPIKey, got %v", err)
	}
}

func TestGeminiPlannerWithoutGeneratorFallsBack(t *testing.T) {
	p := NewGeminiPlanner(nil, nil, fastConfig(), nil, nil)

	result, err := p.Plan(context.Background(), "제목", "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Source != SourceBasic {
		t.Errorf("Expected basic plan, got %s", result.Source)
	}
	if result.Cause != ErrNoGenerator.Error() {
		t.Errorf("Unexpected cause %q", result.Cause)
	}
}

func TestGeminiPlannerSampleWhenLocalFails(t *testing.T) {
	p := NewGeminiPlanner(nil, nil, fastConfig(), nil, nil)
	p.fallback = failingPlanner{}

	result, err := p.Plan(context.Background(), "제목", "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Source != SourceSample || len(result.Plan.Pages()) != 5 {
		t.Errorf("Expected the sample plan, got %s", result.Source)
	}
}

type failingPlanner struct{}

func (failingPlanner) Initialize() error { return nil }

func (failingPlanner) Plan(ctx context.Context, content string, detail genai.DetailLevel) (*Result, error) {
	return nil, errors.New("no")
}

func TestGeminiPlannerEmptyDocument(t *testing.T) {
	gen := &MockPlanGenerator{}
	p := NewGeminiPlanner(gen, nil, fastConfig(), nil, nil)

	if _, err := p.Plan(context.Background(), "  \n ", ""); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("Expected ErrEmptyDocument, got %v", err)
	}
	if gen.calls != 0 {
		t.Errorf("Expected no generator calls, got %d", gen.calls)
	}
}

func TestGeminiPlannerCanceledDuringBackoff(t *testing.T) {
	gen := &MockPlanGenerator{err: &genai.APIError{StatusCode: http.StatusInternalServerError}}
	p := NewGeminiPlanner(gen, nil, &Config{RetryDelay: time.Hour, DisableFallback: true}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.Plan(ctx, "문서", ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestBasicPlanner(t *testing.T) {
	doc := `광양시 봄철 건강 캠페인
시민 여러분을 위한 안내

봄철에는 면역력이 떨어지기 쉽습니다. 충분한 수면이 중요합니다.

보건소에서 무료 건강검진을 실시합니다. 4월부터 5월까지 진행됩니다.

제철 채소로 식단을 구성해 보세요.

지금 보건소에 예약하세요!`

	tests := []struct {
		name      string
		detail    genai.DetailLevel
		wantBody  int
		wantPages int
	}{
		{"detailed", genai.DetailDetailed, 4, 6},
		{"simple", genai.DetailSimple, 2, 4},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result, err := NewBasicPlanner(0, 0).Plan(context.Background(), doc, test.detail)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			p := result.Plan
			if len(p.Sections.Body) != test.wantBody {
				t.Errorf("Expected %d body pages, got %d", test.wantBody, len(p.Sections.Body))
			}
			if got := len(p.Pages()); got != test.wantPages {
				t.Errorf("Expected %d pages, got %d", test.wantPages, got)
			}
			if p.Tone() != plan.DefaultTone {
				t.Errorf("Expected default tone, got %q", p.Tone())
			}

			var cover coverContent
			if err := json.Unmarshal(p.Sections.Cover, &cover); err != nil {
				t.Fatalf("Invalid cover: %v", err)
			}
			if cover.MainTitle != "광양시 봄철 건강 캠페인" || cover.SubTitle != "시민 여러분을 위한 안내" {
				t.Errorf("Unexpected cover %+v", cover)
			}

			var outro outroContent
			if err := json.Unmarshal(p.Sections.Outro, &outro); err != nil {
				t.Fatalf("Invalid outro: %v", err)
			}
			if outro.CTA != "지금 보건소에 예약하세요!" {
				t.Errorf("Unexpected CTA %q", outro.CTA)
			}

			var first bodyContent
			if err := json.Unmarshal(p.Sections.Body[0], &first); err != nil {
				t.Fatalf("Invalid body: %v", err)
			}
			if len(first.Summary) == 0 || first.Summary[0] != "봄철에는 면역력이 떨어지기 쉽습니다." {
				t.Errorf("Unexpected body summary %v", first.Summary)
			}
		})
	}
}

func TestBasicPlannerTitleOnly(t *testing.T) {
	result, err := NewBasicPlanner(0, 0).Plan(context.Background(), "제목만 있는 문서", "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Plan.StructureType != "SINGLE" || len(result.Plan.Sections.Body) != 0 {
		t.Errorf("Expected single page structure, got %s with %d body pages",
			result.Plan.StructureType, len(result.Plan.Sections.Body))
	}
	if !strings.Contains(string(result.Plan.Sections.Outro), defaultCTA) {
		t.Errorf("Expected default CTA, got %s", result.Plan.Sections.Outro)
	}
}

func TestBasicPlannerEmpty(t *testing.T) {
	if _, err := NewBasicPlanner(0, 0).Plan(context.Background(), "\n\n  ", ""); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("Expected ErrEmptyDocument, got %v", err)
	}
}

func TestCondense(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   string
	}{
		{
			name:   "short text",
			text:   "짧은 문장입니다.",
			maxLen: 100,
			want:   "짧은 문장입니다.",
		},
		{
			name:   "text with sentence boundary",
			text:   "첫 문장입니다. 두 번째 문장은 잘려야 합니다.",
			maxLen: 12,
			want:   "첫 문장입니다.",
		},
		{
			name:   "text with question mark boundary",
			text:   "검진 받으셨나요? 아직이라면 지금 신청하세요",
			maxLen: 12,
			want:   "검진 받으셨나요?",
		},
		{
			name:   "text without sentence boundary",
			text:   "보건소 무료 건강검진 안내 프로그램",
			maxLen: 12,
			want:   "보건소 무료...",
		},
		{
			name:   "text without any boundary",
			text:   "무료건강검진안내프로그램",
			maxLen: 6,
			want:   "무료건...",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := condense(test.text, test.maxLen); got != test.want {
				t.Errorf("condense() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestGroupParagraphs(t *testing.T) {
	paras := [][]string{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}}

	groups := groupParagraphs(paras, 2)
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	if strings.Join(groups[0], "") != "abc" || strings.Join(groups[1], "") != "de" {
		t.Errorf("Unexpected grouping %v", groups)
	}
	if got := groupParagraphs(paras[:1], 3); len(got) != 1 {
		t.Errorf("Expected 1 group, got %d", len(got))
	}
}
