// Package orchestrator drains the generation queue one task at a time,
// resolving reference images for each page, calling the design generator
// and recording a result (or a local placeholder) per task.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chiclooc-rgb/card-news-generator/internal/corpus"
	"github.com/chiclooc-rgb/card-news-generator/internal/genai"
	"github.com/chiclooc-rgb/card-news-generator/internal/plan"
	"github.com/chiclooc-rgb/card-news-generator/internal/queue"
	"github.com/chiclooc-rgb/card-news-generator/internal/telemetry"
	"github.com/chiclooc-rgb/card-news-generator/internal/util"
)

const (
	// DefaultInterTaskDelay paces consecutive generation calls.
	DefaultInterTaskDelay = 500 * time.Millisecond

	// DefaultSampleSize is how many reference images are searched per page.
	DefaultSampleSize = 2
)

var (
	// ErrNoPlan is returned when a run or regeneration has no plan to work from.
	ErrNoPlan = errors.New("orchestrator: no plan")

	// ErrEmptyPlan is returned when a plan produces no pages.
	ErrEmptyPlan = errors.New("orchestrator: plan has no pages")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator: closed")
)

// State is the drain state.
type State string

const (
	StateIdle     State = "idle"
	StateDraining State = "draining"
)

// Searcher finds reference items for a text query. It never fails; an
// unavailable corpus or embedding yields an empty slice.
type Searcher interface {
	SearchText(ctx context.Context, query, category string, sampleSize int) []corpus.ReferenceItem
}

// Generator renders one page and returns an image URL or data URI.
type Generator interface {
	GenerateDesign(ctx context.Context, req genai.DesignRequest) (string, error)
}

// Options configures an Orchestrator.
type Options struct {
	// InterTaskDelay is slept after every task. Zero disables pacing.
	InterTaskDelay time.Duration

	// SampleSize is the number of references searched per page.
	SampleSize int

	// AspectRatio is the default ratio for runs that do not set one.
	AspectRatio string

	Metrics *telemetry.MetricsCollector
	Logger  *slog.Logger
}

// DefaultOptions returns the production pacing and sampling settings.
func DefaultOptions() Options {
	return Options{
		InterTaskDelay: DefaultInterTaskDelay,
		SampleSize:     DefaultSampleSize,
		AspectRatio:    genai.DefaultAspectRatio,
	}
}

// Orchestrator owns the task queue and at most one drain goroutine. All
// run state is guarded by mu; the drain goroutine is the only writer of the
// shared palette and body references, so tasks observe them in queue order.
type Orchestrator struct {
	searcher  Searcher
	generator Generator
	queue     *queue.Queue
	opts      Options
	metrics   *telemetry.MetricsCollector
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	paused bool
	closed bool
	run    *RunContext
	idleCh chan struct{}
}

// New creates an idle orchestrator. searcher may be nil, which disables
// reference lookup.
func New(searcher Searcher, generator Generator, opts Options) *Orchestrator {
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	if opts.InterTaskDelay < 0 {
		opts.InterTaskDelay = 0
	}
	opts.AspectRatio = genai.NormalizeAspectRatio(opts.AspectRatio)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	return &Orchestrator{
		searcher:  searcher,
		generator: generator,
		queue:     queue.New(),
		opts:      opts,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "orchestrator"),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		idleCh:    idle,
	}
}

// StartRun resets run state and results, enqueues one GENERATE task per page
// of p (cover, body pages, outro) and starts draining. A call already in
// flight for a previous run completes, but its result is not recorded here.
func (o *Orchestrator) StartRun(p *plan.Plan, opts RunOptions) (*RunContext, error) {
	if p == nil {
		return nil, ErrNoPlan
	}
	pages := p.Pages()
	if len(pages) == 0 {
		return nil, ErrEmptyPlan
	}

	concept := opts.Concept
	if concept.Name == "" {
		concepts := p.Concepts()
		idx := opts.ConceptIndex
		if idx < 0 || idx >= len(concepts) {
			idx = 0
		}
		concept = concepts[idx]
	}

	ratio := o.opts.AspectRatio
	if opts.AspectRatio != "" {
		ratio = genai.NormalizeAspectRatio(opts.AspectRatio)
	}

	now := time.Now()
	run := &RunContext{
		ID:          util.RunID(string(pages[0].Content), now),
		Plan:        p,
		Tone:        p.Tone(),
		Concept:     concept,
		AspectRatio: ratio,
		StartedAt:   now,
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrClosed
	}

	dropped := o.queue.Clear()
	o.run = run
	o.paused = false

	for _, page := range pages {
		task := queue.NewGenerateTask(queue.PageRef{
			Index: page.Index,
			Type:  string(page.Type),
			Label: page.Label,
		}, page.Content)
		task.RunID = run.ID
		o.queue.Enqueue(task)
	}

	o.metrics.IncrementCounter(telemetry.MetricRunsStarted, 1)
	o.metrics.IncrementCounter(telemetry.MetricTasksEnqueued, int64(len(pages)))
	o.metrics.SetGauge(telemetry.MetricQueueDepth, float64(o.queue.Len()))

	o.logger.Info("Generation run started",
		"run_id", run.ID,
		"pages", len(pages),
		"tone", run.Tone,
		"concept", concept.Name,
		"aspect_ratio", ratio,
		"dropped_tasks", dropped)

	o.startDrainLocked()
	return run.snapshot(), nil
}

// EnqueueRegeneration appends a REGENERATE task for the page at pageIndex of
// the current run, resolving its content from the run's plan. An empty label
// is derived from the page type. Draining starts if idle and not paused.
func (o *Orchestrator) EnqueueRegeneration(pageIndex int, pageType plan.PageType, label, feedback string) (*queue.Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrClosed
	}
	if o.run == nil || o.run.Plan == nil {
		return nil, ErrNoPlan
	}

	if label == "" {
		bodyNumber := pageIndex + 1
		if o.run.Plan.HasCover() {
			bodyNumber = pageIndex
		}
		label = plan.Label(pageType, bodyNumber)
	}

	task := queue.NewRegenerateTask(queue.PageRef{
		Index: pageIndex,
		Type:  string(pageType),
		Label: label,
	}, o.run.Plan.ContentFor(pageIndex, pageType), feedback)
	task.RunID = o.run.ID

	stored := o.queue.Enqueue(task)
	o.metrics.IncrementCounter(telemetry.MetricTasksEnqueued, 1)
	o.metrics.SetGauge(telemetry.MetricQueueDepth, float64(o.queue.Len()))

	o.logger.Info("Regeneration enqueued",
		"run_id", o.run.ID,
		"task_id", stored.ID,
		"page_type", pageType,
		"label", label)

	o.startDrainLocked()
	return stored, nil
}

// Pause stops draining before the next task. A call in flight is not aborted.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = true
	o.logger.Info("Queue paused")
}

// Resume clears the pause flag and restarts draining if tasks are pending.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = false
	o.logger.Info("Queue resumed")
	o.startDrainLocked()
}

// Clear drops every task that has not started and returns how many were
// dropped. A call in flight still completes and records its result.
func (o *Orchestrator) Clear() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	removed := o.queue.Clear()
	o.metrics.SetGauge(telemetry.MetricQueueDepth, float64(o.queue.Len()))
	o.logger.Info("Queue cleared", "removed", removed)
	return removed
}

// startDrainLocked launches the drain goroutine if idle, unpaused and work
// is pending. Callers hold o.mu.
func (o *Orchestrator) startDrainLocked() {
	if o.closed || o.paused || o.state == StateDraining {
		return
	}
	if o.queue.CountPending() == 0 {
		return
	}

	o.state = StateDraining
	o.idleCh = make(chan struct{})
	o.wg.Add(1)
	go o.drain()
}

// setIdleLocked transitions to idle and wakes Wait callers. Callers hold o.mu.
func (o *Orchestrator) setIdleLocked() {
	if o.state == StateIdle {
		return
	}
	o.state = StateIdle
	close(o.idleCh)
}

// drain processes pending tasks strictly one at a time until the queue is
// empty, the orchestrator is paused, or it is closed.
func (o *Orchestrator) drain() {
	defer o.wg.Done()

	for {
		o.mu.Lock()
		if o.paused || o.closed {
			o.setIdleLocked()
			o.mu.Unlock()
			return
		}

		task, ok := o.queue.PeekNextPending()
		if !ok {
			o.setIdleLocked()
			o.mu.Unlock()
			o.logger.Info("Queue drained")
			return
		}
		if err := o.queue.MarkProcessing(task.ID); err != nil {
			o.setIdleLocked()
			o.mu.Unlock()
			o.logger.Error("Failed to start task", "task_id", task.ID, "error", err)
			return
		}
		run := o.run
		o.mu.Unlock()

		record := o.process(o.ctx, run, task)

		o.mu.Lock()
		if err := o.queue.Advance(task.ID); err != nil {
			o.logger.Error("Failed to complete task", "task_id", task.ID, "error", err)
		}
		o.queue.Compact()
		o.metrics.SetGauge(telemetry.MetricQueueDepth, float64(o.queue.Len()))
		if run != nil && o.run == run && task.RunID == run.ID {
			run.results = append(run.results, record)
		} else {
			o.logger.Info("Discarding result of superseded run", "task_id", task.ID, "run_id", task.RunID)
		}
		o.mu.Unlock()

		if !o.sleep(o.opts.InterTaskDelay) {
			o.mu.Lock()
			o.setIdleLocked()
			o.mu.Unlock()
			return
		}
	}
}

// sleep waits for d or until the orchestrator is closed. It reports whether
// the full delay elapsed.
func (o *Orchestrator) sleep(d time.Duration) bool {
	if d <= 0 {
		return o.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-o.ctx.Done():
		return false
	}
}

// process runs one task to a record. It never fails: any generation error
// yields a placeholder record.
func (o *Orchestrator) process(ctx context.Context, run *RunContext, task *queue.Task) Record {
	start := time.Now()
	pageType := plan.PageType(task.Page.Type)

	record := Record{
		ID:        task.ID,
		RunID:     task.RunID,
		Kind:      task.Kind,
		PageIndex: task.Page.Index,
		PageType:  pageType,
		Label:     task.Page.Label,
	}

	logger := o.logger.With("task_id", task.ID, "label", task.Page.Label, "page_type", pageType)
	logger.Info("Generation started", "kind", task.Kind)

	req := genai.DesignRequest{
		PageType:    pageType,
		Content:     task.Content,
		Feedback:    task.Feedback,
		AspectRatio: o.opts.AspectRatio,
	}

	var refItems []corpus.ReferenceItem
	if run != nil {
		var refURLs []string
		refURLs, refItems = o.resolveReferences(ctx, run, pageType, logger)

		o.mu.Lock()
		req.Palette = run.palette
		o.mu.Unlock()

		req.Concept = run.Concept
		req.AspectRatio = run.AspectRatio
		req.RefURLs = refURLs
	}

	url, err := o.generator.GenerateDesign(ctx, req)
	if err == nil && url == "" {
		err = genai.ErrNoImage
	}

	o.metrics.RecordTimer(telemetry.MetricTaskTime, time.Since(start))
	o.metrics.RecordTimestamp(telemetry.MetricLastTaskCompleted)

	if err != nil {
		logger.Warn("Generation failed, using placeholder", "error", err)
		o.metrics.IncrementCounter(telemetry.MetricImagesFallback, 1)

		placeholder, perr := Placeholder(pageType, req.AspectRatio)
		if perr != nil {
			logger.Error("Failed to render placeholder", "error", perr)
		}
		record.URL = placeholder
		record.Fallback = true
		record.Error = err.Error()
		record.CreatedAt = time.Now()
		return record
	}

	if pageType == plan.PageCover && run != nil {
		o.adoptPalette(run, refItems, logger)
	}

	o.metrics.IncrementCounter(telemetry.MetricImagesGenerated, 1)
	logger.Info("Generation completed", "duration", time.Since(start))

	record.URL = url
	record.CreatedAt = time.Now()
	return record
}

// resolveReferences returns the reference URLs for a page. Body pages reuse
// the run's shared set once one exists; other pages always search.
func (o *Orchestrator) resolveReferences(ctx context.Context, run *RunContext, pageType plan.PageType, logger *slog.Logger) ([]string, []corpus.ReferenceItem) {
	if pageType == plan.PageBody {
		o.mu.Lock()
		shared := run.BodyRefs()
		o.mu.Unlock()
		if shared != nil {
			logger.Debug("Reusing shared body references", "count", len(shared))
			return shared, nil
		}
	}

	if o.searcher == nil {
		return nil, nil
	}

	query := fmt.Sprintf("%s 느낌의 %s 디자인", run.Tone, pageType)
	items := o.searcher.SearchText(ctx, query, string(pageType), o.opts.SampleSize)

	var urls []string
	for _, item := range items {
		if item.FileURL != "" {
			urls = append(urls, item.FileURL)
		}
	}

	if pageType == plan.PageBody {
		o.mu.Lock()
		run.setBodyRefs(urls)
		o.mu.Unlock()
	}

	logger.Debug("Resolved references", "query", query, "count", len(urls))
	return urls, items
}

// adoptPalette stores the palette of the first resolved reference that has
// one, unless the run already has a palette.
func (o *Orchestrator) adoptPalette(run *RunContext, items []corpus.ReferenceItem, logger *slog.Logger) {
	for _, item := range items {
		if item.FileURL == "" || item.ColorPaletteFeel == "" {
			continue
		}
		o.mu.Lock()
		stored := run.setPalette(item.ColorPaletteFeel)
		o.mu.Unlock()
		if stored {
			logger.Info("Palette established", "palette", item.ColorPaletteFeel)
		}
		return
	}
}

// Wait blocks until the orchestrator is idle or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	ch := o.idleCh
	o.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops draining, cancels any call in flight and waits for the drain
// goroutine to exit.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	return nil
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State      State         `json:"state"`
	Paused     bool          `json:"paused"`
	RunID      string        `json:"run_id,omitempty"`
	Pending    int           `json:"pending"`
	Processing int           `json:"processing"`
	Completed  int           `json:"completed"`
	Palette    string        `json:"palette,omitempty"`
	BodyRefs   []string      `json:"body_refs,omitempty"`
	Tasks      []*queue.Task `json:"tasks"`
}

// Status returns a snapshot of the queue and current run.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	tasks := o.queue.Snapshot()
	status := Status{
		State:  o.state,
		Paused: o.paused,
		Tasks:  tasks,
	}
	for _, t := range tasks {
		switch t.Status {
		case queue.StatusPending:
			status.Pending++
		case queue.StatusProcessing:
			status.Processing++
		}
	}
	if o.run != nil {
		status.RunID = o.run.ID
		status.Completed = len(o.run.results)
		status.Palette = o.run.palette
		status.BodyRefs = o.run.BodyRefs()
	}
	return status
}

// Results returns the current run's records in completion order.
func (o *Orchestrator) Results() []Record {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run == nil {
		return nil
	}
	return append([]Record(nil), o.run.results...)
}

// Run returns a copy of the current run, or nil before the first StartRun.
func (o *Orchestrator) Run() *RunContext {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run == nil {
		return nil
	}
	return o.run.snapshot()
}
