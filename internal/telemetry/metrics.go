// Package telemetry provides metrics collection and reporting
// for monitoring the card-news generator.
package telemetry

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MetricsCollector provides a thread-safe interface for collecting
// application metrics for monitoring and troubleshooting.
type MetricsCollector struct {
	counters   map[string]int64
	gauges     map[string]float64
	timers     map[string][]time.Duration
	latestTime map[string]time.Time
	mu         sync.RWMutex
}

// Metric names shared by the search, generation and queue components.
const (
	// Search
	MetricSearchRequests          = "search.requests"
	MetricSearchEmpty             = "search.empty_results"
	MetricSearchEmbeddingFailures = "search.embedding_failures"
	MetricSearchResponseTime      = "search.response_time"

	// Remote API calls by operation
	MetricAPICallsEmbed  = "genai.api_calls.embed"
	MetricAPICallsPlan   = "genai.api_calls.plan"
	MetricAPICallsDesign = "genai.api_calls.design"

	// Success/failure metrics
	MetricAPICallsSuccess = "genai.api_calls.success"
	MetricAPICallsFailure = "genai.api_calls.failure"

	// Response times
	MetricResponseTimeEmbed  = "genai.response_time.embed"
	MetricResponseTimePlan   = "genai.response_time.plan"
	MetricResponseTimeDesign = "genai.response_time.design"

	// Planner
	MetricPlansGenerated   = "planner.plans_generated"
	MetricRetryAttempts    = "planner.retry_attempts"
	MetricFallbackAttempts = "planner.fallback_attempts"
	MetricPlanCacheHits    = "planner.cache.hits"
	MetricPlanCacheMisses  = "planner.cache.misses"
	MetricPlanCacheSize    = "planner.cache.size"
	MetricPlanTotalTime    = "planner.total_time"

	// Orchestrator
	MetricRunsStarted       = "orchestrator.runs_started"
	MetricTasksEnqueued     = "orchestrator.tasks_enqueued"
	MetricImagesGenerated   = "orchestrator.images_generated"
	MetricImagesFallback    = "orchestrator.images_fallback"
	MetricTaskTime          = "orchestrator.task_time"
	MetricQueueDepth        = "orchestrator.queue_depth"
	MetricLastTaskCompleted = "orchestrator.last_task_completed"
)

// NewMetricsCollector creates a new MetricsCollector instance
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		timers:     make(map[string][]time.Duration),
		latestTime: make(map[string]time.Time),
	}
}

// IncrementCounter increments a named counter by the specified amount
func (m *MetricsCollector) IncrementCounter(name string, amount int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[name] += amount
}

// SetGauge sets a named gauge to the specified value
func (m *MetricsCollector) SetGauge(name string, value float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gauges[name] = value
}

// RecordTimer records a duration for the specified timer
func (m *MetricsCollector) RecordTimer(name string, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timers[name] = append(m.timers[name], duration)

	// Limit the number of stored durations to avoid unbounded growth
	if len(m.timers[name]) > 100 {
		m.timers[name] = m.timers[name][1:]
	}
}

// RecordTimestamp records the current time for the specified event
func (m *MetricsCollector) RecordTimestamp(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latestTime[name] = time.Now()
}

// GetCounter retrieves the current value of a counter
func (m *MetricsCollector) GetCounter(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.counters[name]
}

// GetGauge retrieves the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.gauges[name]
}

// GetTimerAverage calculates the average duration for a timer
func (m *MetricsCollector) GetTimerAverage(name string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return timerAverage(m.timers[name])
}

// GetTimerP95 calculates the 95th percentile duration for a timer
func (m *MetricsCollector) GetTimerP95(name string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return timerP95(m.timers[name])
}

func timerAverage(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

func timerP95(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// GetTimeSince calculates the time elapsed since a recorded timestamp
func (m *MetricsCollector) GetTimeSince(name string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	timestamp, exists := m.latestTime[name]
	if !exists {
		return 0
	}

	return time.Since(timestamp)
}

// GetReport generates a report of all collected metrics
func (m *MetricsCollector) GetReport() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := "Metrics Report:\n"
	report += "==============\n\n"

	report += "Counters:\n"
	for _, name := range sortedKeys(m.counters) {
		report += fmt.Sprintf("  %s: %d\n", name, m.counters[name])
	}

	report += "\nGauges:\n"
	for _, name := range sortedKeys(m.gauges) {
		report += fmt.Sprintf("  %s: %.2f\n", name, m.gauges[name])
	}

	report += "\nTimers (avg):\n"
	for _, name := range sortedKeys(m.timers) {
		durations := m.timers[name]
		report += fmt.Sprintf("  %s: avg=%v p95=%v count=%d\n",
			name, timerAverage(durations), timerP95(durations), len(durations))
	}

	report += "\nTime Since:\n"
	for _, name := range sortedKeys(m.latestTime) {
		timestamp := m.latestTime[name]
		report += fmt.Sprintf("  %s: %v ago (%s)\n",
			name, time.Since(timestamp).Round(time.Millisecond), timestamp.Format(time.RFC3339))
	}

	return report
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reset clears all collected metrics
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters = make(map[string]int64)
	m.gauges = make(map[string]float64)
	m.timers = make(map[string][]time.Duration)
	m.latestTime = make(map[string]time.Time)
}
