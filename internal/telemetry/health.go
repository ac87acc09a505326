package telemetry

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	// StatusHealthy indicates a component is fully operational
	StatusHealthy HealthStatus = "healthy"

	// StatusDegraded indicates a component is operational but with reduced capability
	StatusDegraded HealthStatus = "degraded"

	// StatusUnhealthy indicates a component is not operational
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Version is reported in health reports.
var Version = "dev"

// HealthReport contains information about the current health of the generator
type HealthReport struct {
	Status        HealthStatus       `json:"status"`
	Timestamp     time.Time          `json:"timestamp"`
	Components    map[string]string  `json:"components"`
	ResponseTimes map[string]float64 `json:"response_times_ms"`
	Generation    map[string]int64   `json:"generation"`
	QueueDepth    int64              `json:"queue_depth"`
	SuccessRate   float64            `json:"success_rate"`
	TotalRequests int64              `json:"total_requests"`
	Version       string             `json:"version"`
}

// CreateHealthReport builds a report from m and the readiness of each
// named component. The search path degrades to empty results rather than
// failing, so a report with some components down is degraded, and only a
// report with every component down is unhealthy.
func CreateHealthReport(m *MetricsCollector, components map[string]bool) (*HealthReport, error) {
	if m == nil {
		return nil, fmt.Errorf("metrics collector is nil")
	}

	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	status := StatusHealthy
	working := 0
	componentStatus := make(map[string]string, len(components))
	for _, name := range names {
		if components[name] {
			working++
			componentStatus[name] = string(StatusHealthy)
		} else {
			componentStatus[name] = string(StatusUnhealthy)
		}
	}
	if len(components) > 0 {
		if working == 0 {
			status = StatusUnhealthy
		} else if working < len(components) {
			status = StatusDegraded
		}
	}

	// Calculate success rate
	totalSuccess := m.GetCounter(MetricAPICallsSuccess)
	totalFailure := m.GetCounter(MetricAPICallsFailure)
	totalRequests := totalSuccess + totalFailure

	var successRate float64
	if totalRequests > 0 {
		successRate = float64(totalSuccess) / float64(totalRequests) * 100.0
	}

	ms := func(name string) float64 {
		return float64(m.GetTimerAverage(name)) / float64(time.Millisecond)
	}

	return &HealthReport{
		Status:     status,
		Timestamp:  time.Now(),
		Components: componentStatus,
		ResponseTimes: map[string]float64{
			"embed":  ms(MetricResponseTimeEmbed),
			"plan":   ms(MetricResponseTimePlan),
			"design": ms(MetricResponseTimeDesign),
			"search": ms(MetricSearchResponseTime),
			"task":   ms(MetricTaskTime),
		},
		Generation: map[string]int64{
			"runs":             m.GetCounter(MetricRunsStarted),
			"tasks_enqueued":   m.GetCounter(MetricTasksEnqueued),
			"images_generated": m.GetCounter(MetricImagesGenerated),
			"images_fallback":  m.GetCounter(MetricImagesFallback),
			"plans_generated":  m.GetCounter(MetricPlansGenerated),
			"plan_fallbacks":   m.GetCounter(MetricFallbackAttempts),
		},
		QueueDepth:    int64(m.GetGauge(MetricQueueDepth)),
		SuccessRate:   successRate,
		TotalRequests: totalRequests,
		Version:       Version,
	}, nil
}

// CreateHealthReportJSON generates a JSON health report
func CreateHealthReportJSON(m *MetricsCollector, components map[string]bool) (string, error) {
	report, err := CreateHealthReport(m, components)
	if err != nil {
		return "", err
	}

	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal health report: %w", err)
	}

	return string(reportJSON), nil
}
