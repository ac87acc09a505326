package telemetry

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestCreateHealthReport(t *testing.T) {
	m := NewMetricsCollector()
	m.IncrementCounter(MetricAPICallsSuccess, 80)
	m.IncrementCounter(MetricAPICallsFailure, 20)
	m.IncrementCounter(MetricImagesGenerated, 4)
	m.IncrementCounter(MetricImagesFallback, 1)
	m.SetGauge(MetricQueueDepth, 2)
	m.RecordTimer(MetricResponseTimeDesign, 500*time.Millisecond)

	report, err := CreateHealthReport(m, map[string]bool{"corpus": true, "generator": true})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if report.Status != StatusHealthy {
		t.Errorf("Expected status to be healthy, got %s", report.Status)
	}
	if report.TotalRequests != 100 {
		t.Errorf("Expected 100 total requests, got %d", report.TotalRequests)
	}
	if report.SuccessRate != 80.0 {
		t.Errorf("Expected 80%% success rate, got %.1f%%", report.SuccessRate)
	}
	if report.Generation["images_generated"] != 4 || report.Generation["images_fallback"] != 1 {
		t.Errorf("Unexpected generation stats %v", report.Generation)
	}
	if report.QueueDepth != 2 {
		t.Errorf("Expected queue depth 2, got %d", report.QueueDepth)
	}
	if report.ResponseTimes["design"] != 500 {
		t.Errorf("Expected 500ms design time, got %.1f", report.ResponseTimes["design"])
	}
}

func TestHealthReportStatus(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		want       HealthStatus
	}{
		{"no components", nil, StatusHealthy},
		{"all up", map[string]bool{"corpus": true, "embedder": true}, StatusHealthy},
		{"some down", map[string]bool{"corpus": true, "embedder": false}, StatusDegraded},
		{"all down", map[string]bool{"corpus": false, "embedder": false}, StatusUnhealthy},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			report, err := CreateHealthReport(NewMetricsCollector(), test.components)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if report.Status != test.want {
				t.Errorf("Expected %s, got %s", test.want, report.Status)
			}
			for name, up := range test.components {
				if up != (report.Components[name] == string(StatusHealthy)) {
					t.Errorf("Component %s reported as %s", name, report.Components[name])
				}
			}
		})
	}
}

func TestCreateHealthReportErrors(t *testing.T) {
	if _, err := CreateHealthReport(nil, nil); err == nil {
		t.Error("Expected error for nil metrics")
	}
}

func TestCreateHealthReportJSON(t *testing.T) {
	out, err := CreateHealthReportJSON(NewMetricsCollector(), map[string]bool{"corpus": false})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if decoded["status"] != string(StatusUnhealthy) {
		t.Errorf("Expected unhealthy status, got %v", decoded["status"])
	}
}

func TestMetricsReport(t *testing.T) {
	m := NewMetricsCollector()
	m.IncrementCounter(MetricSearchRequests, 3)
	m.RecordTimer(MetricTaskTime, 10*time.Millisecond)
	m.RecordTimer(MetricTaskTime, 30*time.Millisecond)

	if avg := m.GetTimerAverage(MetricTaskTime); avg != 20*time.Millisecond {
		t.Errorf("Expected 20ms average, got %v", avg)
	}

	report := m.GetReport()
	if !strings.Contains(report, MetricSearchRequests) {
		t.Errorf("Expected counter in report, got %s", report)
	}

	m.Reset()
	if m.GetCounter(MetricSearchRequests) != 0 {
		t.Error("Expected counters to be reset")
	}

	var nilCollector *MetricsCollector
	nilCollector.IncrementCounter(MetricSearchRequests, 1)
}
