package genai

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockResponseConfig holds configuration for mock API responses
type MockResponseConfig struct {
	StatusCode   int
	ResponseBody interface{}
	Headers      map[string]string
}

// capturedRequest is a request body seen by the mock server.
type capturedRequest struct {
	Path string
	Body []byte
}

// mockServer serves the configured response for the first route whose key is
// a substring of the request path, and records every request.
type mockServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
}

func (m *mockServer) captured() []capturedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]capturedRequest(nil), m.requests...)
}

// MockServer creates a test server that returns the configured response per route
func MockServer(t *testing.T, routes map[string]MockResponseConfig) *mockServer {
	t.Helper()
	m := &mockServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		m.mu.Lock()
		m.requests = append(m.requests, capturedRequest{Path: r.URL.Path, Body: body})
		m.mu.Unlock()

		var config *MockResponseConfig
		for key, c := range routes {
			if strings.Contains(r.URL.Path, key) {
				c := c
				config = &c
				break
			}
		}
		if config == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		// Set headers
		for k, v := range config.Headers {
			w.Header().Set(k, v)
		}

		// Always set content type if not explicitly set
		if _, exists := config.Headers["Content-Type"]; !exists {
			w.Header().Set("Content-Type", "application/json")
		}

		w.WriteHeader(config.StatusCode)

		if config.ResponseBody != nil {
			var respBytes []byte
			var err error

			switch body := config.ResponseBody.(type) {
			case string:
				respBytes = []byte(body)
			case []byte:
				respBytes = body
			default:
				respBytes, err = json.Marshal(body)
				if err != nil {
					t.Errorf("Failed to marshal mock response: %v", err)
					return
				}
			}

			if _, err := w.Write(respBytes); err != nil {
				t.Errorf("Failed to write response body: %v", err)
			}
		}
	}))
	t.Cleanup(m.Close)
	return m
}
