// Package genai talks to the Gemini REST API: query embeddings, plan
// generation and design image generation.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/chiclooc-rgb/card-news-generator/internal/telemetry"
)

const (
	// DefaultBaseURL is the Gemini REST endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	DefaultEmbeddingModel = "text-embedding-004"
	DefaultPlanModel      = "gemini-2.0-flash"
	DefaultImageModel     = "gemini-3-pro-image-preview"

	// DefaultTimeout bounds a single request. Image generation is slow.
	DefaultTimeout = 120 * time.Second

	maxResponseBytes = 64 << 20
)

var (
	// ErrMissingAPIKey is returned before any request when no key is configured.
	ErrMissingAPIKey = errors.New("genai: API key not configured")

	// ErrNoImage is returned when a design response carries no image part.
	ErrNoImage = errors.New("genai: no image returned")

	// ErrEmptyResponse is returned when a response has no usable candidate.
	ErrEmptyResponse = errors.New("genai: empty response")
)

// Config holds the Gemini client settings.
type Config struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	PlanModel      string
	ImageModel     string
	Timeout        time.Duration

	// RequestsPerMinute paces outgoing requests. Zero disables pacing.
	RequestsPerMinute int

	// Restrictions are extra prohibitions appended to every design prompt.
	Restrictions []string

	// Characters are mascot assets inlined when their keyword occurs in page content.
	Characters []Character
}

// Character is a mascot image the design model must reproduce verbatim.
type Character struct {
	Keyword string `json:"keyword"`
	Name    string `json:"name"`
	URL     string `json:"url"`
}

// Client is a Gemini REST client. It is safe for concurrent use.
type Client struct {
	Config
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *telemetry.MetricsCollector
	logger     *slog.Logger
}

// NewClient creates a client, filling unset fields with defaults.
func NewClient(config Config, metrics *telemetry.MetricsCollector, logger *slog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = DefaultEmbeddingModel
	}
	if config.PlanModel == "" {
		config.PlanModel = DefaultPlanModel
	}
	if config.ImageModel == "" {
		config.ImageModel = DefaultImageModel
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(config.RequestsPerMinute)/60.0), 1)
	}

	return &Client{
		Config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

// Part is one element of a multimodal message.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is base64 encoded binary content.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Content is a list of parts with an optional role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig controls sampling and output format.
type GenerationConfig struct {
	Temperature        *float64 `json:"temperature,omitempty"`
	MaxOutputTokens    int      `json:"maxOutputTokens,omitempty"`
	ResponseMimeType   string   `json:"responseMimeType,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

// GenerateRequest is the body of a :generateContent call.
type GenerateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

// GenerateResponse is the body returned by :generateContent.
type GenerateResponse struct {
	Candidates []struct {
		Content Content `json:"content"`
	} `json:"candidates"`
	Error *APIError `json:"error,omitempty"`
}

// APIError is the error object Gemini returns.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Status     string `json:"status"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("Gemini API error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("Gemini API error (%d): %s", e.StatusCode, e.Message)
}

// post sends body to models/<model>:<method> and decodes the JSON response into out.
func (c *Client) post(ctx context.Context, model, method string, body, out any) error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("genai: rate limiter: %w", err)
		}
	}

	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshaling request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/models/%s:%s?key=%s", c.BaseURL, model, method, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request to Gemini API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Status = envelope.Error.Status
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}
	return nil
}

// record updates call counters and timers for one API operation.
func (c *Client) record(counter, timer string, start time.Time, err error) {
	c.metrics.IncrementCounter(counter, 1)
	c.metrics.RecordTimer(timer, time.Since(start))
	if err != nil {
		c.metrics.IncrementCounter(telemetry.MetricAPICallsFailure, 1)
		return
	}
	c.metrics.IncrementCounter(telemetry.MetricAPICallsSuccess, 1)
}

// Healthy reports whether the client has credentials to make calls.
func (c *Client) Healthy() bool {
	return c != nil && c.APIKey != ""
}
