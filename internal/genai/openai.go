package genai

import (
	"context"
	"errors"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/chiclooc-rgb/card-news-generator/internal/telemetry"
	"github.com/chiclooc-rgb/card-news-generator/internal/vector"
)

// DefaultOpenAIEmbeddingModel is used when no model is configured.
const DefaultOpenAIEmbeddingModel = "text-embedding-3-small"

// OpenAIEmbedder creates query embeddings through the OpenAI embeddings API.
// Dimensions must match the corpus the embeddings are searched against.
type OpenAIEmbedder struct {
	Model      string
	Dimensions int
	Opts       []option.RequestOption
	metrics    *telemetry.MetricsCollector
}

// NewOpenAIEmbedder creates an embedder. baseURL may be empty.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int, metrics *telemetry.MetricsCollector) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key missing; provide embedder.api_key")
	}
	if model == "" {
		model = DefaultOpenAIEmbeddingModel
	}
	if dimensions <= 0 {
		dimensions = vector.DefaultEmbeddingDimensions
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIEmbedder{
		Model:      model,
		Dimensions: dimensions,
		Opts:       opts,
		metrics:    metrics,
	}, nil
}

// Initialize implements vector.Embedder.
func (e *OpenAIEmbedder) Initialize() error {
	return nil
}

// CreateEmbedding implements vector.Embedder.
func (e *OpenAIEmbedder) CreateEmbedding(ctx context.Context, text string) (embedding []float32, err error) {
	start := time.Now()
	defer func() {
		e.metrics.IncrementCounter(telemetry.MetricAPICallsEmbed, 1)
		e.metrics.RecordTimer(telemetry.MetricResponseTimeEmbed, time.Since(start))
		if err != nil {
			e.metrics.IncrementCounter(telemetry.MetricAPICallsFailure, 1)
		} else {
			e.metrics.IncrementCounter(telemetry.MetricAPICallsSuccess, 1)
		}
	}()

	client := openai.NewClient(e.Opts...)

	resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(vector.TruncateQuery(text)),
		},
		Model:      openai.EmbeddingModel(e.Model),
		Dimensions: openai.Int(int64(e.Dimensions)),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai: empty embedding data")
	}

	values := resp.Data[0].Embedding
	embedding = make([]float32, len(values))
	for i, v := range values {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

var _ vector.Embedder = (*OpenAIEmbedder)(nil)
