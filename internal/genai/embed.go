package genai

import (
	"context"
	"time"

	"github.com/chiclooc-rgb/card-news-generator/internal/telemetry"
	"github.com/chiclooc-rgb/card-news-generator/internal/vector"
)

type embedRequest struct {
	Model    string  `json:"model"`
	Content  Content `json:"content"`
	TaskType string  `json:"taskType"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Initialize checks that the client can create embeddings.
func (c *Client) Initialize() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// CreateEmbedding returns the retrieval-query embedding of text, truncated
// to vector.MaxQueryLength characters.
func (c *Client) CreateEmbedding(ctx context.Context, text string) (embedding []float32, err error) {
	start := time.Now()
	defer func() {
		c.record(telemetry.MetricAPICallsEmbed, telemetry.MetricResponseTimeEmbed, start, err)
	}()

	req := embedRequest{
		Model: "models/" + c.EmbeddingModel,
		Content: Content{
			Parts: []Part{{Text: vector.TruncateQuery(text)}},
		},
		TaskType: "RETRIEVAL_QUERY",
	}

	var resp embedResponse
	if err := c.post(ctx, c.EmbeddingModel, "embedContent", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, ErrEmptyResponse
	}
	return resp.Embedding.Values, nil
}

var _ vector.Embedder = (*Client)(nil)
