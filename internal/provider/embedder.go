package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"discordqa/internal/domain"

	"github.com/sashabaranov/go-openai"
)

// Embedder implements domain.Embedder over the OpenAI embeddings endpoint. The same
// instance (same model, same dimensions) must serve ingestion and querying.
type Embedder struct {
	client *openai.Client
	model  string
	dims   int
	logger *slog.Logger
}

type EmbedderConfig struct {
	Kind       string
	APIKey     string
	APIBase    string
	APIVersion string
	Model      string
	Dimensions int
	Timeout    time.Duration
	Logger     *slog.Logger
}

func NewEmbedder(cfg EmbedderConfig) *Embedder {
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = domain.EmbeddingDimensions
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cc := clientConfig(OpenAIConfig{
		Kind:       cfg.Kind,
		APIKey:     cfg.APIKey,
		APIBase:    cfg.APIBase,
		APIVersion: cfg.APIVersion,
		Timeout:    cfg.Timeout,
	})
	return &Embedder{
		client: openai.NewClientWithConfig(cc),
		model:  cfg.Model,
		dims:   cfg.Dimensions,
		logger: cfg.Logger,
	}
}

func (e *Embedder) Dimensions() int { return e.dims }

// Embed returns the embedding for text. Failures are returned as-is; callers decide
// whether they are fatal.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	}
	// Only the text-embedding-3 family accepts an explicit output size.
	if strings.HasPrefix(e.model, "text-embedding-3") {
		req.Dimensions = e.dims
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	vec := resp.Data[0].Embedding
	if len(vec) != e.dims {
		return nil, fmt.Errorf("%w: model %s returned %d, want %d", domain.ErrDimensionMismatch, e.model, len(vec), e.dims)
	}
	return vec, nil
}
