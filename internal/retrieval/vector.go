package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"discordqa/internal/domain"
)

// DefaultTopK is used when neither the caller nor the config sets a bound.
const DefaultTopK = 15

// VectorRetriever embeds a question and looks up its nearest archived messages.
type VectorRetriever struct {
	embedder domain.Embedder
	store    domain.EmbeddingStore
	topK     int
	logger   *slog.Logger
}

func NewVectorRetriever(embedder domain.Embedder, store domain.EmbeddingStore, topK int, logger *slog.Logger) *VectorRetriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorRetriever{embedder: embedder, store: store, topK: topK, logger: logger}
}

// DefaultTopK returns the configured result bound.
func (r *VectorRetriever) DefaultTopK() int { return r.topK }

// SimilaritySearch returns up to topK rows, best match first. topK <= 0 uses the
// configured default. Embedding and store errors are returned unchanged in kind.
func (r *VectorRetriever) SimilaritySearch(ctx context.Context, question string, topK int) ([]domain.EvidenceRow, error) {
	if topK <= 0 {
		topK = r.topK
	}
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	rows, err := r.store.Nearest(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbours: %w", err)
	}
	r.logger.Debug("similarity search", "top_k", topK, "hits", len(rows))
	return rows, nil
}
