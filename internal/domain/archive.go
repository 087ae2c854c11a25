package domain

import "context"

// EmbeddingStore persists message records and their vectors.
type EmbeddingStore interface {
	// SaveMessage inserts the record unless a record with the same ID exists.
	SaveMessage(ctx context.Context, msg ArchivedMessage) error

	// UpsertEmbedding inserts the vector for id or overwrites the existing one.
	UpsertEmbedding(ctx context.Context, id string, vec []float32) error

	// Nearest returns up to k rows ordered by ascending distance to vec.
	Nearest(ctx context.Context, vec []float32, k int) ([]EvidenceRow, error)
}

// ReadQuerier runs an arbitrary statement against the relational store in read
// mode and returns the rows in the order the statement produced them.
type ReadQuerier interface {
	QueryRead(ctx context.Context, query string, maxRows int) (rows []map[string]any, truncated bool, err error)
}

// Archive is the full storage surface used by the CLI and transports.
type Archive interface {
	EmbeddingStore
	ReadQuerier
	Stats(ctx context.Context) (ArchiveStats, error)
	Ping(ctx context.Context) error
	Close() error
}

type ArchiveStats struct {
	Messages   int `json:"messages"`
	Embeddings int `json:"embeddings"`
}
