package domain

import (
	"strings"
	"time"
)

// EmbeddingDimensions is the vector length produced by the embedding model used at
// ingestion time. Query embeddings must have the same length.
const EmbeddingDimensions = 1536

// ArchivedMessage is a single message scraped from a Discord text channel.
// Records are immutable once stored.
type ArchivedMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Storable reports whether the message carries content worth archiving.
func (m ArchivedMessage) Storable() bool {
	return m.ID != "" && strings.TrimSpace(m.Content) != ""
}

// EvidenceRow is one k-NN hit joined with its message record. The join fields are
// nil when a vector exists without a matching message.
type EvidenceRow struct {
	ID        string     `json:"id"`
	Distance  float64    `json:"distance"`
	ChannelID *string    `json:"channel_id"`
	AuthorID  *string    `json:"author_id"`
	Content   *string    `json:"content"`
	CreatedAt *time.Time `json:"created_at"`
}

// QueryResult is the outcome of executing a model-authored read query. Exactly one
// of Rows or Error is meaningful.
type QueryResult struct {
	Rows      []map[string]any `json:"rows,omitempty"`
	Truncated bool             `json:"truncated,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Failed reports whether the query produced an error instead of rows.
func (r QueryResult) Failed() bool { return r.Error != "" }
