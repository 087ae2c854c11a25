package domain

import (
	"context"
	"errors"
)

var (
	// ErrEmptyQuestion is returned when a question is empty or whitespace only.
	ErrEmptyQuestion = errors.New("no query provided")

	// ErrDimensionMismatch is returned when a vector has the wrong length for the store.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrForbidden marks upstream 403 responses (missing channel permissions).
	ErrForbidden = errors.New("forbidden")
)

// Chat role names, matching the OpenAI chat wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatProvider is a chat-completion backend that supports function calling.
type ChatProvider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
	Healthy(ctx context.Context) error
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

type ChatRequest struct {
	Messages []Message
	Tools    []ToolDefinition
	// ForceTool, when set, names the single tool the model must call.
	ForceTool   string
	Model       string
	MaxTokens   int
	Temperature float64
}

type ChatResponse struct {
	Message      Message
	FinishReason string // stop | tool_calls | length
	Usage        Usage
	LatencyMs    int64
}

func (r *ChatResponse) HasToolCalls() bool {
	return len(r.Message.ToolCalls) > 0
}

// Message is one transcript entry. The JSON form mirrors the OpenAI chat message so
// transcripts can be inspected or replayed by callers.
type Message struct {
	Role       string     `json:"role"` // system | user | assistant | tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the raw JSON arguments exactly as the model produced them.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
