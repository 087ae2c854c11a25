package agent

import (
	"fmt"
	"time"

	"discordqa/internal/domain"
)

// DecisionToolName is the single function the routing call is forced to invoke.
const DecisionToolName = "decide_approach"

// archiveSchema is shown to the model so generated queries reference real columns.
const archiveSchema = `discord_messages (
    id TEXT PRIMARY KEY,
    channel_id TEXT NOT NULL,
    author_id TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
)`

// DecisionTool is the schema of decide_approach. Only approach is required; the
// engine validates sql_query itself.
func DecisionTool() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        DecisionToolName,
		Description: "Decide whether to answer the question with similarity search over message content (rag) or with a SQL query over the discord_messages table (sql).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"approach": map[string]any{
					"type":        "string",
					"enum":        []string{string(domain.ApproachRAG), string(domain.ApproachSQL)},
					"description": "rag for summarised information from the conversation content, sql for structured data questions such as counts, dates or authors.",
				},
				"sql_query": map[string]any{
					"type":        "string",
					"description": "A single SQL SELECT statement against discord_messages. Required when approach is sql.",
				},
			},
			"required": []string{"approach"},
		},
	}
}

// BuildSystemPrompt returns the routing instruction for the given store dialect.
func BuildSystemPrompt(now time.Time, driver string) string {
	dateHint := "created_at is stored as UTC text like 2024-03-01 12:30:00; compare it with SQLite date functions such as datetime('now', '-7 days') for relative ranges."
	if driver == "postgres" {
		dateHint = "created_at is a timestamptz; use PostgreSQL expressions such as now() - interval '7 days' for relative ranges."
	}

	return fmt.Sprintf(`You are a helpful assistant that answers questions about an archive of Discord messages. You can answer using either:

1) RAG-based similarity search, when the user wants summarised information from the actual conversation content, OR
2) A generated SQL query, when the user wants structured data such as counts, dates, channels or authors.

Do not mix them. Decide which approach is best for the user's question.
If you choose SQL, provide one valid SQL SELECT statement that references the discord_messages table. Never write INSERT, UPDATE, DELETE or DDL statements.

Schema:
%s

%s

## Current Time
%s`, archiveSchema, dateHint, now.UTC().Format("2006-01-02 15:04 (Monday) MST"))
}

func systemMessage(content string) domain.Message {
	return domain.Message{Role: domain.RoleSystem, Content: content}
}

func userMessage(content string) domain.Message {
	return domain.Message{Role: domain.RoleUser, Content: content}
}
