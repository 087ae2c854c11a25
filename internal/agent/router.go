package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"discordqa/internal/domain"
)

// Router asks the chat model to pick a retrieval strategy through a forced
// decide_approach call.
type Router struct {
	chat   domain.ChatProvider
	model  string
	driver string
	logger *slog.Logger
	now    func() time.Time
}

// RouterConfig configures a Router.
type RouterConfig struct {
	Chat   domain.ChatProvider
	Model  string // optional override of the provider's default model
	Driver string // store driver, selects the SQL dialect hint
	Logger *slog.Logger
}

// NewRouter returns a Router that calls cfg.Chat.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		chat:   cfg.Chat,
		model:  cfg.Model,
		driver: cfg.Driver,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// decisionArgs mirrors the decide_approach parameters. Pointers distinguish a
// missing field from an empty one.
type decisionArgs struct {
	Approach *string `json:"approach"`
	SQLQuery *string `json:"sql_query"`
}

// Decide makes exactly one forced routing call. It returns the transcript so far
// ([system, user, assistant]) and a nil decision when the model produced no usable
// function call. Chat errors are returned as is.
func (r *Router) Decide(ctx context.Context, question string) (*domain.Decision, []domain.Message, error) {
	transcript := []domain.Message{
		systemMessage(BuildSystemPrompt(r.now(), r.driver)),
		userMessage(question),
	}

	resp, err := r.chat.Chat(ctx, domain.ChatRequest{
		Messages:  transcript,
		Tools:     []domain.ToolDefinition{DecisionTool()},
		ForceTool: DecisionToolName,
		Model:     r.model,
	})
	if err != nil {
		return nil, transcript, fmt.Errorf("routing call: %w", err)
	}

	assistant := resp.Message
	assistant.Role = domain.RoleAssistant
	if len(assistant.ToolCalls) > 1 {
		// Only the first call is acted on, and every call in an assistant message
		// needs a matching tool reply, so the rest are dropped.
		r.logger.Warn("routing produced multiple tool calls, using the first", "count", len(assistant.ToolCalls))
		assistant.ToolCalls = assistant.ToolCalls[:1]
	}
	transcript = append(transcript, assistant)

	if len(assistant.ToolCalls) == 0 {
		r.logger.Info("routing produced no function call", "finish_reason", resp.FinishReason)
		return nil, transcript, nil
	}

	call := assistant.ToolCalls[0]
	decision, err := parseDecision(call.Function.Arguments)
	if err != nil {
		r.logger.Warn("routing arguments unparseable", "arguments", call.Function.Arguments, "err", err)
		return nil, transcript, nil
	}
	if decision.Approach == "" {
		r.logger.Info("routing omitted or sent unknown approach, defaulting to rag", "arguments", call.Function.Arguments)
		decision.Approach = domain.ApproachRAG
	}
	decision.CallID = call.ID
	decision.CallName = call.Function.Name
	if decision.CallName == "" {
		decision.CallName = DecisionToolName
	}

	r.logger.Debug("routing decision", "approach", decision.Approach, "has_query", decision.SQLQuery != "")
	return decision, transcript, nil
}

// parseDecision validates the raw arguments into a Decision. An empty Approach in
// the result means the field was missing or not one of the known strategies.
// Empty arguments are treated as an empty object.
func parseDecision(raw string) (*domain.Decision, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	var args decisionArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}

	d := &domain.Decision{}
	if args.Approach != nil {
		switch a := domain.Approach(strings.ToLower(strings.TrimSpace(*args.Approach))); a {
		case domain.ApproachRAG, domain.ApproachSQL:
			d.Approach = a
		}
	}
	if args.SQLQuery != nil {
		d.SQLQuery = *args.SQLQuery
	}
	return d, nil
}
