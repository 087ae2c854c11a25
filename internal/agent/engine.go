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

// Retriever is the vector search path.
type Retriever interface {
	SimilaritySearch(ctx context.Context, question string, topK int) ([]domain.EvidenceRow, error)
}

// QueryExecutor is the generated-query path. Execute reports failures as data.
type QueryExecutor interface {
	Execute(ctx context.Context, query string) domain.QueryResult
}

// Observer receives one notification per finished ask.
type Observer interface {
	ObserveAsk(outcome domain.Outcome, approach domain.Approach, elapsed time.Duration)
}

// Engine answers questions: route, retrieve with exactly one strategy, synthesize.
type Engine struct {
	router    *Router
	chat      domain.ChatProvider
	model     string
	retriever Retriever
	executor  QueryExecutor
	topK      int
	observer  Observer
	logger    *slog.Logger
}

// EngineConfig holds all dependencies of the engine.
type EngineConfig struct {
	Chat      domain.ChatProvider
	Model     string
	Driver    string
	Retriever Retriever
	Executor  QueryExecutor
	TopK      int      // passed to every similarity search; <= 0 uses the retriever default
	Observer  Observer // optional
	Logger    *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		router: NewRouter(RouterConfig{
			Chat:   cfg.Chat,
			Model:  cfg.Model,
			Driver: cfg.Driver,
			Logger: cfg.Logger,
		}),
		chat:      cfg.Chat,
		model:     cfg.Model,
		retriever: cfg.Retriever,
		executor:  cfg.Executor,
		topK:      cfg.TopK,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
	}
}

// Answer runs one question through the pipeline. Terminal no-decision and
// empty-query paths return a fixed answer without a transcript. Errors from the
// chat or embedding collaborators are returned unchanged in kind.
func (e *Engine) Answer(ctx context.Context, question string) (*domain.AskResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrEmptyQuestion
	}

	start := time.Now()
	res, err := e.answer(ctx, question)
	elapsed := time.Since(start)

	outcome, approach := domain.OutcomeFailed, domain.Approach("")
	if err == nil {
		outcome, approach = res.Outcome, res.Approach
		e.logger.Info("ask finished", "outcome", outcome, "approach", approach, "latency_ms", elapsed.Milliseconds())
	} else {
		e.logger.Error("ask failed", "latency_ms", elapsed.Milliseconds(), "err", err)
	}
	if e.observer != nil {
		e.observer.ObserveAsk(outcome, approach, elapsed)
	}
	return res, err
}

func (e *Engine) answer(ctx context.Context, question string) (*domain.AskResult, error) {
	decision, transcript, err := e.router.Decide(ctx, question)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return &domain.AskResult{
			Answer:  domain.AnswerNoDecision,
			Outcome: domain.OutcomeNoDecision,
		}, nil
	}

	var evidence string
	switch decision.Approach {
	case domain.ApproachSQL:
		if strings.TrimSpace(decision.SQLQuery) == "" {
			return &domain.AskResult{
				Answer:   domain.AnswerNoSQLQuery,
				Approach: domain.ApproachSQL,
				Outcome:  domain.OutcomeRejected,
			}, nil
		}
		res := e.executor.Execute(ctx, decision.SQLQuery)
		evidence = queryEvidence(res)
		e.logger.Info("query evidence", "rows", len(res.Rows), "failed", res.Failed(), "truncated", res.Truncated)
	default:
		rows, err := e.retriever.SimilaritySearch(ctx, question, e.topK)
		if err != nil {
			return nil, fmt.Errorf("similarity search: %w", err)
		}
		evidence = vectorEvidence(rows)
		e.logger.Info("vector evidence", "rows", len(rows))
	}

	transcript = append(transcript, domain.Message{
		Role:       domain.RoleTool,
		ToolCallID: decision.CallID,
		Name:       decision.CallName,
		Content:    evidence,
	})

	resp, err := e.chat.Chat(ctx, domain.ChatRequest{Messages: transcript, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("synthesis call: %w", err)
	}
	final := resp.Message
	final.Role = domain.RoleAssistant
	transcript = append(transcript, final)

	return &domain.AskResult{
		Answer:      final.Content,
		ChatHistory: transcript,
		Approach:    decision.Approach,
		Outcome:     domain.OutcomeAnswered,
	}, nil
}

// vectorEvidence renders k-NN rows as a JSON array, best match first.
func vectorEvidence(rows []domain.EvidenceRow) string {
	if rows == nil {
		rows = []domain.EvidenceRow{}
	}
	return encodeEvidence(rows)
}

// queryEvidence renders a query result: a JSON array of rows on success, an
// object with the rows and a truncated flag when capped, or {"error": ...}.
func queryEvidence(res domain.QueryResult) string {
	switch {
	case res.Failed():
		return encodeEvidence(map[string]string{"error": res.Error})
	case res.Truncated:
		return encodeEvidence(map[string]any{"rows": res.Rows, "truncated": true})
	case res.Rows == nil:
		return "[]"
	default:
		return encodeEvidence(res.Rows)
	}
}

// encodeEvidence falls back to an error object when driver values cannot be
// encoded, so the model still sees why evidence is missing.
func encodeEvidence(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"error": "cannot encode evidence: " + err.Error()})
	}
	return string(data)
}
