package retrieval

import (
	"context"
	"log/slog"
	"time"

	"discordqa/internal/domain"
)

// Executor runs model-authored queries against the archive in read mode.
type Executor struct {
	store   domain.ReadQuerier
	maxRows int
	guard   bool
	logger  *slog.Logger
}

// ExecutorConfig configures an Executor. MaxRows <= 0 means no row cap.
type ExecutorConfig struct {
	MaxRows int
	// Guard enables the single read-statement allow-list in front of the store.
	Guard  bool
	Logger *slog.Logger
}

// NewExecutor returns an Executor reading from store.
func NewExecutor(store domain.ReadQuerier, cfg ExecutorConfig) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		store:   store,
		maxRows: cfg.MaxRows,
		guard:   cfg.Guard,
		logger:  cfg.Logger,
	}
}

// Execute runs query verbatim. It never fails: rejections, syntax errors and
// driver errors come back in QueryResult.Error so they can be handed to the
// model as evidence.
func (e *Executor) Execute(ctx context.Context, query string) domain.QueryResult {
	if e.guard {
		if err := CheckReadOnly(query); err != nil {
			e.logger.Warn("generated query rejected", "query", query, "err", err)
			return domain.QueryResult{Error: err.Error()}
		}
	}

	start := time.Now()
	rows, truncated, err := e.store.QueryRead(ctx, query, e.maxRows)
	if err != nil {
		e.logger.Info("generated query failed", "query", query, "err", err)
		return domain.QueryResult{Error: err.Error()}
	}

	e.logger.Debug("generated query executed",
		"rows", len(rows),
		"truncated", truncated,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return domain.QueryResult{Rows: rows, Truncated: truncated}
}
