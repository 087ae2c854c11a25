package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"discordqa/internal/domain"
)

// PostgresStore implements domain.Archive using Postgres + pgvector.
type PostgresStore struct {
	db     *pgxpool.Pool
	dims   int
	logger *slog.Logger
}

type PostgresConfig struct {
	DSN        string
	Dimensions int
	Logger     *slog.Logger
}

// NewPostgresStore connects to Postgres and makes sure the schema exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = domain.EmbeddingDimensions
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	db, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	store := &PostgresStore{db: db, dims: cfg.Dimensions, logger: cfg.Logger}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS discord_messages (
			id          TEXT PRIMARY KEY,
			channel_id  TEXT NOT NULL,
			author_id   TEXT NOT NULL,
			content     TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_discord_messages_channel ON discord_messages(channel_id, created_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vec_discord_messages (
			id          TEXT PRIMARY KEY,
			embedding   vector(%d) NOT NULL
		)`, ps.dims),
	}
	for _, stmt := range stmts {
		if _, err := ps.db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (ps *PostgresStore) SaveMessage(ctx context.Context, msg domain.ArchivedMessage) error {
	if !msg.Storable() {
		return fmt.Errorf("archive: message %q has no content", msg.ID)
	}
	_, err := ps.db.Exec(ctx, `
		INSERT INTO discord_messages (id, channel_id, author_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, msg.ID, msg.ChannelID, msg.AuthorID, msg.Content, msg.CreatedAt.UTC())
	return err
}

func (ps *PostgresStore) UpsertEmbedding(ctx context.Context, id string, vec []float32) error {
	if len(vec) != ps.dims {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vec), ps.dims)
	}
	_, err := ps.db.Exec(ctx, `
		INSERT INTO vec_discord_messages (id, embedding) VALUES ($1, $2::vector)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding
	`, id, vectorLiteral(vec))
	return err
}

func (ps *PostgresStore) Nearest(ctx context.Context, vec []float32, k int) ([]domain.EvidenceRow, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vec) != ps.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vec), ps.dims)
	}
	rows, err := ps.db.Query(ctx, `
		SELECT v.id, (v.embedding <-> $1::vector) AS distance,
		       m.channel_id, m.author_id, m.content, m.created_at
		FROM vec_discord_messages v
		LEFT JOIN discord_messages m ON m.id = v.id
		ORDER BY distance, v.id
		LIMIT $2
	`, vectorLiteral(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EvidenceRow
	for rows.Next() {
		var (
			row       domain.EvidenceRow
			createdAt *time.Time
		)
		if err := rows.Scan(&row.ID, &row.Distance, &row.ChannelID, &row.AuthorID, &row.Content, &createdAt); err != nil {
			return nil, err
		}
		if createdAt != nil {
			t := createdAt.UTC()
			row.CreatedAt = &t
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// QueryRead runs query inside a read-only transaction that is always rolled back.
func (ps *PostgresStore) QueryRead(ctx context.Context, query string, maxRows int) ([]map[string]any, bool, error) {
	tx, err := ps.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, false, err
	}
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			ps.logger.Warn("read-only rollback failed", "err", err)
		}
	}()

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]map[string]any, 0)
	truncated := false
	for rows.Next() {
		if maxRows > 0 && len(out) == maxRows {
			truncated = true
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, false, err
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = normalizeValue(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, truncated, nil
}

func (ps *PostgresStore) Stats(ctx context.Context) (domain.ArchiveStats, error) {
	var st domain.ArchiveStats
	err := ps.db.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM discord_messages), (SELECT COUNT(*) FROM vec_discord_messages)`,
	).Scan(&st.Messages, &st.Embeddings)
	return st, err
}

func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.db.Ping(ctx)
}

func (ps *PostgresStore) Close() error {
	ps.db.Close()
	return nil
}

var _ domain.Archive = (*PostgresStore)(nil)
