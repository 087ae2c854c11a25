package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"discordqa/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.Archive on a single SQLite file. Vectors are kept
// as float32 BLOBs and k-NN is computed exactly in-process.
type SQLiteStore struct {
	db     *sql.DB // writer, single connection
	ro     *sql.DB // query_only pool for model-authored statements
	dims   int
	logger *slog.Logger
}

type SQLiteConfig struct {
	Path       string
	Dimensions int
	Logger     *slog.Logger
}

func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = domain.EmbeddingDimensions
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// Single writer connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, dims: cfg.Dimensions, logger: cfg.Logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	ro, err := sql.Open("sqlite", cfg.Path+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot open read-only database: %w", err)
	}
	ro.SetMaxOpenConns(4)
	store.ro = ro

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	return runMigrations(s.db, s.logger)
}

// SchemaVersion reports the highest applied migration.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	return currentVersion(s.db)
}

// SaveMessage stores msg unless a record with its ID already exists.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg domain.ArchivedMessage) error {
	if !msg.Storable() {
		return fmt.Errorf("archive: message %q has no content", msg.ID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO discord_messages (id, channel_id, author_id, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ChannelID, msg.AuthorID, msg.Content, msg.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

func (s *SQLiteStore) UpsertEmbedding(ctx context.Context, id string, vec []float32) error {
	if len(vec) != s.dims {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vec), s.dims)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vec_discord_messages (id, embedding) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding`,
		id, encodeEmbedding(vec),
	)
	return err
}

func (s *SQLiteStore) Nearest(ctx context.Context, vec []float32, k int) ([]domain.EvidenceRow, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vec) != s.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vec), s.dims)
	}

	rows, err := s.ro.QueryContext(ctx,
		`SELECT v.id, v.embedding, m.channel_id, m.author_id, m.content, m.created_at
		 FROM vec_discord_messages v
		 LEFT JOIN discord_messages m ON m.id = v.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	h := make(nearestHeap, 0, k)
	for rows.Next() {
		var (
			id                           string
			blob                         []byte
			channelID, authorID, content sql.NullString
			createdAt                    sql.NullString
		)
		if err := rows.Scan(&id, &blob, &channelID, &authorID, &content, &createdAt); err != nil {
			return nil, err
		}
		stored, err := decodeEmbedding(blob)
		if err != nil || len(stored) != len(vec) {
			s.logger.Warn("skipping malformed embedding", "id", id, "len", len(stored), "err", err)
			continue
		}

		row := domain.EvidenceRow{ID: id, Distance: l2Distance(vec, stored)}
		if channelID.Valid {
			row.ChannelID = &channelID.String
		}
		if authorID.Valid {
			row.AuthorID = &authorID.String
		}
		if content.Valid {
			row.Content = &content.String
		}
		if createdAt.Valid {
			if t, err := parseTime(createdAt.String); err == nil {
				row.CreatedAt = &t
			}
		}
		h.offer(row, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return h.sorted(), nil
}

// QueryRead runs query on the query_only pool. At most maxRows rows are returned;
// truncated reports whether more were available.
func (s *SQLiteStore) QueryRead(ctx context.Context, query string, maxRows int) ([]map[string]any, bool, error) {
	rows, err := s.ro.QueryContext(ctx, query)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, false, err
	}

	out := make([]map[string]any, 0)
	truncated := false
	for rows.Next() {
		if maxRows > 0 && len(out) == maxRows {
			truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, false, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalizeValue(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, truncated, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (domain.ArchiveStats, error) {
	var st domain.ArchiveStats
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM discord_messages), (SELECT COUNT(*) FROM vec_discord_messages)`,
	).Scan(&st.Messages, &st.Embeddings)
	return st, err
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	roErr := s.ro.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return roErr
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("archive: unrecognized timestamp %q", s)
}

var _ domain.Archive = (*SQLiteStore)(nil)
