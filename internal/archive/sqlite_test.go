package archive

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"discordqa/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(SQLiteConfig{
		Path:       filepath.Join(t.TempDir(), "archive.db"),
		Dimensions: 3,
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func msg(id, content string) domain.ArchivedMessage {
	return domain.ArchivedMessage{
		ID:        id,
		ChannelID: "c1",
		AuthorID:  "a1",
		Content:   content,
		CreatedAt: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestSQLiteStore_SaveMessageIgnoresDuplicates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveMessage(ctx, msg("m1", "first")); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveMessage(ctx, msg("m1", "second")); err != nil {
		t.Fatalf("duplicate insert should be ignored, got %v", err)
	}

	var content string
	if err := s.db.QueryRow("SELECT content FROM discord_messages WHERE id = ?", "m1").Scan(&content); err != nil {
		t.Fatal(err)
	}
	if content != "first" {
		t.Errorf("stored record must be immutable, got %q", content)
	}
}

func TestSQLiteStore_SaveMessageRejectsEmptyContent(t *testing.T) {
	s := testStore(t)
	if err := s.SaveMessage(context.Background(), msg("m1", "   ")); err == nil {
		t.Fatal("expected error for whitespace-only content")
	}
}

func TestSQLiteStore_UpsertEmbeddingOverwrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.UpsertEmbedding(ctx, "m1", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEmbedding(ctx, "m1", []float32{0, 1, 0}); err != nil {
		t.Fatal(err)
	}

	var count int
	s.db.QueryRow("SELECT COUNT(*) FROM vec_discord_messages WHERE id = ?", "m1").Scan(&count)
	if count != 1 {
		t.Fatalf("expected exactly one vector, got %d", count)
	}

	rows, err := s.Nearest(ctx, []float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Distance != 0 {
		t.Fatalf("expected the latest vector to be stored, got %+v", rows)
	}
}

func TestSQLiteStore_UpsertEmbeddingDimensionMismatch(t *testing.T) {
	s := testStore(t)
	err := s.UpsertEmbedding(context.Background(), "m1", []float32{1, 2})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSQLiteStore_NearestOrderingAndLimit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	vectors := map[string][]float32{
		"far":  {10, 0, 0},
		"near": {1, 0, 0},
		"mid":  {3, 0, 0},
		"zero": {0, 0, 0},
	}
	for id, v := range vectors {
		if err := s.SaveMessage(ctx, msg(id, "content "+id)); err != nil {
			t.Fatal(err)
		}
		if err := s.UpsertEmbedding(ctx, id, v); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := s.Nearest(ctx, []float32{0, 0, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	want := []string{"zero", "near", "mid"}
	for i, id := range want {
		if rows[i].ID != id {
			t.Errorf("row %d: expected %s, got %s", i, id, rows[i].ID)
		}
		if i > 0 && rows[i].Distance < rows[i-1].Distance {
			t.Errorf("distances not ascending at %d", i)
		}
	}
	if rows[1].Distance != 1 || rows[2].Distance != 3 {
		t.Errorf("unexpected L2 distances: %v, %v", rows[1].Distance, rows[2].Distance)
	}
	if rows[0].Content == nil || *rows[0].Content != "content zero" {
		t.Errorf("expected joined content, got %v", rows[0].Content)
	}
	if rows[0].CreatedAt == nil || !rows[0].CreatedAt.Equal(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)) {
		t.Errorf("unexpected created_at %v", rows[0].CreatedAt)
	}

	all, err := s.Nearest(ctx, []float32{0, 0, 0}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("k larger than the archive should return everything, got %d", len(all))
	}
}

func TestSQLiteStore_NearestOrphanVector(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.UpsertEmbedding(ctx, "orphan", []float32{1, 1, 1}); err != nil {
		t.Fatal(err)
	}
	rows, err := s.Nearest(ctx, []float32{1, 1, 1}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.ID != "orphan" || r.ChannelID != nil || r.AuthorID != nil || r.Content != nil || r.CreatedAt != nil {
		t.Errorf("orphan vector should have nil join fields, got %+v", r)
	}
}

func TestSQLiteStore_NearestEmptyArchive(t *testing.T) {
	s := testStore(t)
	rows, err := s.Nearest(context.Background(), []float32{0, 0, 0}, 15)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestSQLiteStore_QueryRead(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, id := range []string{"m1", "m2", "m3"} {
		if err := s.SaveMessage(ctx, msg(id, "hello "+id)); err != nil {
			t.Fatal(err)
		}
	}

	rows, truncated, err := s.QueryRead(ctx, "SELECT COUNT(*) AS n FROM discord_messages", 10)
	if err != nil {
		t.Fatal(err)
	}
	if truncated || len(rows) != 1 {
		t.Fatalf("unexpected result: %v truncated=%v", rows, truncated)
	}
	if rows[0]["n"] != int64(3) {
		t.Errorf("expected n=3, got %#v", rows[0]["n"])
	}

	rows, truncated, err = s.QueryRead(ctx, "SELECT id FROM discord_messages ORDER BY id", 2)
	if err != nil {
		t.Fatal(err)
	}
	if !truncated || len(rows) != 2 {
		t.Fatalf("expected 2 truncated rows, got %d truncated=%v", len(rows), truncated)
	}
	if rows[0]["id"] != "m1" || rows[1]["id"] != "m2" {
		t.Errorf("row order not preserved: %v", rows)
	}
}

func TestSQLiteStore_QueryReadRejectsWrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.SaveMessage(ctx, msg("m1", "keep me")); err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.QueryRead(ctx, "DELETE FROM discord_messages", 10); err == nil {
		t.Fatal("expected write to fail on the read pool")
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Messages != 1 {
		t.Errorf("archive was modified: %d messages", st.Messages)
	}
}

func TestSQLiteStore_QueryReadSyntaxError(t *testing.T) {
	s := testStore(t)
	if _, _, err := s.QueryRead(context.Background(), "SELEC nonsense", 10); err == nil {
		t.Fatal("expected syntax error")
	}
}

func TestSQLiteStore_Stats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.SaveMessage(ctx, msg("m1", "a"))
	s.SaveMessage(ctx, msg("m2", "b"))
	s.UpsertEmbedding(ctx, "m1", []float32{1, 2, 3})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Messages != 2 || st.Embeddings != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestSQLiteStore_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	for i := 0; i < 2; i++ {
		s, err := NewSQLiteStore(SQLiteConfig{Path: path, Dimensions: 3, Logger: testLogger()})
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		v, err := s.SchemaVersion()
		if err != nil {
			t.Fatal(err)
		}
		if v != schemaVersion {
			t.Errorf("expected schema version %d, got %d", schemaVersion, v)
		}
		s.Close()
	}
}

func TestSplitSQL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{"empty", "", 0},
		{"single", "CREATE TABLE t (id INT)", 1},
		{"multiple", "CREATE TABLE t1 (id INT); CREATE TABLE t2 (id INT)", 2},
		{"trailing semicolon", "CREATE TABLE t (id INT);", 1},
		{"whitespace", "  CREATE TABLE t (id INT)  ;  ", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitSQL(tt.input); len(got) != tt.expected {
				t.Errorf("expected %d statements, got %d: %v", tt.expected, len(got), got)
			}
		})
	}
}

func TestSQLiteStore_CreatedAtComparesWithDatetime(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	cutoff := time.Now().UTC().AddDate(0, 0, -7)

	before := msg("before", "just outside the window")
	before.CreatedAt = cutoff.Add(-time.Minute)
	after := msg("after", "just inside the window")
	after.CreatedAt = cutoff.Add(time.Minute)
	for _, m := range []domain.ArchivedMessage{before, after} {
		if err := s.SaveMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	rows, _, err := s.QueryRead(ctx,
		"SELECT COUNT(*) AS n FROM discord_messages WHERE created_at >= datetime('now', '-7 days')", 10)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0]["n"] != int64(1) {
		t.Errorf("expected only the message inside the window, got n=%#v", rows[0]["n"])
	}
}

func TestSQLiteStore_MigrationRewritesLegacyTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	s, err := NewSQLiteStore(SQLiteConfig{Path: path, Dimensions: 3, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`INSERT INTO discord_messages (id, channel_id, author_id, content, created_at)
		VALUES ('old', 'c1', 'a1', 'legacy row', '2024-03-01T12:30:00Z')`); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("DELETE FROM schema_version WHERE version = 3"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewSQLiteStore(SQLiteConfig{Path: path, Dimensions: 3, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var n int
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM discord_messages WHERE created_at = '2024-03-01 12:30:00'",
	).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("legacy timestamp was not rewritten")
	}
}
