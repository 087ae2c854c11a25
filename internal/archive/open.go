package archive

import (
	"context"
	"fmt"
	"log/slog"

	"discordqa/internal/config"
	"discordqa/internal/domain"
)

// Open returns the archive backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, dims int, logger *slog.Logger) (domain.Archive, error) {
	switch cfg.Driver {
	case "", "sqlite":
		s, err := NewSQLiteStore(SQLiteConfig{Path: cfg.DBPath, Dimensions: dims, Logger: logger})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, PostgresConfig{DSN: cfg.DSN, Dimensions: dims, Logger: logger})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("archive: unknown driver %q", cfg.Driver)
	}
}
