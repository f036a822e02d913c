package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

// Migrate applies every pending migration found in migrations (a directory
// of goose SQL files, usually an embed.FS).
func Migrate(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, cfg Config, log *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "close migration connection", "error", err)
		}
	}()

	store, err := versionStore(cfg)
	if err != nil {
		return errors.Join(ErrMigrate, err)
	}
	// The dialect comes from the store, so NewProvider gets none.
	provider, err := goose.NewProvider("", db, migrations,
		goose.WithStore(store),
		goose.WithLogger(gooseLogger{log: log}),
	)
	if err != nil {
		return errors.Join(ErrMigrate, err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Join(ErrMigrate, err)
	}
	for _, r := range results {
		log.InfoContext(ctx, "migration applied",
			slog.String("source", r.Source.Path),
			slog.Duration("duration", r.Duration),
		)
	}
	return nil
}

const defaultMigrationsTable = "goose_db_version"

// versionStore records applied versions in cfg.MigrationsTable, or in
// goose's default table when unset.
func versionStore(cfg Config) (database.Store, error) {
	table := cfg.MigrationsTable
	if table == "" {
		table = defaultMigrationsTable
	}
	return database.NewStore(database.DialectPostgres, table)
}

type gooseLogger struct {
	log *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info(fmt.Sprintf(format, v...))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(fmt.Sprintf(format, v...))
}
