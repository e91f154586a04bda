// Package sqlite keeps cached resources in a single SQLite file, for hosts
// that want one portable cache file instead of a directory of blobs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"apod_fetcher/internal/domain"
)

const (
	metadataTable = "resource_metadata"
	mediaTable    = "resource_media"

	lastGoodName = "last_loaded"
)

const schema = `
CREATE TABLE IF NOT EXISTS resource_metadata (
	date       TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS resource_media (
	date       TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS last_good (
	name       TEXT PRIMARY KEY,
	date       TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// Store is the SQLite cache backend. Reads and writes never fail from the
// caller's point of view; problems are logged and reported as misses.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer at a time; also keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With("component", "sqlite_store", "path", path),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ReadMetadata(ctx context.Context, date time.Time) ([]byte, bool) {
	return s.readBlob(ctx, metadataTable, date)
}

func (s *Store) ReadMedia(ctx context.Context, date time.Time) ([]byte, bool) {
	return s.readBlob(ctx, mediaTable, date)
}

func (s *Store) WriteMetadata(ctx context.Context, date time.Time, data []byte) {
	s.writeBlob(ctx, metadataTable, date, data)
}

func (s *Store) WriteMedia(ctx context.Context, date time.Time, data []byte) {
	s.writeBlob(ctx, mediaTable, date, data)
}

func (s *Store) ReadLastGoodDate(ctx context.Context) (time.Time, bool) {
	var raw string
	err := s.db.GetContext(ctx, &raw, "SELECT date FROM last_good WHERE name = ?", lastGoodName)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false
	}
	if err != nil {
		s.logger.Warn("read last good date", "error", err)
		return time.Time{}, false
	}

	date, err := domain.ParseDate(raw)
	if err != nil {
		s.logger.Warn("discarding malformed last good date", "value", raw, "error", err)
		return time.Time{}, false
	}
	return date, true
}

func (s *Store) WriteLastGoodDate(ctx context.Context, date time.Time) {
	query := `
		INSERT INTO last_good (name, date, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE SET
			date = excluded.date,
			updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, lastGoodName, domain.FormatDate(date)); err != nil {
		s.logger.Warn("write last good date", "date", domain.FormatDate(date), "error", err)
		return
	}
	s.logger.Debug("wrote last good date", "date", domain.FormatDate(date))
}

// Remove deletes metadata and media for date together.
func (s *Store) Remove(ctx context.Context, date time.Time) {
	if _, err := s.deleteWhere(ctx, "date = ?", domain.FormatDate(date)); err != nil {
		s.logger.Warn("remove cached resource", "date", domain.FormatDate(date), "error", err)
	}
}

// Prune removes every cached date not listed in keep and reports how many
// distinct dates were removed.
func (s *Store) Prune(ctx context.Context, keep []time.Time) (int, error) {
	if len(keep) == 0 {
		return s.deleteWhere(ctx, "1 = 1")
	}

	keepDates := make([]string, len(keep))
	for i, d := range keep {
		keepDates[i] = domain.FormatDate(d)
	}

	cond, args, err := sqlx.In("date NOT IN (?)", keepDates)
	if err != nil {
		return 0, fmt.Errorf("build prune query: %w", err)
	}
	return s.deleteWhere(ctx, cond, args...)
}

// deleteWhere removes matching rows from both blob tables in one
// transaction and returns the number of distinct dates deleted.
func (s *Store) deleteWhere(ctx context.Context, cond string, args ...any) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}

	removed := make(map[string]bool)
	for _, table := range []string{mediaTable, metadataTable} {
		var dates []string
		query := fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING date", table, cond)
		if err := tx.SelectContext(ctx, &dates, query, args...); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return 0, fmt.Errorf("delete from %s: %w", table, err)
		}
		for _, d := range dates {
			removed[d] = true
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return len(removed), nil
}

func (s *Store) readBlob(ctx context.Context, table string, date time.Time) ([]byte, bool) {
	var payload []byte
	query := fmt.Sprintf("SELECT payload FROM %s WHERE date = ?", table)
	err := s.db.GetContext(ctx, &payload, query, domain.FormatDate(date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("read cached blob", "table", table, "date", domain.FormatDate(date), "error", err)
		return nil, false
	}
	return payload, true
}

func (s *Store) writeBlob(ctx context.Context, table string, date time.Time, data []byte) {
	query := fmt.Sprintf(`
		INSERT INTO %s (date, payload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (date) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`, table)

	if _, err := s.db.ExecContext(ctx, query, domain.FormatDate(date), data); err != nil {
		s.logger.Warn("write cached blob", "table", table, "date", domain.FormatDate(date), "error", err)
		return
	}
	s.logger.Debug("wrote cached blob", "table", table, "date", domain.FormatDate(date), "bytes", len(data))
}
