package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"apod_fetcher/internal/domain"
)

const (
	metadataTable = "resource_metadata"
	mediaTable    = "resource_media"

	// lastGoodName keys the single row of the last_good table.
	lastGoodName = "last_loaded"
)

type lastGoodRow struct {
	Name string    `db:"name"`
	Date time.Time `db:"date"`
}

// CacheStore keeps cached resources in PostgreSQL. Like the filesystem
// store it never returns errors from reads or writes: failures are logged
// and treated as misses.
type CacheStore struct {
	db        *sqlx.DB
	txManager *TransactionManager
	logger    *slog.Logger
}

func NewCacheStore(db *sqlx.DB, logger *slog.Logger) *CacheStore {
	return &CacheStore{
		db:        db,
		txManager: NewTransactionManager(db),
		logger:    logger.With("component", "postgres_store"),
	}
}

func (s *CacheStore) ReadMetadata(ctx context.Context, date time.Time) ([]byte, bool) {
	return s.readBlob(ctx, metadataTable, date)
}

func (s *CacheStore) ReadMedia(ctx context.Context, date time.Time) ([]byte, bool) {
	return s.readBlob(ctx, mediaTable, date)
}

func (s *CacheStore) WriteMetadata(ctx context.Context, date time.Time, data []byte) {
	s.writeBlob(ctx, metadataTable, date, data)
}

func (s *CacheStore) WriteMedia(ctx context.Context, date time.Time, data []byte) {
	s.writeBlob(ctx, mediaTable, date, data)
}

func (s *CacheStore) ReadLastGoodDate(ctx context.Context) (time.Time, bool) {
	var row lastGoodRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row,
		"SELECT name, date FROM last_good WHERE name = $1", lastGoodName)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false
	}
	if err != nil {
		s.logger.Warn("read last good date", "error", err)
		return time.Time{}, false
	}
	return domain.DateOnly(row.Date), true
}

func (s *CacheStore) WriteLastGoodDate(ctx context.Context, date time.Time) {
	query := `
		INSERT INTO last_good (name, date, updated_at)
		VALUES ($1, $2::date, NOW())
		ON CONFLICT (name) DO UPDATE SET
			date = EXCLUDED.date,
			updated_at = EXCLUDED.updated_at`

	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, lastGoodName, domain.FormatDate(date)); err != nil {
		s.logger.Warn("write last good date", "date", domain.FormatDate(date), "error", err)
		return
	}
	s.logger.Debug("wrote last good date", "date", domain.FormatDate(date))
}

// Remove deletes metadata and media for date in one transaction.
func (s *CacheStore) Remove(ctx context.Context, date time.Time) {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)
		for _, table := range []string{mediaTable, metadataTable} {
			query := fmt.Sprintf("DELETE FROM %s WHERE date = $1::date", table)
			if _, err := exec.ExecContext(txCtx, query, domain.FormatDate(date)); err != nil {
				return fmt.Errorf("delete from %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("remove cached resource", "date", domain.FormatDate(date), "error", err)
	}
}

// Prune removes every cached date not listed in keep and reports how many
// distinct dates were removed.
func (s *CacheStore) Prune(ctx context.Context, keep []time.Time) (int, error) {
	keepDates := make([]string, len(keep))
	for i, d := range keep {
		keepDates[i] = domain.FormatDate(d)
	}

	removed := make(map[string]bool)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)
		for _, table := range []string{mediaTable, metadataTable} {
			query := fmt.Sprintf(
				"DELETE FROM %s WHERE NOT (date = ANY($1::date[])) RETURNING date", table)

			var dates []time.Time
			if err := sqlx.SelectContext(txCtx, exec, &dates, query, pq.Array(keepDates)); err != nil {
				return fmt.Errorf("prune %s: %w", table, err)
			}
			for _, d := range dates {
				removed[domain.FormatDate(d)] = true
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(removed), nil
}

func (s *CacheStore) readBlob(ctx context.Context, table string, date time.Time) ([]byte, bool) {
	var payload []byte
	query := fmt.Sprintf("SELECT payload FROM %s WHERE date = $1::date", table)

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &payload, query, domain.FormatDate(date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("read cached blob", "table", table, "date", domain.FormatDate(date), "error", err)
		return nil, false
	}
	return payload, true
}

func (s *CacheStore) writeBlob(ctx context.Context, table string, date time.Time, data []byte) {
	query := fmt.Sprintf(`
		INSERT INTO %s (date, payload, updated_at)
		VALUES ($1::date, $2, NOW())
		ON CONFLICT (date) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`, table)

	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, domain.FormatDate(date), data); err != nil {
		s.logger.Warn("write cached blob", "table", table, "date", domain.FormatDate(date), "error", err)
	}
}
