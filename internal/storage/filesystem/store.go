// Package filesystem keeps cached resources as plain files in one directory.
//
// Layout:
//
//	{dir}/YYYY-MM-DD.json   raw metadata payload
//	{dir}/YYYY-MM-DD.data   media bytes
//	{dir}/last_loaded.json  {"date":"YYYY-MM-DD"}
//
// Every failure is logged and reported to the caller as a miss; the cache
// never produces an error of its own.
package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"apod_fetcher/internal/domain"
)

const (
	LastGoodFilename = "last_loaded.json"

	metadataExt = ".json"
	mediaExt    = ".data"
)

type lastGoodRecord struct {
	Date string `json:"date"`
}

type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a store rooted at dir. The directory is created on first write.
func New(dir string, logger *slog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger.With("component", "filesystem_store", "dir", dir),
	}
}

// DefaultDir returns the per-user cache directory for the application.
func DefaultDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "apod_fetcher")
}

func (s *Store) metadataPath(date time.Time) string {
	return filepath.Join(s.dir, domain.FormatDate(date)+metadataExt)
}

func (s *Store) mediaPath(date time.Time) string {
	return filepath.Join(s.dir, domain.FormatDate(date)+mediaExt)
}

func (s *Store) ReadMetadata(_ context.Context, date time.Time) ([]byte, bool) {
	return s.read(s.metadataPath(date))
}

func (s *Store) ReadMedia(_ context.Context, date time.Time) ([]byte, bool) {
	return s.read(s.mediaPath(date))
}

func (s *Store) WriteMetadata(_ context.Context, date time.Time, data []byte) {
	s.write(s.metadataPath(date), data)
}

func (s *Store) WriteMedia(_ context.Context, date time.Time, data []byte) {
	s.write(s.mediaPath(date), data)
}

// ReadLastGoodDate returns the date of the last fully successful fetch.
func (s *Store) ReadLastGoodDate(_ context.Context) (time.Time, bool) {
	data, ok := s.read(filepath.Join(s.dir, LastGoodFilename))
	if !ok {
		return time.Time{}, false
	}

	var rec lastGoodRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("unreadable last good record", "error", err)
		return time.Time{}, false
	}
	date, err := domain.ParseDate(rec.Date)
	if err != nil {
		s.logger.Warn("unreadable last good date", "error", err)
		return time.Time{}, false
	}
	return date, true
}

// WriteLastGoodDate overwrites the last good pointer.
func (s *Store) WriteLastGoodDate(_ context.Context, date time.Time) {
	data, err := json.Marshal(lastGoodRecord{Date: domain.FormatDate(date)})
	if err != nil {
		s.logger.Error("encode last good record", "error", err)
		return
	}
	if s.write(filepath.Join(s.dir, LastGoodFilename), data) {
		s.logger.Debug("wrote last good date", "date", domain.FormatDate(date))
	}
}

// Remove deletes both blobs for date.
func (s *Store) Remove(_ context.Context, date time.Time) {
	for _, path := range []string{s.mediaPath(date), s.metadataPath(date)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("remove cached file", "path", path, "error", err)
		}
	}
}

// Prune removes cached blobs for every date not in keep and reports how
// many dates were removed.
func (s *Store) Prune(ctx context.Context, keep []time.Time) (int, error) {
	dates, err := s.Dates()
	if err != nil {
		return 0, err
	}

	kept := make(map[string]bool, len(keep))
	for _, d := range keep {
		kept[domain.FormatDate(d)] = true
	}

	removed := 0
	for _, d := range dates {
		if kept[domain.FormatDate(d)] {
			continue
		}
		s.Remove(ctx, d)
		removed++
	}
	return removed, nil
}

// Dates lists the dates that have at least one cached blob.
func (s *Store) Dates() ([]time.Time, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var dates []time.Time
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == LastGoodFilename {
			continue
		}
		ext := filepath.Ext(name)
		if ext != metadataExt && ext != mediaExt {
			continue
		}
		stem := strings.TrimSuffix(name, ext)
		d, err := domain.ParseDate(stem)
		if err != nil || seen[stem] {
			continue
		}
		seen[stem] = true
		dates = append(dates, d)
	}
	return dates, nil
}

func (s *Store) read(path string) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("read cached file", "path", path, "error", err)
		}
		return nil, false
	}
	return data, true
}

// write stores data atomically: temp file first, then rename.
func (s *Store) write(path string, data []byte) bool {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Warn("create cache dir", "error", err)
		return false
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		s.logger.Warn("create temp file", "path", path, "error", err)
		return false
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		s.logger.Warn("write cached file", "path", path, "error", err)
		return false
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		s.logger.Warn("close cached file", "path", path, "error", err)
		return false
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		s.logger.Warn("rename cached file", "path", path, "error", err)
		return false
	}
	return true
}
