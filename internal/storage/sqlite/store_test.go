package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"apod_fetcher/internal/domain"
)

type StoreTestSuite struct {
	suite.Suite
	ctx   context.Context
	path  string
	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.path = filepath.Join(s.T().TempDir(), "cache.db")

	store, err := Open(s.path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	s.store = store
}

func (s *StoreTestSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) date(v string) time.Time {
	d, err := domain.ParseDate(v)
	s.Require().NoError(err)
	return d
}

func (s *StoreTestSuite) TestBlobs_Miss() {
	_, ok := s.store.ReadMetadata(s.ctx, s.date("2024-01-01"))
	s.False(ok)
	_, ok = s.store.ReadMedia(s.ctx, s.date("2024-01-01"))
	s.False(ok)
}

func (s *StoreTestSuite) TestBlobs_WriteReadOverwrite() {
	day := s.date("2024-01-01")

	s.store.WriteMetadata(s.ctx, day, []byte(`{"a":1}`))
	s.store.WriteMedia(s.ctx, day, []byte{0xff, 0xd8})

	meta, ok := s.store.ReadMetadata(s.ctx, day)
	s.Require().True(ok)
	s.Equal([]byte(`{"a":1}`), meta)

	media, ok := s.store.ReadMedia(s.ctx, day)
	s.Require().True(ok)
	s.Equal([]byte{0xff, 0xd8}, media)

	s.store.WriteMetadata(s.ctx, day, []byte(`{"a":2}`))
	meta, _ = s.store.ReadMetadata(s.ctx, day)
	s.Equal([]byte(`{"a":2}`), meta)
}

func (s *StoreTestSuite) TestLastGood() {
	_, ok := s.store.ReadLastGoodDate(s.ctx)
	s.False(ok)

	s.store.WriteLastGoodDate(s.ctx, s.date("2024-01-01"))
	s.store.WriteLastGoodDate(s.ctx, s.date("2024-01-02"))

	got, ok := s.store.ReadLastGoodDate(s.ctx)
	s.Require().True(ok)
	s.Equal("2024-01-02", domain.FormatDate(got))
}

func (s *StoreTestSuite) TestRemove() {
	day := s.date("2024-01-01")
	s.store.WriteMetadata(s.ctx, day, []byte("m"))
	s.store.WriteMedia(s.ctx, day, []byte("d"))

	s.store.Remove(s.ctx, day)
	s.store.Remove(s.ctx, day)

	_, ok := s.store.ReadMetadata(s.ctx, day)
	s.False(ok)
	_, ok = s.store.ReadMedia(s.ctx, day)
	s.False(ok)
}

func (s *StoreTestSuite) TestPrune() {
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		s.store.WriteMetadata(s.ctx, s.date(d), []byte("m"))
	}
	s.store.WriteMedia(s.ctx, s.date("2024-01-01"), []byte("d"))

	removed, err := s.store.Prune(s.ctx, []time.Time{s.date("2024-01-02")})
	s.Require().NoError(err)
	s.Equal(2, removed)

	_, ok := s.store.ReadMetadata(s.ctx, s.date("2024-01-02"))
	s.True(ok)
	_, ok = s.store.ReadMedia(s.ctx, s.date("2024-01-01"))
	s.False(ok)
}

func (s *StoreTestSuite) TestPrune_KeepNothing() {
	s.store.WriteMetadata(s.ctx, s.date("2024-01-01"), []byte("m"))

	removed, err := s.store.Prune(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(1, removed)
}

func (s *StoreTestSuite) TestReopenKeepsData() {
	day := s.date("2024-01-01")
	s.store.WriteMetadata(s.ctx, day, []byte("m"))
	s.store.WriteLastGoodDate(s.ctx, day)
	s.Require().NoError(s.store.Close())

	store, err := Open(s.path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	s.store = store

	_, ok := s.store.ReadMetadata(s.ctx, day)
	s.True(ok)
	got, ok := s.store.ReadLastGoodDate(s.ctx)
	s.True(ok)
	s.Equal("2024-01-01", domain.FormatDate(got))
}

func (s *StoreTestSuite) TestWritesAfterCloseAreSwallowed() {
	s.Require().NoError(s.store.Close())

	s.NotPanics(func() {
		s.store.WriteMetadata(s.ctx, s.date("2024-01-01"), []byte("m"))
		s.store.Remove(s.ctx, s.date("2024-01-01"))
	})
	_, ok := s.store.ReadMetadata(s.ctx, s.date("2024-01-01"))
	s.False(ok)

	// TearDownTest closes again; sql.DB.Close is idempotent.
}
