package credential

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apod_fetcher/internal/domain"
)

func TestDescramble(t *testing.T) {
	got := Descramble("AAAAABBBBBCCCCCDDDDDEEEEEFFFFFFGGGGGGHHHHHHIIIIII\n\n")
	assert.Equal(t, "CCCCDDDDDEEEEEFFFFFFGGGGGGHHHHHHIIIIIIxx", got)

	assert.Equal(t, "shortxx", Descramble("short\n"))
	assert.Equal(t, "", Descramble("\n\n"))
}

func TestStatic(t *testing.T) {
	key, err := Static("abc").APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", key)

	_, err = Static("").APIKey(context.Background())
	assert.True(t, errors.Is(err, domain.ErrNoCredential))
}

func TestRemote_FetchesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("AAAAABBBBBCCCCCDDDDDEEEEEFFFFFFGGGGGGHHHHHHIIIIII\n"))
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, time.Second, testLogger())

	for i := 0; i < 3; i++ {
		key, err := r.APIKey(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "CCCCDDDDDEEEEEFFFFFFGGGGGGHHHHHHIIIIIIxx", key)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestRemote_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewRemote(srv.URL, time.Second, testLogger()).APIKey(context.Background())
	assert.True(t, errors.Is(err, domain.ErrNoCredential))
}

func TestChain(t *testing.T) {
	key, err := Chain{Static(""), Static("second")}.APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", key)

	_, err = Chain{}.APIKey(context.Background())
	assert.True(t, errors.Is(err, domain.ErrNoCredential))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
