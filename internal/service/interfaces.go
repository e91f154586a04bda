package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"net/url"
	"time"

	"apod_fetcher/internal/domain"
)

// Source resolves dates to raw payloads and media bytes over the network.
// A nil date means the most recently published resource.
type Source interface {
	ID() string
	Name() string
	FetchMetadata(ctx context.Context, date *time.Time) ([]byte, error)
	FetchMedia(ctx context.Context, mediaURL *url.URL) ([]byte, error)
}

// Store is the date-keyed local cache. Implementations swallow their own
// failures: reads report a miss, writes and removals become no-ops.
type Store interface {
	ReadMetadata(ctx context.Context, date time.Time) ([]byte, bool)
	ReadMedia(ctx context.Context, date time.Time) ([]byte, bool)
	WriteMetadata(ctx context.Context, date time.Time, data []byte)
	WriteMedia(ctx context.Context, date time.Time, data []byte)
	ReadLastGoodDate(ctx context.Context) (time.Time, bool)
	WriteLastGoodDate(ctx context.Context, date time.Time)
	Remove(ctx context.Context, date time.Time)
}

type Publisher interface {
	Publish(ctx context.Context, event domain.FetchEvent) error
	Close() error
}
