package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"apod_fetcher/internal/domain"
	"apod_fetcher/internal/normalize"
)

// FetchService serves resources from the local store when it can, from the
// remote source otherwise, and falls back to the last good resource when
// both fail.
type FetchService struct {
	source    Source
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

// NewFetchService wires the engine. publisher may be nil.
func NewFetchService(
	source Source,
	store Store,
	publisher Publisher,
	logger *slog.Logger,
) *FetchService {
	return &FetchService{
		source:    source,
		store:     store,
		publisher: publisher,
		logger:    logger.With("source", source.ID()),
	}
}

// Fetch returns the resource for date, or the latest one when date is nil.
// If neither the store nor the source can produce it, the last good
// resource is returned instead; the original error surfaces only when that
// fails too.
func (s *FetchService) Fetch(ctx context.Context, date *time.Time) (*domain.Resource, []byte, error) {
	requested := dateLabel(date)

	res, media, origin, err := s.load(ctx, date)
	if err == nil {
		s.logger.Info("resource loaded",
			"requested", requested,
			"date", domain.FormatDate(res.Date),
			"origin", origin,
		)
		s.publish(ctx, domain.FetchEvent{Resource: res, Origin: origin, Requested: date})
		return res, media, nil
	}

	if ctx.Err() != nil {
		return nil, nil, err
	}

	s.logger.Warn("fetch failed, trying last good resource", "requested", requested, "error", err)

	res, media, lgErr := s.FetchLastGood(ctx)
	if lgErr != nil {
		s.logger.Error("no resource available", "requested", requested, "error", err, "fallback_error", lgErr)
		return nil, nil, err
	}

	s.logger.Info("served last good resource", "requested", requested, "date", domain.FormatDate(res.Date))
	s.publish(ctx, domain.FetchEvent{
		Resource:  res,
		Origin:    domain.OriginLastGood,
		Fallback:  true,
		Requested: date,
	})
	return res, media, nil
}

// FetchLastGood loads the resource recorded by the last successful fetch.
func (s *FetchService) FetchLastGood(ctx context.Context) (*domain.Resource, []byte, error) {
	date, ok := s.store.ReadLastGoodDate(ctx)
	if !ok {
		return nil, nil, domain.ErrNoLastGoodAvailable
	}

	res, media, _, err := s.load(ctx, &date)
	if err != nil {
		return nil, nil, fmt.Errorf("load last good %s: %w", domain.FormatDate(date), err)
	}
	return res, media, nil
}

// load runs the primary path: store, then source, then bookkeeping. The
// returned origin describes where the metadata came from.
func (s *FetchService) load(ctx context.Context, date *time.Time) (*domain.Resource, []byte, domain.Origin, error) {
	origin := domain.OriginCache
	res := s.cachedResource(ctx, date)

	if res == nil {
		origin = domain.OriginRemote

		raw, err := s.source.FetchMetadata(ctx, date)
		if err != nil {
			return nil, nil, "", fmt.Errorf("fetch metadata %s: %w", dateLabel(date), err)
		}

		res, err = normalize.Normalize(raw)
		if err != nil {
			return nil, nil, "", fmt.Errorf("normalize metadata %s: %w", dateLabel(date), err)
		}

		// "latest" only resolves to a date now, so key by the payload's date.
		s.store.WriteMetadata(ctx, res.Date, raw)
	}

	media, err := s.media(ctx, res)
	if err != nil {
		return nil, nil, "", err
	}

	s.markGood(ctx, res.Date)

	return res, media, origin, nil
}

// cachedResource returns the normalized cached metadata for date, or nil on
// any kind of miss.
func (s *FetchService) cachedResource(ctx context.Context, date *time.Time) *domain.Resource {
	if date == nil {
		return nil
	}

	raw, ok := s.store.ReadMetadata(ctx, *date)
	if !ok {
		s.logger.Debug("metadata cache miss", "date", domain.FormatDate(*date))
		return nil
	}

	res, err := normalize.Normalize(raw)
	if err != nil {
		s.logger.Warn("discarding unreadable cached metadata", "date", domain.FormatDate(*date), "error", err)
		return nil
	}
	if !domain.SameDate(res.Date, *date) {
		s.logger.Warn("discarding cached metadata for another date",
			"date", domain.FormatDate(*date),
			"payload_date", domain.FormatDate(res.Date),
		)
		return nil
	}

	s.logger.Debug("metadata cache hit", "date", domain.FormatDate(*date))
	return res
}

func (s *FetchService) media(ctx context.Context, res *domain.Resource) ([]byte, error) {
	if data, ok := s.store.ReadMedia(ctx, res.Date); ok {
		s.logger.Debug("media cache hit", "date", domain.FormatDate(res.Date))
		return data, nil
	}

	data, err := s.source.FetchMedia(ctx, res.MediaURL)
	if err != nil {
		return nil, fmt.Errorf("fetch media %s: %w", domain.FormatDate(res.Date), err)
	}

	s.store.WriteMedia(ctx, res.Date, data)
	return data, nil
}

// markGood drops the previous last good entry when it is for another date,
// then points the last good record at date. Only one resource is kept.
func (s *FetchService) markGood(ctx context.Context, date time.Time) {
	if prev, ok := s.store.ReadLastGoodDate(ctx); ok && !domain.SameDate(prev, date) {
		s.logger.Debug("removing previous resource", "date", domain.FormatDate(prev))
		s.store.Remove(ctx, prev)
	}
	s.store.WriteLastGoodDate(ctx, date)
}

func (s *FetchService) publish(ctx context.Context, event domain.FetchEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish fetch event", "error", err)
	}
}

func dateLabel(date *time.Time) string {
	if date == nil {
		return "latest"
	}
	return domain.FormatDate(*date)
}
