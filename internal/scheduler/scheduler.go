// Package scheduler keeps the cache warm by refreshing the latest resource
// on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"apod_fetcher/internal/domain"
)

// Fetcher resolves a date, or the latest resource for nil, to a resource.
type Fetcher interface {
	Fetch(ctx context.Context, date *time.Time) (*domain.Resource, []byte, error)
}

type Scheduler struct {
	fetcher  Fetcher
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewScheduler returns a scheduler that bounds each refresh by timeout.
func NewScheduler(fetcher Fetcher, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		fetcher:  fetcher,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start refreshes once immediately and then on every tick until ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "timeout", s.timeout)

	s.refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, _, err := s.fetcher.Fetch(refreshCtx, nil)
	if err != nil {
		s.logger.Error("refresh failed", "error", err, "duration", time.Since(start))
		return
	}

	s.logger.Info("refresh completed",
		"date", domain.FormatDate(res.Date),
		"title", res.Title,
		"duration", time.Since(start),
	)
}
