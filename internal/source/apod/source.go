package apod

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"apod_fetcher/internal/credential"
	"apod_fetcher/internal/domain"
)

const (
	SourceID   = "apod"
	SourceName = "NASA Astronomy Picture of the Day"

	DefaultBaseURL   = "https://api.nasa.gov/planetary/apod"
	DefaultMediaHost = "apod.nasa.gov"
)

// Config holds APOD source configuration.
type Config struct {
	BaseURL   string
	MediaHost string
	Timeout   time.Duration
	// RequestInterval spaces out requests; zero disables rate limiting.
	RequestInterval time.Duration
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return domain.ErrNetwork
}

func (e *StatusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Source fetches resource metadata from the APOD API and media bytes from
// the trusted media host.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	mediaHost      string
	keys           credential.Provider
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a new APOD source.
func New(cfg Config, keys credential.Provider, logger *slog.Logger) *Source {
	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		mediaHost:      cfg.MediaHost,
		keys:           keys,
		limiter:        rate.NewLimiter(limit, 1),
		maxAttempts:    maxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// FetchMetadata returns the raw JSON payload for date, or for the most
// recently published resource when date is nil.
func (s *Source) FetchMetadata(ctx context.Context, date *time.Time) ([]byte, error) {
	key, err := s.keys.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("api key: %w", err)
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", key)
	q.Set("thumbs", "true")
	requested := "latest"
	if date != nil {
		requested = domain.FormatDate(*date)
		q.Set("date", requested)
	}
	u.RawQuery = q.Encode()

	s.logger.Debug("fetching metadata", "date", requested)

	body, err := s.get(ctx, u.String(), "application/json")
	if err != nil {
		return nil, fmt.Errorf("fetch metadata %s: %w", requested, err)
	}
	return body, nil
}

// FetchMedia downloads the media bytes at mediaURL. Only the configured
// media host is trusted; anything else fails with domain.ErrUntrustedSource
// before a request is made.
func (s *Source) FetchMedia(ctx context.Context, mediaURL *url.URL) ([]byte, error) {
	if mediaURL == nil || mediaURL.Hostname() != s.mediaHost {
		host := ""
		if mediaURL != nil {
			host = mediaURL.Hostname()
		}
		return nil, fmt.Errorf("%w: %q", domain.ErrUntrustedSource, host)
	}

	s.logger.Debug("fetching media", "url", mediaURL.String())

	body, err := s.get(ctx, mediaURL.String(), "*/*")
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	return body, nil
}

func (s *Source) get(ctx context.Context, target, accept string) ([]byte, error) {
	var body []byte
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, err = s.doRequest(ctx, target, accept)
		if err == nil {
			return body, nil
		}

		if attempt == s.maxAttempts || !isRetryable(ctx, err) {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, err
}

func (s *Source) doRequest(ctx context.Context, target, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", "APODFetcher/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: execute request: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrNetwork, err)
	}
	return body, nil
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.retryable()
	}
	return errors.Is(err, domain.ErrNetwork)
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if s.maxBackoff > 0 && backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}
