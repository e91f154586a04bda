// Package credential supplies the API key used by the remote source.
package credential

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"apod_fetcher/internal/domain"
)

// Provider hands out an API key.
type Provider interface {
	APIKey(ctx context.Context) (string, error)
}

// Static returns a fixed key.
type Static string

// APIKey returns the configured key or domain.ErrNoCredential when empty.
func (s Static) APIKey(context.Context) (string, error) {
	if s == "" {
		return "", domain.ErrNoCredential
	}
	return string(s), nil
}

// scrambledKeyLen is how many trailing characters of the published key are kept.
const scrambledKeyLen = 38

// Remote downloads a lightly scrambled key once and keeps it for the
// lifetime of the provider.
type Remote struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger

	mu  sync.Mutex
	key string
}

// NewRemote creates a provider that reads the scrambled key from url.
func NewRemote(url string, timeout time.Duration, logger *slog.Logger) *Remote {
	return &Remote{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "credential"),
	}
}

// APIKey returns the memoised key, fetching it on first use.
func (r *Remote) APIKey(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.key != "" {
		return r.key, nil
	}

	raw, err := r.fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrNoCredential, err)
	}

	key := Descramble(raw)
	if key == "" {
		return "", domain.ErrNoCredential
	}
	r.key = key
	r.logger.Debug("fetched api key")
	return key, nil
}

func (r *Remote) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// Descramble turns the published form of the key into the usable key:
// newlines are dropped, the last 38 characters kept and "xx" appended.
// Blank input yields "".
func Descramble(raw string) string {
	cleaned := strings.ReplaceAll(raw, "\n", "")
	if cleaned == "" {
		return ""
	}
	if len(cleaned) > scrambledKeyLen {
		cleaned = cleaned[len(cleaned)-scrambledKeyLen:]
	}
	return cleaned + "xx"
}

// Chain tries each provider in order and returns the first key found.
type Chain []Provider

// APIKey implements Provider.
func (c Chain) APIKey(ctx context.Context) (string, error) {
	lastErr := error(domain.ErrNoCredential)
	for _, p := range c {
		key, err := p.APIKey(ctx)
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	return "", lastErr
}
