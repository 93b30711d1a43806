package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jobrunner/geoexport/internal/domain"
)

// HTTPFetcher implements LocatorFetcher for HTTP(S) download locators.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// HTTPConfig holds locator fetch configuration.
type HTTPConfig struct {
	Timeout   time.Duration // default: 5m
	UserAgent string
}

// NewHTTPFetcher creates a new HTTP locator fetcher.
func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent: cfg.UserAgent,
	}
}

// Fetch opens the payload behind a locator. The caller closes the body.
// The client timeout bounds the whole transfer, body included.
func (f *HTTPFetcher) Fetch(ctx context.Context, loc domain.Locator) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.URL, nil)
	if err != nil {
		return nil, &domain.TransferError{URL: loc.URL, Err: err}
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.TransferError{URL: loc.URL, Err: fmt.Errorf("fetching locator: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &domain.TransferError{
			URL:        loc.URL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("locator returned status %d", resp.StatusCode),
		}
	}

	return resp.Body, nil
}
