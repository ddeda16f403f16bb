// Package fetch retrieves venue page content over HTTP and converts it to
// the plaintext the snapshot pipeline works with.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/venuewatch/refresh-cli/internal/model"
	"github.com/venuewatch/refresh-cli/internal/resilience"
)

// Fetcher supplies raw page content for a venue.
type Fetcher interface {
	FetchVenue(ctx context.Context, venue model.Venue) ([]model.Page, error)
}

// Options configures the HTTP fetcher.
type Options struct {
	UserAgent         string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	Burst             int
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = "refresh-cli/1.0"
	}
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RequestsPerSecond == 0 {
		o.RequestsPerSecond = 2
	}
	if o.Burst == 0 {
		o.Burst = 2
	}
	return o
}

// HTTPFetcher implements Fetcher using net/http with retry and a shared
// token-bucket rate limiter. Venue sites share one limiter because runs
// are sequential and the sites are small.
type HTTPFetcher struct {
	client  *http.Client
	opts    Options
	retry   resilience.RetryConfig
	limiter *rate.Limiter
	now     func() time.Time
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	opts = opts.withDefaults()
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = opts.MaxRetries
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		retry:   retry,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		now:     time.Now,
	}
}

// FetchVenue retrieves every source URL for the venue in order. A failed
// page fails the whole venue; the caller counts it and moves on so one
// dead site never aborts the run.
func (f *HTTPFetcher) FetchVenue(ctx context.Context, venue model.Venue) ([]model.Page, error) {
	pages := make([]model.Page, 0, len(venue.URLs))
	for _, u := range venue.URLs {
		page, err := f.fetchPage(ctx, u)
		if err != nil {
			return nil, eris.Wrapf(err, "fetching %s for venue %s", u, venue.ID)
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (f *HTTPFetcher) fetchPage(ctx context.Context, rawURL string) (model.Page, error) {
	cfg := f.retry
	cfg.OnRetry = resilience.RetryLogger("fetch", rawURL)

	text, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "rate limiter wait")
		}
		return f.get(ctx, rawURL)
	})
	if err != nil {
		return model.Page{}, err
	}

	return model.Page{
		URL:        rawURL,
		Text:       text,
		CapturedAt: f.now().UTC(),
	}, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		// Timeouts and connection resets are worth another attempt.
		return "", resilience.NewTransientError(err, 0)
	}
	defer func() { _ = resp.Body.Close() }()

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return "", resilience.NewTransientError(
			eris.Errorf("http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("http %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "read body"), 0)
	}

	text := HTMLToText(string(body))
	if text == "" {
		zap.L().Warn("fetched page produced empty text", zap.String("url", rawURL))
	}
	return text, nil
}
