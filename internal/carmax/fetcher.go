package carmax

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/lotwatch/lotwatch/internal/logger"
)

// ErrFetchFailed is returned once every retry for a URL has been exhausted.
// It is the only failure callers see for expected network trouble.
var ErrFetchFailed = errors.New("fetch failed")

// Browser identities rotated across attempts to reduce fingerprinting.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

// FetcherConfig holds fetcher tuning knobs.
type FetcherConfig struct {
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelayMin time.Duration
	RetryDelayMax time.Duration
	UserAgents    []string
}

// DefaultFetcherConfig returns the production defaults.
func DefaultFetcherConfig(baseURL string) FetcherConfig {
	return FetcherConfig{
		BaseURL:       baseURL,
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		RetryDelayMin: 2 * time.Second,
		RetryDelayMax: 5 * time.Second,
		UserAgents:    defaultUserAgents,
	}
}

// Fetcher retrieves pages through one persistent browsing session. Cookies
// set by the site survive across calls; the outbound identity and
// navigation headers change per attempt. Not safe for concurrent use: one
// Fetcher belongs to one scrape run.
type Fetcher struct {
	cfg      FetcherConfig
	c        *colly.Collector
	baseHost string

	// per-attempt state, written by prepare and the colly callbacks
	userAgent string
	sameSite  bool
	status    int
	body      []byte
}

// NewFetcher creates a session-scoped fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}

	f := &Fetcher{cfg: cfg}
	if u, err := url.Parse(cfg.BaseURL); err == nil {
		f.baseHost = u.Host
	}

	c := colly.NewCollector(colly.AllowURLRevisit())
	c.SetRequestTimeout(cfg.Timeout)
	if jar, err := cookiejar.New(nil); err == nil {
		c.SetCookieJar(jar)
	}

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", f.userAgent)
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
		r.Headers.Set("Sec-Fetch-Dest", "document")
		r.Headers.Set("Sec-Fetch-Mode", "navigate")
		if f.sameSite {
			r.Headers.Set("Referer", f.cfg.BaseURL)
			r.Headers.Set("Sec-Fetch-Site", "same-origin")
		} else {
			r.Headers.Del("Referer")
			r.Headers.Set("Sec-Fetch-Site", "none")
		}
	})
	c.OnResponse(func(r *colly.Response) {
		f.status = r.StatusCode
		f.body = r.Body
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			f.status = r.StatusCode
		}
	})
	f.c = c

	return f
}

// Fetch retrieves one page, retrying blocked and failed attempts with a
// randomized backoff. All expected failure modes collapse into
// ErrFetchFailed after the final attempt.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, randomDelay(f.cfg.RetryDelayMin, f.cfg.RetryDelayMax)); err != nil {
				return "", err
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		f.prepare(rawURL)
		err := f.c.Visit(rawURL)
		if err == nil && f.status == http.StatusOK {
			return string(f.body), nil
		}

		switch f.status {
		case http.StatusForbidden:
			logger.Warn("blocked with 403, retrying", "url", rawURL, "attempt", attempt)
		case http.StatusTeapot:
			logger.Warn("blocked with 418, retrying", "url", rawURL, "attempt", attempt)
		default:
			logger.Warn("request failed", "url", rawURL, "attempt", attempt, "status", f.status, "error", err)
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("unexpected status %d", f.status)
		}
	}

	logger.Error("all attempts failed", "url", rawURL, "attempts", f.cfg.MaxRetries, "error", lastErr)
	return "", fmt.Errorf("%w: %s after %d attempts: %v", ErrFetchFailed, rawURL, f.cfg.MaxRetries, lastErr)
}

// prepare resets per-attempt state: a fresh identity from the rotation
// pool, and navigation headers matching entry versus same-site requests.
func (f *Fetcher) prepare(rawURL string) {
	f.userAgent = f.cfg.UserAgents[rand.IntN(len(f.cfg.UserAgents))]
	f.sameSite = f.isSearchURL(rawURL)
	f.status = 0
	f.body = nil
}

// isSearchURL reports whether rawURL is an inventory navigation on the
// target site, as opposed to the entry point.
func (f *Fetcher) isSearchURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Host == f.baseHost && strings.HasPrefix(u.Path, "/cars/")
}

// randomDelay picks a uniform duration in [lo, hi].
func randomDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

// sleepContext blocks for d unless the context ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
