// Package carmax acquires vehicle listings from the CarMax inventory site:
// session-scoped fetching under anti-bot countermeasures, multi-strategy
// record extraction, pagination, and criteria filtering.
package carmax

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lotwatch/lotwatch/internal/listing"
	"github.com/lotwatch/lotwatch/internal/logger"
)

// Source tags listings acquired by this package.
const Source = "CarMax"

const defaultBaseURL = "https://www.carmax.com"

// pageFetcher is the transport the pipeline consumes.
type pageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Config tunes a Scraper. The zero value selects production defaults.
type Config struct {
	BaseURL      string
	Fetcher      FetcherConfig
	PageDelayMin time.Duration // delay between page and variant fetches
	PageDelayMax time.Duration
}

// Scraper drives one acquisition run for one search configuration. It owns
// its fetcher session and must not be shared across concurrent runs.
type Scraper struct {
	criteria  listing.Criteria
	fetcher   pageFetcher
	baseURL   string
	searchURL string

	pageDelayMin time.Duration
	pageDelayMax time.Duration
}

// New creates a Scraper for the given criteria.
func New(crit listing.Criteria, cfg Config) *Scraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PageDelayMin == 0 {
		cfg.PageDelayMin = 2 * time.Second
	}
	if cfg.PageDelayMax == 0 {
		cfg.PageDelayMax = 4 * time.Second
	}
	if cfg.Fetcher.BaseURL == "" {
		cfg.Fetcher = DefaultFetcherConfig(cfg.BaseURL)
	}

	return &Scraper{
		criteria:     crit,
		fetcher:      NewFetcher(cfg.Fetcher),
		baseURL:      cfg.BaseURL,
		searchURL:    searchURL(cfg.BaseURL, crit),
		pageDelayMin: cfg.PageDelayMin,
		pageDelayMax: cfg.PageDelayMax,
	}
}

// searchURL builds the inventory URL for a make and model.
func searchURL(baseURL string, crit listing.Criteria) string {
	return fmt.Sprintf("%s/cars/%s/%s",
		baseURL,
		url.PathEscape(strings.ToLower(crit.Make)),
		url.PathEscape(strings.ToLower(crit.Model)))
}

// Listings runs the full acquisition pipeline: establish a session, walk
// every search variant, then normalize and filter the combined candidates.
// Expected network failures degrade coverage instead of erroring; only
// context cancellation returns an error.
func (s *Scraper) Listings(ctx context.Context) ([]listing.Listing, error) {
	logger.Info("establishing session", "url", s.baseURL)
	if _, err := s.fetcher.Fetch(ctx, s.baseURL); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("session establishment failed, continuing", "error", err)
	}
	if err := sleepContext(ctx, randomDelay(s.pageDelayMin, s.pageDelayMax)); err != nil {
		return nil, err
	}

	var cands []candidate
	for i, variant := range s.searchVariants() {
		if i > 0 {
			if err := sleepContext(ctx, randomDelay(s.pageDelayMin, s.pageDelayMax)); err != nil {
				return nil, err
			}
		}
		logger.Info("searching", "url", variant)
		cands = append(cands, s.walk(ctx, variant)...)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	matches := normalizeAndFilter(cands, s.criteria)
	logger.Info("acquisition complete",
		"criteria", s.criteria.String(), "candidates", len(cands), "matches", len(matches))
	return matches, nil
}

// searchVariants returns the query variants walked in one run. Sort-order
// variants surface inventory beyond the per-page window of the base
// search.
func (s *Scraper) searchVariants() []string {
	variants := []string{s.searchURL}

	if s.criteria.Transmission != listing.TransmissionAny {
		variants = append(variants,
			fmt.Sprintf("%s?transmission=%s", s.searchURL, s.criteria.Transmission),
			fmt.Sprintf("%s?year=%d,%d&transmission=%s",
				s.searchURL, s.criteria.YearStart, s.criteria.YearEnd, s.criteria.Transmission))
	} else {
		variants = append(variants,
			fmt.Sprintf("%s?year=%d,%d", s.searchURL, s.criteria.YearStart, s.criteria.YearEnd))
	}

	return append(variants,
		s.searchURL+"?sort=price_asc",
		s.searchURL+"?sort=price_desc",
		s.searchURL+"?sort=mileage_asc")
}
