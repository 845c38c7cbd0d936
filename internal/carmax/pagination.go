package carmax

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lotwatch/lotwatch/internal/logger"
)

// maxWalkPages caps one pagination chain. A search that legitimately spans
// more pages is covered by the other search variants.
const maxWalkPages = 10

// Next-link selectors, tried in order. Best effort: sites rearrange these.
var nextSelectors = []string{
	`a[aria-label="Next page"]`,
	`a[aria-label="Next"]`,
	`a[rel="next"]`,
	`.next-page`,
	`.pagination-next`,
}

// walk fetches startURL and follows its pagination chain, accumulating
// candidates until the chain ends, a fetch fails, a follow-up page carries
// no inventory data, or the page ceiling is hit. Failures terminate the
// branch with whatever was collected so far; they never propagate.
func (s *Scraper) walk(ctx context.Context, startURL string) []candidate {
	html, err := s.fetcher.Fetch(ctx, startURL)
	if err != nil {
		logger.Warn("search page fetch failed", "url", startURL, "error", err)
		return nil
	}
	cands := extract(html, s.baseURL)
	logger.Debug("extracted candidates", "url", startURL, "count", len(cands))

	pageURL := startURL
	for page := 2; page <= maxWalkPages; page++ {
		next := s.nextPageURL(html, pageURL, page)
		if next == "" {
			break
		}
		logger.Info("following pagination", "page", page, "url", next)

		if err := sleepContext(ctx, randomDelay(s.pageDelayMin, s.pageDelayMax)); err != nil {
			return cands
		}
		html, err = s.fetcher.Fetch(ctx, next)
		if err != nil {
			logger.Warn("pagination fetch failed", "page", page, "error", err)
			break
		}

		// Follow-up pages count only when the inventory blob is present;
		// markup noise alone means the chain ran out.
		blob := extractBlob(html, s.baseURL)
		if len(blob) == 0 {
			logger.Debug("no inventory data, stopping pagination", "page", page)
			break
		}
		logger.Debug("extracted candidates", "page", page, "count", len(blob))
		cands = append(cands, blob...)
		pageURL = next
	}

	return cands
}

// nextPageURL determines the URL for page pageNum. First strategy that
// yields a URL wins: a next-link selector, an existing pagination link with
// a page= parameter, or a constructed page=N query.
func (s *Scraper) nextPageURL(html, currentURL string, pageNum int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return s.pageQueryURL(pageNum)
	}

	for _, sel := range nextSelectors {
		if href, ok := doc.Find(sel).First().Attr("href"); ok && href != "" {
			return resolveURL(currentURL, href)
		}
	}

	// A pagination link for this search already carries the page layout.
	searchPath := strings.TrimPrefix(s.searchURL, s.baseURL)
	var fromLink string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !strings.Contains(href, searchPath) || !strings.Contains(href, "page=") {
			return true
		}
		base, _, _ := strings.Cut(href, "page=")
		fromLink = resolveURL(currentURL, fmt.Sprintf("%spage=%d", base, pageNum))
		return false
	})
	if fromLink != "" {
		return fromLink
	}

	return s.pageQueryURL(pageNum)
}

// pageQueryURL guesses the common page=N layout for the search URL.
func (s *Scraper) pageQueryURL(pageNum int) string {
	sep := "?"
	if strings.Contains(s.searchURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d", s.searchURL, sep, pageNum)
}
