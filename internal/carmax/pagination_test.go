package carmax

import (
	"context"
	"fmt"
	"testing"

	"github.com/lotwatch/lotwatch/internal/listing"
)

const (
	testSearchURL = testBaseURL + "/cars/bmw/m2"
	blobPage      = `<html><body><script>const cars = [{"stockNumber": "26164651", "year": 2018, "make": "BMW", "model": "M2", "basePrice": 45000}];</script></body></html>`
	emptyPage     = `<html><body><p>No more results.</p></body></html>`
)

// stubFetcher serves canned pages and records every requested URL.
type stubFetcher struct {
	pages map[string]string
	fail  map[string]bool
	calls []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.calls = append(f.calls, url)
	if f.fail[url] {
		return "", fmt.Errorf("%w: stubbed failure for %s", ErrFetchFailed, url)
	}
	html, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("%w: no stub page for %s", ErrFetchFailed, url)
	}
	return html, nil
}

func testScraper(f pageFetcher) *Scraper {
	return &Scraper{
		criteria:  m2Criteria(),
		fetcher:   f,
		baseURL:   testBaseURL,
		searchURL: testSearchURL,
	}
}

func TestWalk_StartFetchFailure(t *testing.T) {
	f := &stubFetcher{fail: map[string]bool{testSearchURL: true}}
	s := testScraper(f)

	if got := s.walk(context.Background(), testSearchURL); got != nil {
		t.Errorf("expected nil on start page failure, got %d candidates", len(got))
	}
	if len(f.calls) != 1 {
		t.Errorf("expected a single fetch, got %d", len(f.calls))
	}
}

func TestWalk_FollowsNextLink(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{
		testSearchURL:             readTestdata(t, "pagination.html"),
		testSearchURL + "?page=2": blobPage,
		testSearchURL + "?page=3": emptyPage,
	}}
	s := testScraper(f)

	got := s.walk(context.Background(), testSearchURL)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates across 2 pages, got %d", len(got))
	}
	if len(f.calls) != 3 {
		t.Fatalf("expected 3 fetches, got %d: %v", len(f.calls), f.calls)
	}
	if f.calls[1] != testSearchURL+"?page=2" {
		t.Errorf("expected the next link from the page, got %q", f.calls[1])
	}
}

func TestWalk_StopsWhenFollowUpPageHasNoData(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{
		testSearchURL:             blobPage,
		testSearchURL + "?page=2": readTestdata(t, "cards.html"),
	}}
	s := testScraper(f)

	// page 2 has markup cards but no inventory blob, so the chain ends
	// there and its cards are not counted.
	got := s.walk(context.Background(), testSearchURL)
	if len(got) != 1 {
		t.Errorf("expected only the first page candidate, got %d", len(got))
	}
	if len(f.calls) != 2 {
		t.Errorf("expected 2 fetches, got %d", len(f.calls))
	}
}

func TestWalk_FetchFailureKeepsAccumulated(t *testing.T) {
	f := &stubFetcher{
		pages: map[string]string{testSearchURL: blobPage},
		fail:  map[string]bool{testSearchURL + "?page=2": true},
	}
	s := testScraper(f)

	got := s.walk(context.Background(), testSearchURL)
	if len(got) != 1 {
		t.Errorf("expected first page candidates kept after failure, got %d", len(got))
	}
}

func TestWalk_PageCeiling(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{testSearchURL: blobPage}}
	for page := 2; page <= 20; page++ {
		f.pages[fmt.Sprintf("%s?page=%d", testSearchURL, page)] = blobPage
	}
	s := testScraper(f)

	got := s.walk(context.Background(), testSearchURL)
	if len(f.calls) != maxWalkPages {
		t.Errorf("expected fetches capped at %d pages, got %d", maxWalkPages, len(f.calls))
	}
	if len(got) != maxWalkPages {
		t.Errorf("expected one candidate per page, got %d", len(got))
	}
}

func TestWalk_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &stubFetcher{pages: map[string]string{
		testSearchURL:             blobPage,
		testSearchURL + "?page=2": blobPage,
	}}
	s := testScraper(f)
	s.pageDelayMin = 1 // force the inter-page sleep to notice the context

	got := s.walk(ctx, testSearchURL)
	if len(got) != 1 {
		t.Errorf("expected only the first page before cancellation, got %d", len(got))
	}
}

func TestNextPageURL_SelectorWins(t *testing.T) {
	s := testScraper(nil)
	html := readTestdata(t, "pagination.html")

	got := s.nextPageURL(html, testSearchURL, 2)
	if got != testSearchURL+"?page=2" {
		t.Errorf("expected next link honored, got %q", got)
	}
}

func TestNextPageURL_FromExistingPageLink(t *testing.T) {
	s := testScraper(nil)
	html := readTestdata(t, "pagination_link.html")

	got := s.nextPageURL(html, testSearchURL, 3)
	want := testSearchURL + "?sort=price_asc&page=3"
	if got != want {
		t.Errorf("expected page number substituted into existing link, got %q want %q", got, want)
	}
}

func TestNextPageURL_Constructed(t *testing.T) {
	s := testScraper(nil)

	if got := s.nextPageURL(emptyPage, testSearchURL, 5); got != testSearchURL+"?page=5" {
		t.Errorf("expected constructed page URL, got %q", got)
	}

	s.searchURL = testSearchURL + "?transmission=manual"
	want := testSearchURL + "?transmission=manual&page=5"
	if got := s.nextPageURL(emptyPage, testSearchURL, 5); got != want {
		t.Errorf("expected ampersand separator, got %q", got)
	}
}

func TestSearchVariants_ManualPreference(t *testing.T) {
	s := testScraper(nil)

	got := s.searchVariants()
	want := []string{
		testSearchURL,
		testSearchURL + "?transmission=manual",
		testSearchURL + "?year=2016,2019&transmission=manual",
		testSearchURL + "?sort=price_asc",
		testSearchURL + "?sort=price_desc",
		testSearchURL + "?sort=mileage_asc",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d variants, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("variant %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestSearchVariants_AnyPreference(t *testing.T) {
	s := testScraper(nil)
	s.criteria.Transmission = listing.TransmissionAny

	got := s.searchVariants()
	if len(got) != 5 {
		t.Fatalf("expected 5 variants, got %d: %v", len(got), got)
	}
	if got[1] != testSearchURL+"?year=2016,2019" {
		t.Errorf("expected year-only variant, got %q", got[1])
	}
}

func TestListings_EndToEnd(t *testing.T) {
	pages := map[string]string{testBaseURL: emptyPage}
	s := testScraper(nil)
	for _, variant := range s.searchVariants() {
		pages[variant] = emptyPage
	}
	pages[testSearchURL] = readTestdata(t, "blob.html")
	pages[testSearchURL+"?page=2"] = emptyPage

	f := &stubFetcher{pages: pages}
	s.fetcher = f

	got, err := s.Listings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// blob.html carries five cars; the two automatics fall out on
	// transmission, one of them on year too.
	if len(got) != 3 {
		t.Fatalf("expected 3 matching listings, got %d: %+v", len(got), got)
	}
	for _, l := range got {
		if l.Source != Source {
			t.Errorf("expected source %q, got %q", Source, l.Source)
		}
	}
	if got[0].Year == nil || *got[0].Year != 2018 {
		t.Errorf("unexpected first listing %+v", got[0])
	}
}

func TestListings_SessionFailureDegrades(t *testing.T) {
	s := testScraper(nil)
	pages := map[string]string{}
	for _, variant := range s.searchVariants() {
		pages[variant] = emptyPage
	}
	f := &stubFetcher{
		pages: pages,
		fail:  map[string]bool{testBaseURL: true},
	}
	s.fetcher = f

	if _, err := s.Listings(context.Background()); err != nil {
		t.Fatalf("expected entry page failure tolerated, got %v", err)
	}
}
