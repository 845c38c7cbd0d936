package carmax

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lotwatch/lotwatch/internal/logger"
)

// candidate is an unvalidated listing pulled from one page representation.
// Any field may be missing; numeric fields are nil unless a clean
// non-negative integer was parsed.
type candidate struct {
	Title        string
	Price        *int
	Mileage      *int
	Location     string
	URL          string
	Year         *int
	Transmission string

	Reserved   bool
	Saleable   bool
	ComingSoon bool
}

// Patterns for the script-embedded inventory blob, tried in order. The
// first one whose capture parses as a JSON array of objects wins.
var blobPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)const cars = \[(.*?)\];`),
	regexp.MustCompile(`(?s)var cars = \[(.*?)\];`),
	regexp.MustCompile(`(?s)cars:\s*\[(.*?)\]`),
	regexp.MustCompile(`(?s)"cars":\s*\[(.*?)\]`),
}

// Ordered key fallbacks for blob fields.
var (
	priceKeys        = []string{"basePrice", "price", "listPrice"}
	mileageKeys      = []string{"mileage", "odometer"}
	transmissionKeys = []string{"transmission", "transmissionType"}
)

var (
	yearRe    = regexp.MustCompile(`\b(20\d{2})\b`)
	numberRe  = regexp.MustCompile(`\d[\d,]*`)
	classRe   = regexp.MustCompile(`(?i)car|vehicle|tile|card|listing`)
	manualKws = []string{"manual", "6-speed", "6 speed", "stick"}
	autoKws   = []string{"automatic", "auto"}
)

// Car-card selectors, most specific first.
var cardSelectors = []string{
	`article[data-testid="car-tile"]`,
	`.car-tile`,
	`.vehicle-card`,
	`[data-testid="vehicle-card"]`,
	`.car-card`,
	`[data-testid="car-card"]`,
	`.inventory-listing`,
}

var (
	titleSelectors = []string{
		"h3", "h2", ".title", ".car-title", `[data-testid="car-title"]`,
		".vehicle-title", ".car-name",
	}
	priceSelectors = []string{
		".price", ".car-price", `[data-testid="price"]`, ".vehicle-price",
		".price-value", ".listing-price",
	}
	mileageSelectors = []string{
		".mileage", ".car-mileage", `[data-testid="mileage"]`, ".vehicle-mileage",
		".odometer", ".miles",
	}
	locationSelectors = []string{
		".location", ".car-location", `[data-testid="location"]`, ".vehicle-location",
		".dealer-location", ".store-location",
	}
)

// extract runs every extraction strategy against one page and merges the
// results: the embedded inventory blob first, then car-card markup.
// Downstream normalization deduplicates the overlap.
func extract(html, baseURL string) []candidate {
	cands := extractBlob(html, baseURL)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		logger.Debug("markup parse failed", "error", err)
		return cands
	}
	return append(cands, extractMarkup(doc, baseURL)...)
}

// extractBlob pulls candidates out of the script-embedded inventory array.
// A pattern that matches but does not parse is skipped, never fatal.
func extractBlob(html, baseURL string) []candidate {
	for _, pattern := range blobPatterns {
		for _, m := range pattern.FindAllStringSubmatch(html, -1) {
			var objs []map[string]any
			if err := json.Unmarshal([]byte("["+m[1]+"]"), &objs); err != nil {
				continue
			}
			if len(objs) == 0 {
				continue
			}
			logger.Debug("found embedded inventory data", "count", len(objs))
			cands := make([]candidate, 0, len(objs))
			for _, obj := range objs {
				cands = append(cands, blobCandidate(obj, baseURL))
			}
			return cands
		}
	}
	return nil
}

// blobCandidate maps one inventory object into a candidate using the
// per-field key fallback chains.
func blobCandidate(obj map[string]any, baseURL string) candidate {
	c := candidate{Saleable: true}

	c.Year = firstNumber(obj, "year")
	c.Title = blobTitle(c.Year, firstString(obj, "make"), firstString(obj, "model"))
	c.Price = firstNumber(obj, priceKeys...)
	c.Mileage = firstNumber(obj, mileageKeys...)
	c.Transmission = firstString(obj, transmissionKeys...)
	c.Location = blobLocation(obj)

	if u := firstString(obj, "url"); u != "" {
		c.URL = resolveURL(baseURL, u)
	} else if stock := firstString(obj, "stockNumber"); stock != "" {
		c.URL = baseURL + "/cars/" + stock
	}

	if v, ok := obj["isReserved"].(bool); ok {
		c.Reserved = v
	}
	if v, ok := obj["isSaleable"].(bool); ok {
		c.Saleable = v
	}
	if v, ok := obj["isComingSoon"].(bool); ok {
		c.ComingSoon = v
	}

	return c
}

func blobTitle(year *int, carMake, carModel string) string {
	var parts []string
	if year != nil {
		parts = append(parts, strconv.Itoa(*year))
	}
	if carMake != "" {
		parts = append(parts, carMake)
	}
	if carModel != "" {
		parts = append(parts, carModel)
	}
	return strings.Join(parts, " ")
}

func blobLocation(obj map[string]any) string {
	city := firstString(obj, "storeCity")
	state := firstString(obj, "stateAbbreviation")
	if city != "" && state != "" {
		return city + ", " + state
	}
	if loc := firstString(obj, "location"); loc != "" {
		return loc
	}
	city = firstString(obj, "city")
	state = firstString(obj, "state")
	if city != "" && state != "" {
		return city + ", " + state
	}
	return ""
}

// extractMarkup selects car-card elements and reads their fields through
// ordered selector fallbacks. If no card selector matches, it falls back to
// a broad scan of containers whose class hints at a vehicle tile.
func extractMarkup(doc *goquery.Document, baseURL string) []candidate {
	var cards *goquery.Selection
	for _, sel := range cardSelectors {
		if s := doc.Find(sel); s.Length() > 0 {
			logger.Debug("found car cards", "selector", sel, "count", s.Length())
			cards = s
			break
		}
	}
	if cards == nil {
		cards = doc.Find("div, article").FilterFunction(func(_ int, s *goquery.Selection) bool {
			class, _ := s.Attr("class")
			return classRe.MatchString(class)
		})
		logger.Debug("broad scan for car elements", "count", cards.Length())
	}

	var cands []candidate
	cards.Each(func(_ int, card *goquery.Selection) {
		cands = append(cands, cardCandidate(card, baseURL))
	})
	return cands
}

// cardCandidate extracts one candidate from a car-card element.
func cardCandidate(card *goquery.Selection, baseURL string) candidate {
	c := candidate{Saleable: true}

	c.Title = firstText(card, titleSelectors)
	c.Price = parseNumber(firstText(card, priceSelectors))
	c.Mileage = parseNumber(firstText(card, mileageSelectors))
	c.Location = firstText(card, locationSelectors)

	if href, ok := card.Find("a[href]").First().Attr("href"); ok {
		c.URL = resolveURL(baseURL, href)
	}

	if m := yearRe.FindStringSubmatch(c.Title); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil {
			c.Year = &y
		}
	}
	c.Transmission = classifyTransmission(c.Title)

	return c
}

// classifyTransmission derives a transmission label from keywords in free
// text. Unrecognized text yields "".
func classifyTransmission(text string) string {
	lower := strings.ToLower(text)
	if containsAny(lower, manualKws) {
		return "manual"
	}
	if containsAny(lower, autoKws) {
		return "automatic"
	}
	return ""
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// firstText returns the text of the first selector that yields a non-empty
// result.
func firstText(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(s.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// firstNumber tries keys in order and returns the first value that parses
// as a non-negative integer.
func firstNumber(obj map[string]any, keys ...string) *int {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if n, ok := asInt(v); ok {
			return &n
		}
	}
	return nil
}

// firstString tries keys in order and returns the first non-empty string,
// stringifying numeric values (stock numbers appear as both).
func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// asInt converts a JSON value to a non-negative integer if possible.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return int(n), true
	case string:
		if p := parseNumber(n); p != nil {
			return *p, true
		}
	}
	return 0, false
}

// parseNumber extracts an integer from free text, tolerating currency
// symbols and thousands separators. Returns nil when nothing parses.
func parseNumber(text string) *int {
	m := numberRe.FindString(text)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// resolveURL makes href absolute against base. Unparseable input is
// returned as-is.
func resolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	if h.IsAbs() {
		return href
	}
	return b.ResolveReference(h).String()
}
