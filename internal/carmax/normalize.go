package carmax

import (
	"strings"

	"github.com/lotwatch/lotwatch/internal/listing"
	"github.com/lotwatch/lotwatch/internal/logger"
)

// Keyword sets for the transmission preference predicate.
var (
	manualFilterKws = []string{"manual", "6-speed", "6 speed", "stick"}
	autoFilterKws   = []string{"automatic", "auto"}
)

// normalizeAndFilter collapses candidates into canonical listings:
// duplicates by URL drop (first seen wins), then each survivor must name
// the configured make and model in its title and pass the year,
// transmission, mileage and price predicates.
func normalizeAndFilter(cands []candidate, crit listing.Criteria) []listing.Listing {
	seen := make(map[string]bool, len(cands))
	var out []listing.Listing

	for _, c := range cands {
		if c.URL == "" || seen[c.URL] {
			continue
		}
		seen[c.URL] = true

		if !titleMatches(c.Title, crit) {
			continue
		}
		if !accept(c, crit) {
			logger.Debug("filtered out",
				"title", c.Title, "year", c.Year, "transmission", c.Transmission,
				"mileage", c.Mileage, "price", c.Price)
			continue
		}

		l := listing.Listing{
			Source:       Source,
			Title:        c.Title,
			Price:        c.Price,
			Mileage:      c.Mileage,
			Location:     c.Location,
			URL:          c.URL,
			Year:         c.Year,
			Transmission: c.Transmission,
			Status:       listing.StatusString(c.Reserved, c.Saleable, c.ComingSoon),
		}
		logger.Info("matching listing",
			"title", l.Title, "year", c.Year, "transmission", c.Transmission, "status", l.Status)
		out = append(out, l)
	}

	return out
}

// titleMatches requires the title to contain both make and model,
// case-insensitively. Candidates without a title are page noise.
func titleMatches(title string, crit listing.Criteria) bool {
	if title == "" {
		return false
	}
	lower := strings.ToLower(title)
	return strings.Contains(lower, strings.ToLower(crit.Make)) &&
		strings.Contains(lower, strings.ToLower(crit.Model))
}

// accept applies the criteria predicates. Absent mileage or price never
// excludes; absent year always does.
func accept(c candidate, crit listing.Criteria) bool {
	if !validYear(c.Year, crit) {
		return false
	}
	if !transmissionMatches(c.Transmission, crit.Transmission) {
		return false
	}
	if crit.MaxMileage > 0 && c.Mileage != nil && *c.Mileage > crit.MaxMileage {
		return false
	}
	if crit.MaxPrice > 0 && c.Price != nil && *c.Price > crit.MaxPrice {
		return false
	}
	return true
}

func validYear(year *int, crit listing.Criteria) bool {
	return year != nil && *year >= crit.YearStart && *year <= crit.YearEnd
}

func transmissionMatches(text string, pref listing.Transmission) bool {
	lower := strings.ToLower(text)
	switch pref {
	case listing.TransmissionManual:
		return containsAny(lower, manualFilterKws)
	case listing.TransmissionAutomatic:
		return containsAny(lower, autoFilterKws)
	default:
		return true
	}
}
