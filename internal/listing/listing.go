// Package listing defines the canonical vehicle listing record and the
// search criteria a run filters against.
package listing

import (
	"fmt"
	"strings"
	"time"
)

// Transmission is a search preference, not a classification of a single car.
type Transmission string

const (
	TransmissionManual    Transmission = "manual"
	TransmissionAutomatic Transmission = "automatic"
	TransmissionAny       Transmission = "any"
)

// ParseTransmission validates a transmission preference string.
func ParseTransmission(s string) (Transmission, error) {
	switch Transmission(strings.ToLower(strings.TrimSpace(s))) {
	case TransmissionManual:
		return TransmissionManual, nil
	case TransmissionAutomatic:
		return TransmissionAutomatic, nil
	case TransmissionAny:
		return TransmissionAny, nil
	}
	return "", fmt.Errorf("invalid transmission %q (want manual, automatic or any)", s)
}

// Criteria describes one search configuration. Immutable for the duration
// of a run. Zero ceilings mean no limit.
type Criteria struct {
	Make         string
	Model        string
	YearStart    int
	YearEnd      int
	MaxMileage   int
	MaxPrice     int
	Transmission Transmission
}

func (c Criteria) String() string {
	return fmt.Sprintf("%s %s %d-%d (%s)", c.Make, c.Model, c.YearStart, c.YearEnd, c.Transmission)
}

// Listing status values. Reservation outranks saleability, which outranks
// coming-soon; combined flags join with ", ".
const (
	StatusAvailable   = "AVAILABLE"
	StatusReserved    = "RESERVED"
	StatusNotSaleable = "NOT_SALEABLE"
	StatusComingSoon  = "COMING_SOON"
)

// Listing is the canonical record for one vehicle advertisement. URL is the
// identity key: equal URLs are the same listing everywhere in the system.
// Price, Mileage and Year are nil when the source page did not yield a
// parseable value.
type Listing struct {
	ID           int64  `db:"id" json:"id,omitempty" yaml:"id,omitempty"`
	Source       string `db:"source" json:"source" yaml:"source"`
	Title        string `db:"title" json:"title" yaml:"title"`
	Price        *int   `db:"price" json:"price,omitempty" yaml:"price,omitempty"`
	Mileage      *int   `db:"mileage" json:"mileage,omitempty" yaml:"mileage,omitempty"`
	Location     string `db:"location" json:"location,omitempty" yaml:"location,omitempty"`
	URL          string `db:"url" json:"url" yaml:"url"`
	Year         *int   `db:"year" json:"year,omitempty" yaml:"year,omitempty"`
	Transmission string `db:"transmission" json:"transmission,omitempty" yaml:"transmission,omitempty"`
	Status       string `db:"status" json:"status" yaml:"status"`

	// Persisted bookkeeping, owned by the store.
	FirstSeen time.Time `db:"first_seen" json:"first_seen,omitzero" yaml:"first_seen,omitempty"`
	LastSeen  time.Time `db:"last_seen" json:"last_seen,omitzero" yaml:"last_seen,omitempty"`
	Notified  bool      `db:"notified" json:"notified" yaml:"notified"`
}

// StatusString builds the combined status from the raw page flags, in
// priority order, defaulting to AVAILABLE.
func StatusString(reserved, saleable, comingSoon bool) string {
	var parts []string
	if reserved {
		parts = append(parts, StatusReserved)
	}
	if !saleable {
		parts = append(parts, StatusNotSaleable)
	}
	if comingSoon {
		parts = append(parts, StatusComingSoon)
	}
	if len(parts) == 0 {
		return StatusAvailable
	}
	return strings.Join(parts, ", ")
}
