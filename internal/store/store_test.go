package store

import (
	"context"
	"testing"
	"time"

	"github.com/lotwatch/lotwatch/internal/listing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func intp(v int) *int { return &v }

func sampleListing(url string) listing.Listing {
	return listing.Listing{
		Source:       "CarMax",
		Title:        "2018 BMW M2",
		Price:        intp(45000),
		Mileage:      intp(30000),
		Location:     "Austin, TX",
		URL:          url,
		Year:         intp(2018),
		Transmission: "6-Speed Manual",
		Status:       listing.StatusAvailable,
	}
}

func TestUpsert_NewThenSeen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	l := sampleListing("https://www.carmax.com/cars/1")

	fresh, err := s.Upsert(ctx, l)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !fresh {
		t.Error("expected first upsert to report a new listing")
	}

	l.Status = "RESERVED"
	fresh, err = s.Upsert(ctx, l)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if fresh {
		t.Error("expected second upsert to report an existing listing")
	}

	all, err := s.All(ctx, "")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 stored listing, got %d", len(all))
	}
	if all[0].Status != "RESERVED" {
		t.Errorf("expected status refreshed to RESERVED, got %q", all[0].Status)
	}
	if all[0].Price == nil || *all[0].Price != 45000 {
		t.Errorf("unexpected price %v", all[0].Price)
	}
}

func TestUpsert_NilOptionalFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	l := sampleListing("https://www.carmax.com/cars/2")
	l.Price = nil
	l.Mileage = nil
	l.Year = intp(2017)

	if _, err := s.Upsert(ctx, l); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	all, err := s.All(ctx, "")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if all[0].Price != nil || all[0].Mileage != nil {
		t.Errorf("expected nil price and mileage round-trip, got %v %v", all[0].Price, all[0].Mileage)
	}
	if all[0].Year == nil || *all[0].Year != 2017 {
		t.Errorf("unexpected year %v", all[0].Year)
	}
}

func TestUnnotifiedAndMarkNotified(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, url := range []string{
		"https://www.carmax.com/cars/1",
		"https://www.carmax.com/cars/2",
	} {
		if _, err := s.Upsert(ctx, sampleListing(url)); err != nil {
			t.Fatalf("upsert %s: %v", url, err)
		}
	}

	pending, err := s.Unnotified(ctx)
	if err != nil {
		t.Fatalf("unnotified: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 unnotified listings, got %d", len(pending))
	}

	ids := []int64{pending[0].ID}
	if err := s.MarkNotified(ctx, ids); err != nil {
		t.Fatalf("mark notified: %v", err)
	}

	pending, err = s.Unnotified(ctx)
	if err != nil {
		t.Fatalf("unnotified after mark: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 unnotified listing left, got %d", len(pending))
	}
	if pending[0].ID == ids[0] {
		t.Error("marked listing still reported as unnotified")
	}
}

func TestMarkNotified_Empty(t *testing.T) {
	s := openTestStore(t)
	if err := s.MarkNotified(context.Background(), nil); err != nil {
		t.Errorf("expected no-op for empty id list, got %v", err)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, sampleListing("https://www.carmax.com/cars/old")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.Upsert(ctx, sampleListing("https://www.carmax.com/cars/new")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// age one row past the retention window
	stale := time.Now().UTC().AddDate(0, 0, -45)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE listings SET last_seen = ? WHERE url = ?`,
		stale, "https://www.carmax.com/cars/old"); err != nil {
		t.Fatalf("failed to age listing: %v", err)
	}

	n, err := s.PurgeOlderThan(ctx, 30)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged listing, got %d", n)
	}

	all, err := s.All(ctx, "")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 1 || all[0].URL != "https://www.carmax.com/cars/new" {
		t.Errorf("expected only the recent listing to survive, got %+v", all)
	}
}

func TestAll_SourceFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := sampleListing("https://www.carmax.com/cars/1")
	b := sampleListing("https://example.com/cars/2")
	b.Source = "Other"
	for _, l := range []listing.Listing{a, b} {
		if _, err := s.Upsert(ctx, l); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	got, err := s.All(ctx, "CarMax")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(got) != 1 || got[0].Source != "CarMax" {
		t.Errorf("expected only CarMax listings, got %+v", got)
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := sampleListing("https://www.carmax.com/cars/1")
	b := sampleListing("https://www.carmax.com/cars/2")
	c := sampleListing("https://example.com/cars/3")
	c.Source = "Other"
	for _, l := range []listing.Listing{a, b, c} {
		if _, err := s.Upsert(ctx, l); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	pending, err := s.Unnotified(ctx)
	if err != nil {
		t.Fatalf("unnotified: %v", err)
	}
	if err := s.MarkNotified(ctx, []int64{pending[0].ID}); err != nil {
		t.Fatalf("mark notified: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 3 {
		t.Errorf("expected total 3, got %d", st.Total)
	}
	if st.Unnotified != 2 {
		t.Errorf("expected 2 unnotified, got %d", st.Unnotified)
	}
	if st.BySource["CarMax"] != 2 || st.BySource["Other"] != 1 {
		t.Errorf("unexpected source counts %v", st.BySource)
	}
}
