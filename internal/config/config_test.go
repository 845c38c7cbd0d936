package config

import (
	"testing"

	"github.com/spf13/viper"

	"github.com/lotwatch/lotwatch/internal/listing"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Search.Make != "BMW" || cfg.Search.Model != "M2" {
		t.Errorf("unexpected search defaults %+v", cfg.Search)
	}
	if cfg.Search.YearStart != 2016 || cfg.Search.YearEnd != 2019 {
		t.Errorf("unexpected year defaults %+v", cfg.Search)
	}
	if cfg.Database.Path != "listings.db" {
		t.Errorf("unexpected database path %q", cfg.Database.Path)
	}
	if cfg.SMTP.Server != "smtp.gmail.com" || cfg.SMTP.Port != 587 {
		t.Errorf("unexpected smtp defaults %+v", cfg.SMTP)
	}
}

func TestLoad_InvalidTransmission(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("search.transmission", "cvt")

	if _, err := Load(v); err == nil {
		t.Error("expected error for invalid transmission")
	}
}

func TestLoad_YearRangeOrder(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("search.year_start", 2019)
	v.Set("search.year_end", 2016)

	if _, err := Load(v); err == nil {
		t.Error("expected error when year_end precedes year_start")
	}
}

func TestLoad_MissingMake(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("search.make", "")

	if _, err := Load(v); err == nil {
		t.Error("expected error for empty make")
	}
}

func TestSearchCriteria(t *testing.T) {
	s := Search{
		Make:         "BMW",
		Model:        "M2",
		YearStart:    2016,
		YearEnd:      2019,
		MaxMileage:   40000,
		MaxPrice:     50000,
		Transmission: "manual",
	}

	crit, err := s.Criteria()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if crit.Transmission != listing.TransmissionManual {
		t.Errorf("unexpected transmission %q", crit.Transmission)
	}
	if crit.MaxMileage != 40000 || crit.MaxPrice != 50000 {
		t.Errorf("unexpected ceilings %+v", crit)
	}

	s.Transmission = "dct"
	if _, err := s.Criteria(); err == nil {
		t.Error("expected error for unknown transmission")
	}
}

func TestSMTPConfig(t *testing.T) {
	s := SMTP{
		Server:    "smtp.example.com",
		Port:      587,
		User:      "u",
		Password:  "p",
		Recipient: "r@example.com",
	}
	got := s.SMTPConfig()
	if got.Server != s.Server || got.Port != s.Port || got.Recipient != s.Recipient {
		t.Errorf("unexpected conversion %+v", got)
	}
}
