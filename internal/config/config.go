// Package config defines the typed run configuration loaded from viper.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/lotwatch/lotwatch/internal/listing"
	"github.com/lotwatch/lotwatch/internal/notify"
)

// Config is the full process configuration: search defaults, storage
// location and mail settings.
type Config struct {
	Search   Search   `mapstructure:"search"`
	Database Database `mapstructure:"database"`
	SMTP     SMTP     `mapstructure:"smtp"`
}

// Search holds the default search criteria, overridable per run by flags.
type Search struct {
	Make         string `mapstructure:"make" validate:"required"`
	Model        string `mapstructure:"model" validate:"required"`
	YearStart    int    `mapstructure:"year_start" validate:"min=1900"`
	YearEnd      int    `mapstructure:"year_end" validate:"gtefield=YearStart"`
	MaxMileage   int    `mapstructure:"max_mileage" validate:"min=0"`
	MaxPrice     int    `mapstructure:"max_price" validate:"min=0"`
	Transmission string `mapstructure:"transmission" validate:"oneof=manual automatic any"`
}

// Database locates the listings store.
type Database struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SMTP holds mail credentials. All fields empty is valid and disables
// notifications.
type SMTP struct {
	Server    string `mapstructure:"server"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	Recipient string `mapstructure:"recipient"`
}

// SetDefaults registers configuration defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("search.make", "BMW")
	v.SetDefault("search.model", "M2")
	v.SetDefault("search.year_start", 2016)
	v.SetDefault("search.year_end", 2019)
	v.SetDefault("search.transmission", "manual")
	v.SetDefault("database.path", "listings.db")
	v.SetDefault("smtp.server", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
}

// Load unmarshals and validates the configuration from v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Criteria converts the search settings into run criteria.
func (s Search) Criteria() (listing.Criteria, error) {
	tr, err := listing.ParseTransmission(s.Transmission)
	if err != nil {
		return listing.Criteria{}, err
	}
	return listing.Criteria{
		Make:         s.Make,
		Model:        s.Model,
		YearStart:    s.YearStart,
		YearEnd:      s.YearEnd,
		MaxMileage:   s.MaxMileage,
		MaxPrice:     s.MaxPrice,
		Transmission: tr,
	}, nil
}

// SMTPConfig converts the mail settings for the notifier.
func (s SMTP) SMTPConfig() notify.SMTPConfig {
	return notify.SMTPConfig{
		Server:    s.Server,
		Port:      s.Port,
		User:      s.User,
		Password:  s.Password,
		Recipient: s.Recipient,
	}
}
