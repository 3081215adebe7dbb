// Package config loads runtime configuration. Scalar knobs (thresholds,
// intervals, the enabled venue list) come from the environment via
// spf13/viper with AutomaticEnv. The per-venue symbol universe is a
// checked-in YAML file, since it is file-shaped static data rather than an
// environment-shaped scalar.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/arbiscan/internal/model"
	"github.com/sawpanic/arbiscan/internal/xerrors"
)

const envPrefix = "ARBISCAN"

// Settings holds every environment-driven runtime knob.
type Settings struct {
	MinProfitPercent    float64
	EnabledVenues       []model.VenueID
	CacheTTLSeconds     int
	PublisherPeriodSecs int
	CommissionsDir      string
	UniverseFile        string
	OpsHTTPAddr         string

	// Per-venue REST credentials, present only if the deployment needs
	// authenticated endpoints for future write-side features. Unset by
	// default; never logged.
	BybitAPIKey   string
	BybitAPISecret string
	GateAPIKey    string
	GateAPISecret string
	KucoinAPIKey  string
	HTXAPIKey     string
}

// Load reads Settings from the environment, applying the documented
// defaults (min profit 0.01%, 60s cache TTL, 5s publisher period).
func Load() (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("min_profit_percent", 0.01)
	v.SetDefault("enabled_venues", "binance,kraken,coinbase,okx,bybit,mexc")
	v.SetDefault("cache_ttl_seconds", 60)
	v.SetDefault("publisher_period_seconds", 5)
	v.SetDefault("commissions_dir", "./configs/commissions")
	v.SetDefault("universe_file", "./configs/universe.yaml")
	v.SetDefault("ops_http_addr", ":9100")

	venuesRaw := v.GetString("enabled_venues")
	venues := make([]model.VenueID, 0)
	for _, part := range strings.Split(venuesRaw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		venues = append(venues, model.VenueID(strings.ToLower(part)))
	}
	if len(venues) == 0 {
		return Settings{}, xerrors.New(xerrors.ConfigurationError, "", "", fmt.Errorf("no enabled venues configured"))
	}

	s := Settings{
		MinProfitPercent:    v.GetFloat64("min_profit_percent"),
		EnabledVenues:       venues,
		CacheTTLSeconds:     v.GetInt("cache_ttl_seconds"),
		PublisherPeriodSecs: v.GetInt("publisher_period_seconds"),
		CommissionsDir:      v.GetString("commissions_dir"),
		UniverseFile:        v.GetString("universe_file"),
		OpsHTTPAddr:         v.GetString("ops_http_addr"),
		BybitAPIKey:         v.GetString("bybit_api_key"),
		BybitAPISecret:      v.GetString("bybit_api_secret"),
		GateAPIKey:          v.GetString("gate_api_key"),
		GateAPISecret:       v.GetString("gate_api_secret"),
		KucoinAPIKey:        v.GetString("kucoin_api_key"),
		HTXAPIKey:           v.GetString("htx_api_key"),
	}

	if s.MinProfitPercent < 0 {
		return Settings{}, xerrors.New(xerrors.ConfigurationError, "", "", fmt.Errorf("min_profit_percent must be >= 0, got %v", s.MinProfitPercent))
	}
	if s.CacheTTLSeconds <= 0 {
		return Settings{}, xerrors.New(xerrors.ConfigurationError, "", "", fmt.Errorf("cache_ttl_seconds must be > 0, got %d", s.CacheTTLSeconds))
	}
	return s, nil
}

// CacheTTL returns the configured freshness TTL as a Duration.
func (s Settings) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// PublisherPeriod returns the configured publisher tick interval.
func (s Settings) PublisherPeriod() time.Duration {
	return time.Duration(s.PublisherPeriodSecs) * time.Second
}

// VenueUniverse is the YAML-file-driven symbol universe for one venue.
type VenueUniverse struct {
	Venue   model.VenueID `yaml:"venue"`
	Symbols []string      `yaml:"symbols"`
}

// UniverseFile is the top-level shape of the checked-in venue universe
// config, one entry per configured venue.
type UniverseFile struct {
	Venues []VenueUniverse `yaml:"venues"`
}

// LoadUniverse reads the venue/symbol universe table from a YAML file.
func LoadUniverse(path string) (map[model.VenueID][]model.Symbol, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.New(xerrors.ConfigurationError, "", "", fmt.Errorf("reading universe file %s: %w", path, err))
	}

	var f UniverseFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, xerrors.New(xerrors.ConfigurationError, "", "", fmt.Errorf("parsing universe file %s: %w", path, err))
	}

	out := make(map[model.VenueID][]model.Symbol, len(f.Venues))
	for _, vu := range f.Venues {
		symbols := make([]model.Symbol, 0, len(vu.Symbols))
		for _, raw := range vu.Symbols {
			parts := strings.SplitN(raw, "/", 2)
			if len(parts) != 2 {
				return nil, xerrors.New(xerrors.ConfigurationError, string(vu.Venue), "", fmt.Errorf("malformed symbol %q for venue %s, expected BASE/QUOTE", raw, vu.Venue))
			}
			symbols = append(symbols, model.NewSymbol(parts[0], parts[1]))
		}
		out[vu.Venue] = symbols
	}
	return out, nil
}
