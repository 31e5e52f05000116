// Package config loads the settings of one tier. ATAA_* environment
// variables override the YAML file; a .env file may supply them but never
// replaces variables already set.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ataa/internal/auth"
)

// Tier names.
const (
	TierField = "field"
	TierHub   = "hub"
	TierCore  = "core"
)

type Config struct {
	Tier     string `yaml:"tier"`
	HubID    string `yaml:"hub_id"`
	ZoneID   string `yaml:"zone_id"`
	Database string `yaml:"database"`
	Listen   string `yaml:"listen"`

	Upstream   Upstream   `yaml:"upstream"`
	Sync       Sync       `yaml:"sync"`
	Auth       Auth       `yaml:"auth"`
	RateLimit  RateLimit  `yaml:"rate_limit"`
	Allocation Allocation `yaml:"allocation"`

	// RulesFile is an optional CUE file overriding the scoring and
	// prediction tables.
	RulesFile string `yaml:"rules_file"`
}

// Upstream is the tier this one pushes to and pulls from.
type Upstream struct {
	URL           string        `yaml:"url"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	LoginTimeout  time.Duration `yaml:"login_timeout"`
	SyncTimeout   time.Duration `yaml:"sync_timeout"`
	TokenMargin   time.Duration `yaml:"token_margin"`
	TokenLifetime time.Duration `yaml:"token_lifetime"`
}

type Sync struct {
	Interval          time.Duration `yaml:"interval"`
	RecomputeSchedule string        `yaml:"recompute_schedule"`
	ConflictPolicy    string        `yaml:"conflict_policy"`
	Relay             bool          `yaml:"relay"`
	AutoMatch         bool          `yaml:"auto_match"`
}

type Auth struct {
	Secret   string                  `yaml:"secret"`
	TokenTTL time.Duration           `yaml:"token_ttl"`
	Accounts map[string]auth.Account `yaml:"accounts"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type Allocation struct {
	MaxHouseholds int `yaml:"max_households"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Tier:     TierField,
		Database: "ataa.db",
		Listen:   ":8080",
		Upstream: Upstream{
			LoginTimeout:  10 * time.Second,
			SyncTimeout:   30 * time.Second,
			TokenMargin:   time.Minute,
			TokenLifetime: 23 * time.Hour,
		},
		Sync: Sync{
			Interval:          5 * time.Minute,
			RecomputeSchedule: "@every 1h",
			ConflictPolicy:    "last_write_wins",
		},
		Auth:       Auth{TokenTTL: 24 * time.Hour},
		RateLimit:  RateLimit{RPS: 20, Burst: 40},
		Allocation: Allocation{MaxHouseholds: 50},
	}
}

// Load reads envFile (a missing file is fine), then path when non-empty,
// then the environment, and validates the result.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays YAML onto cfg. Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides fields from ATAA_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"ATAA_TIER":              &c.Tier,
		"ATAA_HUB_ID":            &c.HubID,
		"ATAA_ZONE_ID":           &c.ZoneID,
		"ATAA_DATABASE":          &c.Database,
		"ATAA_LISTEN":            &c.Listen,
		"ATAA_UPSTREAM_URL":      &c.Upstream.URL,
		"ATAA_UPSTREAM_USERNAME": &c.Upstream.Username,
		"ATAA_UPSTREAM_PASSWORD": &c.Upstream.Password,
		"ATAA_AUTH_SECRET":       &c.Auth.Secret,
		"ATAA_CONFLICT_POLICY":   &c.Sync.ConflictPolicy,
		"ATAA_RULES_FILE":        &c.RulesFile,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"ATAA_SYNC_INTERVAL":  &c.Sync.Interval,
		"ATAA_SYNC_TIMEOUT":   &c.Upstream.SyncTimeout,
		"ATAA_LOGIN_TIMEOUT":  &c.Upstream.LoginTimeout,
		"ATAA_AUTH_TOKEN_TTL": &c.Auth.TokenTTL,
	}
	for name, dst := range durations {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
	}

	bools := map[string]*bool{
		"ATAA_SYNC_RELAY":      &c.Sync.Relay,
		"ATAA_SYNC_AUTO_MATCH": &c.Sync.AutoMatch,
	}
	for name, dst := range bools {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = b
	}

	if v, ok := lookup("ATAA_MAX_HOUSEHOLDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ATAA_MAX_HOUSEHOLDS: %w", err)
		}
		c.Allocation.MaxHouseholds = n
	}
	return nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	switch c.Tier {
	case TierField, TierHub, TierCore:
	default:
		errs = append(errs, fmt.Errorf("tier must be field, hub or core, got %q", c.Tier))
	}
	if c.HubID == "" {
		errs = append(errs, errors.New("hub_id is required"))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if c.Tier != TierCore && c.Upstream.URL == "" {
		errs = append(errs, fmt.Errorf("upstream.url is required on the %s tier", c.Tier))
	}
	if c.Tier != TierField && c.Auth.Secret == "" {
		errs = append(errs, fmt.Errorf("auth.secret is required on the %s tier", c.Tier))
	}
	if c.Sync.Interval <= 0 {
		errs = append(errs, errors.New("sync.interval must be positive"))
	}
	switch c.Sync.ConflictPolicy {
	case "", "last_write_wins", "newer_wins":
	default:
		errs = append(errs, fmt.Errorf("unknown sync.conflict_policy %q", c.Sync.ConflictPolicy))
	}
	if c.Allocation.MaxHouseholds < 0 {
		errs = append(errs, errors.New("allocation.max_households must be >= 0"))
	}
	for name, acct := range c.Auth.Accounts {
		if acct.PasswordHash == "" {
			errs = append(errs, fmt.Errorf("auth.accounts.%s: password_hash is required", name))
		}
		if !acct.Role.Valid() {
			errs = append(errs, fmt.Errorf("auth.accounts.%s: unknown role %q", name, acct.Role))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Serves reports whether the tier runs the HTTP API.
func (c *Config) Serves() bool { return c.Tier != TierField }

// Syncs reports whether the tier has an upstream.
func (c *Config) Syncs() bool { return c.Tier != TierCore }

// PullsExchange reports whether pull responses carry offers, requests and
// distributions. Only the core serves them, to its hubs.
func (c *Config) PullsExchange() bool { return c.Tier == TierCore }
