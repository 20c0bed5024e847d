package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"herald/internal/model"
)

// Config is the application's configuration model.
// It captures platform credentials, file locations, and the posting,
// engagement, archival and digest schedules.
type Config struct {
	Platform   string           `yaml:"platform"` // "farcaster" or "twitter"
	Timezone   string           `yaml:"timezone"`
	Paths      PathsConfig      `yaml:"paths"`
	Rotation   RotationConfig   `yaml:"rotation"`
	Publish    PublishConfig    `yaml:"publish"`
	Engagement EngagementConfig `yaml:"engagement"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Insights   InsightsConfig   `yaml:"insights"`
	Farcaster  FarcasterConfig  `yaml:"farcaster"`
	Twitter    TwitterConfig    `yaml:"twitter"`
	API        APIConfig        `yaml:"api"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type PathsConfig struct {
	Messages     string `yaml:"messages"`
	History      string `yaml:"history"`
	State        string `yaml:"state"`
	Log          string `yaml:"log"`
	Interactions string `yaml:"interactions"`
	Insights     string `yaml:"insights"`
	Ledger       string `yaml:"ledger"`
}

type RotationConfig struct {
	// Window is how many recent picks per bucket are excluded from selection.
	Window int `yaml:"window"`
	// CommitOnPublish records a pick in history only after the publish succeeds.
	CommitOnPublish bool `yaml:"commitOnPublish"`
}

type PublishConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Schedule string   `yaml:"schedule"`
	Interval Duration `yaml:"interval"`
	// Odds is N in the per-tick 1-in-N publish roll.
	Odds int `yaml:"odds"`
	// LogTimeLayout formats the timestamp of each publish log line.
	LogTimeLayout string `yaml:"logTimeLayout"`
}

type EngagementConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Schedules  []string `yaml:"schedules"`
	RunOnStart bool     `yaml:"runOnStart"`
	// Mode is "all" (sweep every account) or "random" (one account per run).
	Mode              string          `yaml:"mode"`
	PageSize          int             `yaml:"pageSize"`
	Lookback          Duration        `yaml:"lookback"`
	MaxActionsPerRun  int             `yaml:"maxActionsPerRun"` // 0 = unlimited
	MaxPerDay         int             `yaml:"maxPerDay"`        // 0 = unlimited
	ActionDelay       Duration        `yaml:"actionDelay"`
	RateLimitCooldown Duration        `yaml:"rateLimitCooldown"`
	HistoryCap        int             `yaml:"historyCap"`
	Accounts          []model.Account `yaml:"accounts"`
}

type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
	// IncludeInteractions also archives and resets the interaction history.
	IncludeInteractions bool `yaml:"includeInteractions"`
}

type InsightsConfig struct {
	Enabled         bool     `yaml:"enabled"`
	RefreshSchedule string   `yaml:"refreshSchedule"`
	DigestSchedule  string   `yaml:"digestSchedule"`
	Retention       Duration `yaml:"retention"`
	MaxItems        int      `yaml:"maxItems"`
	PerAccount      int      `yaml:"perAccount"`
	TopN            int      `yaml:"topN"`
	Window          Duration `yaml:"window"`
}

type FarcasterConfig struct {
	BaseURL string `yaml:"baseURL"`
	// If empty, read from env NEYNAR_API_KEY
	APIKey string `yaml:"apiKey"`
	// If empty, read from env NEYNAR_SIGNER_UUID, then the legacy FID variable
	SignerUUID string `yaml:"signerUUID"`
}

type TwitterConfig struct {
	BaseURL string `yaml:"baseURL"`
	// App-only bearer token for reads. If empty, read from env X_BEARER_TOKEN
	BearerToken string `yaml:"bearerToken"`
	// OAuth1.0a user-context credentials for writes
	ConsumerKey    string `yaml:"consumerKey"`
	ConsumerSecret string `yaml:"consumerSecret"`
	AccessToken    string `yaml:"accessToken"`
	AccessSecret   string `yaml:"accessSecret"`
	// UserID of the bot account; looked up via /2/users/me when empty
	UserID string `yaml:"userId"`
}

type APIConfig struct {
	RPS        float64  `yaml:"rps"`
	Burst      int      `yaml:"burst"`
	MaxRetries int      `yaml:"maxRetries"`
	Timeout    Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Platform: "farcaster",
		Timezone: "America/Bogota",
		Paths: PathsConfig{
			Messages:     "./messages.json",
			History:      "./cast_history.json",
			State:        "./state.json",
			Log:          "./casts.log",
			Interactions: "./interactions.json",
			Insights:     "./insights.json",
			Ledger:       "./herald.db",
		},
		Rotation: RotationConfig{Window: 10},
		Publish: PublishConfig{
			Enabled:       true,
			Schedule:      "0 * * * *",
			Interval:      Duration(24 * time.Hour),
			Odds:          8,
			LogTimeLayout: "2/1/2006, 15:04:05",
		},
		Engagement: EngagementConfig{
			Enabled:           true,
			Schedules:         []string{"0 9 * * *", "0 15 * * *", "0 21 * * *"},
			RunOnStart:        true,
			Mode:              "all",
			PageSize:          5,
			Lookback:          Duration(72 * time.Hour),
			MaxActionsPerRun:  3,
			ActionDelay:       Duration(3 * time.Second),
			RateLimitCooldown: Duration(60 * time.Second),
			HistoryCap:        100,
			Accounts: []model.Account{
				{Handle: "celo-col"},
				{Handle: "refimed"},
				{Handle: "medellinblock"},
			},
		},
		Archive: ArchiveConfig{Enabled: true, Schedule: "59 23 * * *"},
		Insights: InsightsConfig{
			RefreshSchedule: "30 */6 * * *",
			DigestSchedule:  "0 20 * * *",
			Retention:       Duration(7 * 24 * time.Hour),
			MaxItems:        500,
			PerAccount:      10,
			TopN:            5,
			Window:          Duration(24 * time.Hour),
		},
		Farcaster: FarcasterConfig{BaseURL: "https://api.neynar.com/v2/farcaster"},
		Twitter:   TwitterConfig{BaseURL: "https://api.twitter.com/2"},
		API:       APIConfig{RPS: 2, Burst: 10, MaxRetries: 3, Timeout: Duration(15 * time.Second)},
	}
}

// Location resolves the configured time zone, falling back to the process
// zone when it is empty or unknown.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// Load reads YAML config from path over the defaults, then applies the
// environment. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
