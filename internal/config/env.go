package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"herald/internal/logging"
)

// LoadDotEnv loads .env files from the working directory, if present.
// Variables already in the process environment win.
func LoadDotEnv() {
	var loaded []string
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			logging.Warn("dotenv_load_failed", logging.Fields{"file": file, "error": err.Error()})
			continue
		}
		loaded = append(loaded, file)
	}
	if len(loaded) > 0 {
		logging.Debug("dotenv_loaded", logging.Fields{"files": strings.Join(loaded, ",")})
	}
}

// ResolveEnv fills in config fields from environment variables. Credentials
// are only taken from the environment when not set in the file; tuning
// variables always override.
func (c *Config) ResolveEnv() {
	setIfEmpty(&c.Farcaster.APIKey, "NEYNAR_API_KEY")
	setIfEmpty(&c.Farcaster.SignerUUID, "NEYNAR_SIGNER_UUID")
	// Older deployments pass the signer uuid as FID.
	setIfEmpty(&c.Farcaster.SignerUUID, "FID")
	setIfEmpty(&c.Twitter.BearerToken, "X_BEARER_TOKEN")
	setIfEmpty(&c.Twitter.ConsumerKey, "TWITTER_APP_KEY")
	setIfEmpty(&c.Twitter.ConsumerSecret, "TWITTER_APP_SECRET")
	setIfEmpty(&c.Twitter.AccessToken, "TWITTER_ACCESS_TOKEN")
	setIfEmpty(&c.Twitter.AccessSecret, "TWITTER_ACCESS_SECRET")
	setIfEmpty(&c.Twitter.UserID, "TWITTER_USER_ID")

	if v := os.Getenv("BOT_PLATFORM"); v != "" {
		c.Platform = strings.ToLower(v)
	}
	if v := os.Getenv("BOT_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if h := getEnvInt("ENGAGE_LOOKBACK_HOURS", 0); h > 0 {
		c.Engagement.Lookback = Duration(time.Duration(h) * time.Hour)
	}
	if v, ok := lookupInt("ENGAGE_MAX_ACTIONS"); ok && v >= 0 {
		c.Engagement.MaxActionsPerRun = v
	}
	if n := getEnvInt("ENGAGE_PAGE_SIZE", 0); n > 0 {
		c.Engagement.PageSize = n
	}
	if v, ok := lookupInt("ENGAGE_DELAY_MS"); ok && v >= 0 {
		c.Engagement.ActionDelay = Duration(time.Duration(v) * time.Millisecond)
	}
	if v := os.Getenv("INSIGHTS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Insights.Enabled = b
		}
	}
	if v := os.Getenv("INSIGHTS_CRON"); v != "" {
		c.Insights.DigestSchedule = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("HERALD_API_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.API.RPS = f
		}
	}
	if n := getEnvInt("HERALD_API_BURST", 0); n > 0 {
		c.API.Burst = n
	}
	if v, ok := lookupInt("HERALD_API_MAX_RETRIES"); ok && v >= 0 {
		c.API.MaxRetries = v
	}
}

// WriteEnabled reports whether credentials for publishing and reacting on
// the configured platform are present.
func (c Config) WriteEnabled() bool {
	switch c.Platform {
	case "twitter":
		t := c.Twitter
		return t.ConsumerKey != "" && t.ConsumerSecret != "" && t.AccessToken != "" && t.AccessSecret != ""
	default:
		return c.Farcaster.APIKey != "" && c.Farcaster.SignerUUID != ""
	}
}

func setIfEmpty(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

func getEnvInt(key string, def int) int {
	if v, ok := lookupInt(key); ok && v > 0 {
		return v
	}
	return def
}

func lookupInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}
