// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	Addr string `env:"PD_ADDR" envDefault:":8787"`
	Env  string `env:"PD_ENV" envDefault:"development"`

	// Shared editor credential. The session secret signs the auth cookie;
	// the password (or its bcrypt hash, which wins when both are set) is
	// what editors type on the login page.
	SessionSecret      string `env:"PD_SESSION_SECRET"`
	EditorPassword     string `env:"PD_EDITOR_PASSWORD"`
	EditorPasswordHash string `env:"PD_EDITOR_PASSWORD_HASH"`

	CookieDomain string        `env:"PD_COOKIE_DOMAIN"`
	AuthTTL      time.Duration `env:"PD_AUTH_TTL" envDefault:"168h"`

	CORSOrigin string `env:"PD_CORS_ORIGIN" envDefault:"*"`

	// Login rate limit (token bucket per client IP).
	LoginRPS   float64 `env:"PD_LOGIN_RPS" envDefault:"1"`
	LoginBurst int     `env:"PD_LOGIN_BURST" envDefault:"5"`

	// Upstream feed endpoints. An empty URL disables the route.
	CampaignStatsURL string        `env:"PD_CAMPAIGN_STATS_URL"`
	AirQualityURL    string        `env:"PD_AIR_QUALITY_URL"`
	CO2URL           string        `env:"PD_CO2_URL"`
	LakeLevelURL     string        `env:"PD_LAKE_LEVEL_URL"`
	MeetingsURL      string        `env:"PD_MEETINGS_URL"`
	FeedTimeout      time.Duration `env:"PD_FEED_TIMEOUT" envDefault:"15s"`

	// AI text parsing.
	OpenAIKey   string `env:"OPENAI_API_KEY"`
	OpenAIModel string `env:"PD_OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// WordPress media upload.
	WordPressURL         string `env:"PD_WP_BASE_URL"`
	WordPressUser        string `env:"PD_WP_USER"`
	WordPressAppPassword string `env:"PD_WP_APP_PASSWORD"`

	// Key-value backend credentials, untagged: two naming conventions
	// are accepted, so these are resolved by hand after env.Parse.
	KVURL   string
	KVToken string
}

// Accepted names for the key-value backend credentials, first-present-wins.
// The UPSTASH_* pair is a compatibility shim for deployments configured for
// the hosted backend's own convention; it carries no other meaning.
var (
	kvURLNames   = []string{"PD_KV_URL", "UPSTASH_REDIS_URL"}
	kvTokenNames = []string{"PD_KV_TOKEN", "UPSTASH_REDIS_TOKEN"}
)

// Load parses environment variables and returns the service configuration.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.KVURL = firstEnv(kvURLNames)
	cfg.KVToken = firstEnv(kvTokenNames)
	return cfg, nil
}

// IsProduction reports whether the service runs in production mode, which
// controls the Secure flag on issued cookies.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// KVConfigured reports whether a key-value backend endpoint was resolved.
func (c Config) KVConfigured() bool {
	return c.KVURL != ""
}

func firstEnv(names []string) string {
	for _, name := range names {
		if value := os.Getenv(name); value != "" {
			return value
		}
	}
	return ""
}
