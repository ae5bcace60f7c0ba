// config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

type Config struct {
	Port           string   `env:"PORT" envDefault:"5200"`
	DatabaseURL    string   `env:"DATABASE_URL,required"`
	ServiceToken   string   `env:"GATEWAY_SERVICE_TOKEN,required"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// ManualOnlyMode skips the engagement fetch on submission and disables auto-monitoring.
	ManualOnlyMode bool `env:"MANUAL_ONLY_MODE" envDefault:"false"`

	Monitoring MonitoringConfig `envPrefix:"AUTO_MONITORING_"`
	Twitter    TwitterConfig    `envPrefix:"TWITTER_"`
	Scraper    ScraperConfig    `envPrefix:"SCRAPER_"`
	OEmbed     OEmbedConfig     `envPrefix:"OEMBED_"`
	Breaker    BreakerConfig    `envPrefix:"BREAKER_"`
	PrimaryAPI RateConfig       `envPrefix:"PRIMARY_RATE_"`
	Cache      CacheConfig      `envPrefix:"CACHE_"`
	Points     PointsConfig     `envPrefix:"POINTS_"`
	Keywords   KeywordConfig    `envPrefix:"KEYWORDS_"`
	Snapshot   SnapshotConfig   `envPrefix:"R2_"`
	Submission SubmissionConfig `envPrefix:"SUBMISSION_RATE_"`
}

type MonitoringConfig struct {
	Enabled   bool          `env:"ENABLED" envDefault:"false"`
	Interval  time.Duration `env:"INTERVAL" envDefault:"30m"`
	BatchSize int           `env:"BATCH_SIZE" envDefault:"25"`
	MaxAge    time.Duration `env:"MAX_AGE" envDefault:"168h"`
}

type TwitterConfig struct {
	BaseURL      string        `env:"API_BASE_URL" envDefault:"https://api.twitter.com"`
	BearerToken  string        `env:"BEARER_TOKEN"`
	ClientID     string        `env:"CLIENT_ID"`
	ClientSecret string        `env:"CLIENT_SECRET"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// Enabled reports whether any credential for the primary API is configured.
func (t TwitterConfig) Enabled() bool {
	return t.BearerToken != "" || (t.ClientID != "" && t.ClientSecret != "")
}

type ScraperConfig struct {
	URL                 string        `env:"URL"`
	Timeout             time.Duration `env:"TIMEOUT" envDefault:"15s"`
	ProfileSyncInterval time.Duration `env:"PROFILE_SYNC_INTERVAL" envDefault:"6h"`
}

type OEmbedConfig struct {
	URL     string        `env:"URL" envDefault:"https://publish.twitter.com/oembed"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `env:"FAILURE_THRESHOLD" envDefault:"3"`
	Cooldown         time.Duration `env:"COOLDOWN" envDefault:"30m"`
}

// RateConfig describes a token bucket: Requests tokens refilled evenly over Window.
type RateConfig struct {
	Requests int           `env:"REQUESTS" envDefault:"15"`
	Window   time.Duration `env:"WINDOW" envDefault:"15m"`
}

type CacheConfig struct {
	Enabled       bool          `env:"ENABLED" envDefault:"true"`
	EngagementTTL time.Duration `env:"ENGAGEMENT_TTL" envDefault:"1m"`
	ProfileTTL    time.Duration `env:"PROFILE_TTL" envDefault:"30m"`
}

type PointsConfig struct {
	Base    int64 `env:"BASE" envDefault:"5"`
	Like    int64 `env:"LIKE" envDefault:"1"`
	Retweet int64 `env:"RETWEET" envDefault:"3"`
	Reply   int64 `env:"REPLY" envDefault:"2"`
}

// KeywordConfig overrides the validator's built-in lists; empty lists keep the defaults.
type KeywordConfig struct {
	Required []string `env:"REQUIRED" envSeparator:"," envDefault:"@layeredge,$edgen"`
	Positive []string `env:"POSITIVE" envSeparator:","`
	Negative []string `env:"NEGATIVE" envSeparator:","`
	Scam     []string `env:"SCAM" envSeparator:","`
}

type SnapshotConfig struct {
	AccountID       string `env:"ACCOUNT_ID"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	AccessKeySecret string `env:"ACCESS_KEY_SECRET"`
	Bucket          string `env:"BUCKET_NAME"`
	CDNBaseURL      string `env:"CDN_BASE_URL"`
	Endpoint        string `env:"ENDPOINT"`
	Daily           bool   `env:"SNAPSHOT_SCHEDULE_ENABLED" envDefault:"false"`
}

func (s SnapshotConfig) Enabled() bool {
	return s.Bucket != "" && (s.AccountID != "" || s.Endpoint != "")
}

type SubmissionConfig struct {
	Max    int           `env:"MAX" envDefault:"10"`
	Window time.Duration `env:"WINDOW" envDefault:"1m"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, errors.New("BREAKER_FAILURE_THRESHOLD must be at least 1"))
	}
	if c.Breaker.Cooldown <= 0 {
		errs = append(errs, errors.New("BREAKER_COOLDOWN must be positive"))
	}
	if c.PrimaryAPI.Requests < 1 || c.PrimaryAPI.Window <= 0 {
		errs = append(errs, errors.New("PRIMARY_RATE_REQUESTS and PRIMARY_RATE_WINDOW must be positive"))
	}
	if c.Points.Base < 0 || c.Points.Like < 0 || c.Points.Retweet < 0 || c.Points.Reply < 0 {
		errs = append(errs, errors.New("POINTS_* weights must not be negative"))
	}
	if c.Monitoring.Enabled && c.Monitoring.Interval < time.Minute {
		errs = append(errs, errors.New("AUTO_MONITORING_INTERVAL must be at least 1m"))
	}
	if len(c.Keywords.Required) == 0 {
		errs = append(errs, errors.New("KEYWORDS_REQUIRED must list at least one mention"))
	}
	return errors.Join(errs...)
}

// AutoMonitoringActive is false whenever manual-only mode is on.
func (c *Config) AutoMonitoringActive() bool {
	return c.Monitoring.Enabled && !c.ManualOnlyMode
}
