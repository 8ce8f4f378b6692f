package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/rewatch/pkg/ledger"
	"github.com/elonfeng/rewatch/pkg/policy"
	"github.com/elonfeng/rewatch/pkg/scoring"
	"github.com/elonfeng/rewatch/pkg/source"
	"github.com/elonfeng/rewatch/pkg/sport"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Sports   SportsConfig   `yaml:"sports"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Source   SourceConfig   `yaml:"source"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Redis    RedisConfig    `yaml:"redis"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// ScheduleConfig configures the polling loop and the game-day clock.
type ScheduleConfig struct {
	PollInterval string `yaml:"poll_interval"`
	Timezone     string `yaml:"timezone" validate:"required"`
	// Before this local hour the game day is still yesterday.
	DayRolloverHour int `yaml:"day_rollover_hour" validate:"gte=0,lte=23"`
}

// ParsePollInterval returns the poll interval as time.Duration.
func (s ScheduleConfig) ParsePollInterval() time.Duration {
	d, err := time.ParseDuration(s.PollInterval)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// Location loads the game-day timezone.
func (s ScheduleConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// SportsConfig selects leagues and tunes how they are scored and posted.
type SportsConfig struct {
	Enabled  []string                 `yaml:"enabled" validate:"min=1,dive,required"`
	Policies map[string]PolicyConfig  `yaml:"policies" validate:"dive"`
	Curves   map[string]scoring.Curve `yaml:"curves"`
	// EIScale multiplies the raw index before curve lookup.
	EIScale float64 `yaml:"ei_scale" validate:"gt=0"`
}

// PolicyConfig overrides the posting rule of one league.
type PolicyConfig struct {
	// Threshold is nil when the league keeps the default; an explicit 0
	// surfaces every scored game.
	Threshold *int   `yaml:"threshold" validate:"omitempty,gte=0,lte=100"`
	Mode      string `yaml:"mode"`
}

// LedgerConfig configures duplicate suppression.
type LedgerConfig struct {
	Backend   string `yaml:"backend" validate:"oneof=file sqlite redis"`
	Path      string `yaml:"path"`
	Retention string `yaml:"retention"`
}

// ParseRetention returns the retention window as time.Duration.
func (l LedgerConfig) ParseRetention() time.Duration {
	d, err := time.ParseDuration(l.Retention)
	if err != nil || d <= 0 {
		return ledger.DefaultRetention
	}
	return d
}

// SourceConfig holds configuration for the data sources.
type SourceConfig struct {
	ESPN   ESPNConfig   `yaml:"espn"`
	PreCap PreCapConfig `yaml:"precap"`
}

// ESPNConfig configures the scoreboard and win-probability client.
type ESPNConfig struct {
	BaseURL          string   `yaml:"base_url" validate:"required,url"`
	Timeout          string   `yaml:"timeout"`
	NationalNetworks []string `yaml:"national_networks"`
	RetryAttempts    int      `yaml:"retry_attempts" validate:"gte=1,lte=10"`
	RetryDelay       string   `yaml:"retry_delay"`
	Concurrency      int      `yaml:"concurrency" validate:"gte=1,lte=64"`
}

// ParseTimeout returns the per-request timeout.
func (e ESPNConfig) ParseTimeout() time.Duration {
	return parseDuration(e.Timeout, 8*time.Second)
}

// RetryPolicy returns the backoff policy for win-probability fetches.
func (e ESPNConfig) RetryPolicy() source.RetryPolicy {
	p := source.DefaultRetryPolicy()
	p.Attempts = e.RetryAttempts
	p.Delay = parseDuration(e.RetryDelay, p.Delay)
	return p
}

// PreCapConfig configures the PreCap caption annotation.
type PreCapConfig struct {
	Enabled  bool              `yaml:"enabled"`
	URLs     map[string]string `yaml:"urls"`
	CacheTTL string            `yaml:"cache_ttl"`
}

// ParseCacheTTL returns the PreCap cache lifetime.
func (p PreCapConfig) ParseCacheTTL() time.Duration {
	return parseDuration(p.CacheTTL, 30*time.Minute)
}

// AlertsConfig configures publish destinations.
type AlertsConfig struct {
	Console  ConsoleConfig  `yaml:"console"`
	Slack    SlackConfig    `yaml:"slack"`
	Discord  DiscordConfig  `yaml:"discord"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Mastodon MastodonConfig `yaml:"mastodon"`
	Stream   StreamConfig   `yaml:"stream"`
}

// ConsoleConfig prints captions to stdout.
type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url" validate:"required_if=Enabled true"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url" validate:"required_if=Enabled true"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url" validate:"required_if=Enabled true"`
	Secret  string `yaml:"secret"`
}

// MastodonConfig posts captions as statuses.
type MastodonConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Server      string `yaml:"server" validate:"required_if=Enabled true"`
	AccessToken string `yaml:"access_token" validate:"required_if=Enabled true"`
	Visibility  string `yaml:"visibility" validate:"omitempty,oneof=public unlisted private direct"`
}

// StreamConfig appends published games to a Redis stream.
type StreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
}

// RedisConfig is shared by the Redis ledger and the stream notifier.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=1,lte=65535"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./rewatch.db"},
		Schedule: ScheduleConfig{
			PollInterval:    "60s",
			Timezone:        "America/Los_Angeles",
			DayRolloverHour: 6,
		},
		Sports: SportsConfig{
			Enabled: []string{string(sport.NBA)},
			EIScale: 1,
		},
		Ledger: LedgerConfig{
			Backend:   "file",
			Path:      "./posted_ledger.json",
			Retention: "168h",
		},
		Source: SourceConfig{
			ESPN: ESPNConfig{
				BaseURL:          source.DefaultESPNBaseURL,
				Timeout:          "8s",
				NationalNetworks: source.DefaultNationalNetworks,
				RetryAttempts:    4,
				RetryDelay:       "5s",
				Concurrency:      4,
			},
			PreCap: PreCapConfig{
				Enabled:  true,
				CacheTTL: "30m",
			},
		},
		Alerts: AlertsConfig{
			Console: ConsoleConfig{Enabled: true},
			Stream:  StreamConfig{Name: "rewatch.published"},
		},
		Redis:  RedisConfig{URL: "redis://localhost:6379/0"},
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads an optional .env file, then the YAML file, then env var
// overrides, and validates the result. Curves and posting rules are checked
// here so a bad calibration stops the process before it scores anything.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and the domain settings that validator
// tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.Schedule.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Schedule.Timezone, err)
	}
	if _, err := c.EnabledSports(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Engine(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Ledger.Backend == "file" && c.Ledger.Path == "" {
		return fmt.Errorf("%w: ledger.path is required for the file backend", ErrInvalidConfig)
	}
	return nil
}

// EnabledSports resolves the enabled league keys, dropping duplicates.
func (c *Config) EnabledSports() ([]sport.Sport, error) {
	seen := make(map[sport.Sport]bool)
	var out []sport.Sport
	for _, key := range c.Sports.Enabled {
		s, err := sport.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("sports.enabled: %w", err)
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}

// Engine builds the scoring engine: the compiled curves with any configured
// anchor overrides applied.
func (c *Config) Engine() (*scoring.Engine, error) {
	overrides := make(map[sport.Sport]scoring.Curve, len(c.Sports.Curves))
	for key, curve := range c.Sports.Curves {
		s, err := sport.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("sports.curves: %w", err)
		}
		overrides[s] = curve
	}
	return scoring.NewEngine(scoring.WithOverrides(overrides))
}

// Policy builds the posting policy with per-league overrides.
func (c *Config) Policy() (*policy.Policy, error) {
	p := policy.New(nil)
	for key, pc := range c.Sports.Policies {
		s, err := sport.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("sports.policies: %w", err)
		}
		rule := p.Rule(s)
		if pc.Threshold != nil {
			rule.Threshold = *pc.Threshold
		}
		if pc.Mode != "" {
			mode, err := policy.ParseMode(pc.Mode)
			if err != nil {
				return nil, fmt.Errorf("sports.policies.%s: %w", key, err)
			}
			rule.Mode = mode
		}
		p.SetRule(s, rule)
	}
	return p, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REWATCH_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("REWATCH_POLL_INTERVAL"); v != "" {
		cfg.Schedule.PollInterval = v
	}
	if v := os.Getenv("REWATCH_POLL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Schedule.PollInterval = (time.Duration(n) * time.Second).String()
		}
	}
	if v := os.Getenv("REWATCH_TIMEZONE"); v != "" {
		cfg.Schedule.Timezone = v
	}
	if v := os.Getenv("REWATCH_SPORTS"); v != "" {
		cfg.Sports.Enabled = splitList(v)
	}
	if v := os.Getenv("REWATCH_LEDGER_BACKEND"); v != "" {
		cfg.Ledger.Backend = v
	}
	if v := os.Getenv("REWATCH_LEDGER_PATH"); v != "" {
		cfg.Ledger.Path = v
	}
	if v := os.Getenv("REWATCH_LEDGER_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Ledger.Retention = (time.Duration(n) * 24 * time.Hour).String()
		}
	}
	if v := os.Getenv("REWATCH_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("REWATCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("MASTODON_ACCESS_TOKEN"); v != "" {
		cfg.Alerts.Mastodon.AccessToken = v
		cfg.Alerts.Mastodon.Enabled = true
	}
	if v := os.Getenv("MASTODON_SERVER"); v != "" {
		cfg.Alerts.Mastodon.Server = v
	}
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
