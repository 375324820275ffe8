// Package config loads the agent configuration from a JSON file with DRAGON_*
// environment overrides. Every tunable has a default; a missing config file is
// not an error, a malformed one is.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the engagement agent.
type Config struct {
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Freshness FreshnessConfig `mapstructure:"freshness"`
	Plan      PlanConfig      `mapstructure:"plan"`
	Engage    EngageConfig    `mapstructure:"engage"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Inbound   InboundConfig   `mapstructure:"inbound"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// RuntimeConfig locates the runtime directory holding state, queue and ledger.
type RuntimeConfig struct {
	Dir string `mapstructure:"dir"`
}

// FreshnessConfig controls the execution gate over external status data.
type FreshnessConfig struct {
	StatusFile string        `mapstructure:"status_file"`
	Limit      time.Duration `mapstructure:"limit"`
	RequireOK  bool          `mapstructure:"require_ok"`
}

// PlanConfig holds planner cadence and throttling settings.
type PlanConfig struct {
	DailyPostCooldown    time.Duration `mapstructure:"daily_post_cooldown"`
	MaxRepliesPerRun     int           `mapstructure:"max_replies_per_run"`
	MaxInitiationsPerRun int           `mapstructure:"max_initiations_per_run"`
	MinFollowerCount     int           `mapstructure:"min_follower_count"`
	ConversationCap      int           `mapstructure:"conversation_cap"`
	ConversationCooldown time.Duration `mapstructure:"conversation_cooldown"`
	ConversationTTL      time.Duration `mapstructure:"conversation_ttl"`
	RepliedTTL           time.Duration `mapstructure:"replied_ttl"`
}

// EngageConfig holds outbox execution settings.
type EngageConfig struct {
	MaxPerRun int           `mapstructure:"max_per_run"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// RateLimitConfig holds the per-channel sliding window settings.
type RateLimitConfig struct {
	Window       time.Duration `mapstructure:"window"`
	MaxPerWindow int           `mapstructure:"max_per_window"`
}

// InboundConfig controls the mention and search fetch.
type InboundConfig struct {
	MaxMentions      int               `mapstructure:"max_mentions"`
	MaxSearchResults int               `mapstructure:"max_search_results"`
	SearchQueries    map[string]string `mapstructure:"search_queries"`
}

// ChannelsConfig holds the per-channel client settings.
type ChannelsConfig struct {
	X        XChannelConfig        `mapstructure:"x"`
	Moltbook MoltbookChannelConfig `mapstructure:"moltbook"`
}

// XChannelConfig configures the X API client.
type XChannelConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// MoltbookChannelConfig configures the Moltbook API client.
type MoltbookChannelConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	AppKey  string        `mapstructure:"app_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// SchedulerConfig configures the watch loop cadence.
type SchedulerConfig struct {
	Cron string `mapstructure:"cron"`
}

// TelemetryConfig toggles metric collection.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Normalize applies defaults for unset values.
func (c *Config) Normalize() {
	if c.Runtime.Dir == "" {
		c.Runtime.Dir = "runtime"
	}
	if c.Freshness.Limit <= 0 {
		c.Freshness.Limit = 180 * time.Second
	}
	if c.Engage.MaxPerRun <= 0 {
		c.Engage.MaxPerRun = 4
	}
	if c.Engage.Cooldown <= 0 {
		c.Engage.Cooldown = 30 * time.Second
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = 300 * time.Second
	}
	if c.RateLimit.MaxPerWindow <= 0 {
		c.RateLimit.MaxPerWindow = 5
	}
	if c.Inbound.MaxMentions <= 0 {
		c.Inbound.MaxMentions = 10
	}
	if c.Inbound.MaxSearchResults <= 0 {
		c.Inbound.MaxSearchResults = 10
	}
	if c.Server.Address == "" {
		c.Server.Address = ":10010"
	}
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = "@hourly"
	}
}

// Validate checks for settings that cannot be defaulted away.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Runtime.Dir) == "" {
		return fmt.Errorf("runtime.dir is required")
	}
	if c.Engage.MaxPerRun < 1 {
		return fmt.Errorf("engage.max_per_run must be at least 1")
	}
	for label, query := range c.Inbound.SearchQueries {
		if strings.TrimSpace(label) == "" || strings.TrimSpace(query) == "" {
			return fmt.Errorf("inbound.search_queries entries need a label and a query")
		}
	}
	return nil
}

// LoadConfig reads configuration from path (or the default search locations
// when path is empty), applies DRAGON_* env overrides, then normalizes and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("dragon")
	v.SetConfigType("json")

	v.SetDefault("runtime.dir", "runtime")
	v.SetDefault("freshness.status_file", "")
	v.SetDefault("freshness.limit", "180s")
	v.SetDefault("freshness.require_ok", true)
	v.SetDefault("plan.daily_post_cooldown", "24h")
	v.SetDefault("plan.max_replies_per_run", 3)
	v.SetDefault("plan.max_initiations_per_run", 2)
	v.SetDefault("plan.min_follower_count", 25)
	v.SetDefault("plan.conversation_cap", 2)
	v.SetDefault("plan.conversation_cooldown", "2h")
	v.SetDefault("plan.conversation_ttl", "48h")
	v.SetDefault("plan.replied_ttl", "168h")
	v.SetDefault("engage.max_per_run", 4)
	v.SetDefault("engage.cooldown", "30s")
	v.SetDefault("ratelimit.window", "300s")
	v.SetDefault("ratelimit.max_per_window", 5)
	v.SetDefault("inbound.max_mentions", 10)
	v.SetDefault("inbound.max_search_results", 10)
	v.SetDefault("channels.x.base_url", "https://api.x.com")
	v.SetDefault("channels.x.timeout", "20s")
	v.SetDefault("channels.moltbook.base_url", "https://moltbook.com")
	v.SetDefault("channels.moltbook.timeout", "20s")
	v.SetDefault("server.address", ":10010")
	v.SetDefault("scheduler.cron", "@hourly")
	v.SetDefault("telemetry.enabled", true)

	if path == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("DRAGON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
