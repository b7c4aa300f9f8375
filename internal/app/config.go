package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the PersonaInsights backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Email       EmailConfig       `mapstructure:"email"`
	Invitations InvitationConfig  `mapstructure:"invitations"`
	Teams       TeamConfig        `mapstructure:"teams"`
	Sharing     SharingConfig     `mapstructure:"sharing"`
	Analytics   AnalyticsConfig   `mapstructure:"analytics"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	LogLevel  string          `mapstructure:"log_level"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds request volume per client IP and path.
type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// DatabaseConfig selects a driver and its connection parameters.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig carries host, credentials, and extra driver options.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig configures the optional Redis backend.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig gates the health and metrics endpoints.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig exposes the scrape endpoint when enabled.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig gates the liveness endpoint.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig groups authentication settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings shapes issued access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// EmailConfig groups outbound mail settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig configures the SMTP dialer used for invitation mail.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// InvitationConfig controls invitation tokens and links.
type InvitationConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Expiry      time.Duration `mapstructure:"expiry"`
	TokenLength int           `mapstructure:"token_length"`
}

// TeamConfig controls membership limits.
type TeamConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// SharingConfig controls the sharing preferences seeded when a member joins a team.
type SharingConfig struct {
	DefaultVisible bool `mapstructure:"default_visible"`
}

// AnalyticsConfig controls cached team aggregates.
type AnalyticsConfig struct {
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// MaintenanceConfig controls the background cleanup schedule.
type MaintenanceConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	Schedule              string        `mapstructure:"schedule"`
	ResolvedRetention     time.Duration `mapstructure:"resolved_retention"`
	ExpiredRetention      time.Duration `mapstructure:"expired_retention"`
	NotificationRetention time.Duration `mapstructure:"notification_retention"`
}

// LoadConfig reads configuration from yaml files and PERSONAINSIGHTS_ environment
// variables, applying defaults for anything unset.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("PERSONAINSIGHTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.rate_limit.max_requests", 100)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/personainsights.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("auth.jwt.issuer", "personainsights")
	v.SetDefault("auth.jwt.access_token_ttl", "30m")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("invitations.base_url", "http://localhost:8000")
	v.SetDefault("invitations.expiry", "168h") // 7 days
	v.SetDefault("invitations.token_length", 32)

	v.SetDefault("teams.capacity", 10)

	v.SetDefault("sharing.default_visible", false)

	v.SetDefault("analytics.cache_ttl", "5m")
	v.SetDefault("analytics.settle_delay", "2s")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", "@hourly")
	v.SetDefault("maintenance.resolved_retention", "2160h")     // 90 days
	v.SetDefault("maintenance.expired_retention", "720h")       // 30 days
	v.SetDefault("maintenance.notification_retention", "1440h") // 60 days
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
