package app

import (
	"strings"

	"github.com/personainsights/server/internal/auth"
	"github.com/personainsights/server/internal/cache"
	"github.com/personainsights/server/internal/database"
	"github.com/personainsights/server/internal/services"
	"github.com/personainsights/server/pkg/mail"
)

// Connection converts DatabaseConfig into the parameters expected by database.Open.
func (c DatabaseConfig) Connection() database.Config {
	cfg := database.Config{
		Driver: c.Driver,
		Path:   c.Path,
		DSN:    c.DSN,
	}

	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "postgres", "postgresql":
		cfg.Host = c.Postgres.Host
		cfg.Port = c.Postgres.Port
		cfg.Name = c.Postgres.Database
		cfg.User = c.Postgres.Username
		cfg.Password = c.Postgres.Password
	case "mysql":
		cfg.Host = c.MySQL.Host
		cfg.Port = c.MySQL.Port
		cfg.Name = c.MySQL.Database
		cfg.User = c.MySQL.Username
		cfg.Password = c.MySQL.Password
	}

	return cfg
}

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// RedisConfig converts RedisCacheConfig into the cache client parameters.
func (c RedisCacheConfig) RedisConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  c.Address,
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
		TLS:      c.TLS,
		Timeout:  c.Timeout,
	}
}

// SMTPSettings converts SMTPConfig into mailer parameters.
func (c SMTPConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.Enabled,
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
		UseTLS:   c.UseTLS,
		Timeout:  c.Timeout,
	}
}

// InvitationOptions converts InvitationConfig and SharingConfig into service options.
func (c InvitationConfig) InvitationOptions(sharing SharingConfig) []services.InvitationOption {
	opts := []services.InvitationOption{
		services.WithSharingDefault(sharing.DefaultVisible),
	}
	if strings.TrimSpace(c.BaseURL) != "" {
		opts = append(opts, services.WithInvitationBaseURL(c.BaseURL))
	}
	if c.Expiry > 0 {
		opts = append(opts, services.WithInvitationExpiry(c.Expiry))
	}
	if c.TokenLength > 0 {
		opts = append(opts, services.WithInvitationTokenSize(c.TokenLength))
	}
	return opts
}

// AnalyticsOptions converts AnalyticsConfig into service options.
func (c AnalyticsConfig) AnalyticsOptions() []services.AnalyticsOption {
	var opts []services.AnalyticsOption
	if c.CacheTTL > 0 {
		opts = append(opts, services.WithAnalyticsTTL(c.CacheTTL))
	}
	if c.SettleDelay > 0 {
		opts = append(opts, services.WithAnalyticsSettleDelay(c.SettleDelay))
	}
	return opts
}
