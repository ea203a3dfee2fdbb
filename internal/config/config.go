// Package config defines the top-level configuration for the quickbets
// settlement service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by QUICKBETS_* environment variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Oracle   OracleConfig   `toml:"oracle"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Crank    CrankConfig    `toml:"crank"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig holds the tunable market parameters and the privileged
// identities. These seed the persistent market state on first boot; once the
// state exists, changes go through the config operation, not this file.
type MarketConfig struct {
	BettingFeeBps   uint64  `toml:"betting_fee_bps"`
	MaxHouseMatch   uint64  `toml:"max_house_match"`
	MaxHouseBetSize uint64  `toml:"max_house_bet_size"`
	MinMultiplier   float64 `toml:"min_multiplier"`

	// Phase durations in seconds.
	BettingPeriod      uint64 `toml:"betting_period"`
	AnticipationPeriod uint64 `toml:"anticipation_period"`

	MaxUserBet uint64 `toml:"max_user_bet"`

	Owner        string `toml:"owner"`
	CrankAdmin   string `toml:"crank_admin"`
	HouseAccount string `toml:"house_account"`
	Paused       bool   `toml:"paused"`
}

// Params converts the seed values into the domain parameter set.
func (m MarketConfig) Params() domain.MarketParams {
	return domain.MarketParams{
		BettingFeeBps:      m.BettingFeeBps,
		MaxHouseMatch:      m.MaxHouseMatch,
		MaxHouseBetSize:    m.MaxHouseBetSize,
		MinMultiplier:      m.MinMultiplier,
		BettingPeriod:      m.BettingPeriod,
		AnticipationPeriod: m.AnticipationPeriod,
		MaxUserBet:         m.MaxUserBet,
		CrankAdmin:         m.CrankAdmin,
		Paused:             m.Paused,
	}
}

// OracleConfig holds the Pyth Hermes feed endpoint and the two price feed
// identities the market trades on.
type OracleConfig struct {
	HermesWsURL string   `toml:"hermes_ws_url"`
	SolFeedID   string   `toml:"sol_feed_id"`
	EthFeedID   string   `toml:"eth_feed_id"`
	Staleness   duration `toml:"staleness"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the closed-round
// archive. Archiving is optional; when disabled no client is created.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// CrankConfig holds the phase-transition driver parameters.
type CrankConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`

	// RequestsPerSecond rate-limits each client IP; 0 disables limiting.
	RequestsPerSecond int `toml:"requests_per_second"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "10m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "10m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			BettingFeeBps:      100,
			MaxHouseMatch:      100_000_000,
			MaxHouseBetSize:    500_000_000,
			MinMultiplier:      1.5,
			BettingPeriod:      60,
			AnticipationPeriod: 60,
			MaxUserBet:         1_000_000_000,
			Owner:              "",
			CrankAdmin:         "",
			HouseAccount:       "house",
		},
		Oracle: OracleConfig{
			HermesWsURL: "wss://hermes.pyth.network/ws",
			SolFeedID:   "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d",
			EthFeedID:   "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
			Staleness:   duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "quickbets",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "quickbets-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Crank: CrankConfig{
			Enabled:  true,
			Interval: duration{time.Second},
		},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000", "http://localhost:5173"},
			RequestsPerSecond: 20,
		},
		Notify: NotifyConfig{
			Events: []string{"opened", "resolved", "closed", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"crank": true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// hexFeedID reports whether s looks like a 32-byte hex feed identity, with or
// without a 0x prefix.
func hexFeedID(s string) bool {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, crank, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market
	if c.Market.BettingFeeBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("market: betting_fee_bps must be below 10000, got %d", c.Market.BettingFeeBps))
	}
	if c.Market.MinMultiplier < 1.0 {
		errs = append(errs, fmt.Sprintf("market: min_multiplier must be >= 1.0, got %g", c.Market.MinMultiplier))
	}
	if c.Market.BettingPeriod == 0 {
		errs = append(errs, "market: betting_period must be > 0")
	}
	if c.Market.AnticipationPeriod == 0 {
		errs = append(errs, "market: anticipation_period must be > 0")
	}
	if c.Market.MaxUserBet == 0 {
		errs = append(errs, "market: max_user_bet must be > 0")
	}
	if c.Market.Owner == "" {
		errs = append(errs, "market: owner must not be empty")
	}
	if c.Market.CrankAdmin == "" {
		errs = append(errs, "market: crank_admin must not be empty")
	}
	if c.Market.HouseAccount == "" {
		errs = append(errs, "market: house_account must not be empty")
	}

	// Oracle
	if c.Oracle.HermesWsURL == "" {
		errs = append(errs, "oracle: hermes_ws_url must not be empty")
	}
	if !hexFeedID(c.Oracle.SolFeedID) {
		errs = append(errs, "oracle: sol_feed_id must be a 64-char hex feed identity")
	}
	if !hexFeedID(c.Oracle.EthFeedID) {
		errs = append(errs, "oracle: eth_feed_id must be a 64-char hex feed identity")
	}
	if c.Oracle.SolFeedID == c.Oracle.EthFeedID {
		errs = append(errs, "oracle: sol_feed_id and eth_feed_id must differ")
	}
	if c.Oracle.Staleness.Duration <= 0 {
		errs = append(errs, "oracle: staleness must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	// Crank
	if c.Crank.Enabled && c.Crank.Interval.Duration <= 0 {
		errs = append(errs, "crank: interval must be > 0 when enabled")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RequestsPerSecond < 0 {
			errs = append(errs, "server: requests_per_second must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
