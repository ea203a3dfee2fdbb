package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies QUICKBETS_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known QUICKBETS_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setUint64(&cfg.Market.BettingFeeBps, "QUICKBETS_MARKET_BETTING_FEE_BPS")
	setUint64(&cfg.Market.MaxHouseMatch, "QUICKBETS_MARKET_MAX_HOUSE_MATCH")
	setUint64(&cfg.Market.MaxHouseBetSize, "QUICKBETS_MARKET_MAX_HOUSE_BET_SIZE")
	setFloat64(&cfg.Market.MinMultiplier, "QUICKBETS_MARKET_MIN_MULTIPLIER")
	setUint64(&cfg.Market.BettingPeriod, "QUICKBETS_MARKET_BETTING_PERIOD")
	setUint64(&cfg.Market.AnticipationPeriod, "QUICKBETS_MARKET_ANTICIPATION_PERIOD")
	setUint64(&cfg.Market.MaxUserBet, "QUICKBETS_MARKET_MAX_USER_BET")
	setStr(&cfg.Market.Owner, "QUICKBETS_MARKET_OWNER")
	setStr(&cfg.Market.CrankAdmin, "QUICKBETS_MARKET_CRANK_ADMIN")
	setStr(&cfg.Market.HouseAccount, "QUICKBETS_MARKET_HOUSE_ACCOUNT")
	setBool(&cfg.Market.Paused, "QUICKBETS_MARKET_PAUSED")

	// ── Oracle ──
	setStr(&cfg.Oracle.HermesWsURL, "QUICKBETS_ORACLE_HERMES_WS_URL")
	setStr(&cfg.Oracle.SolFeedID, "QUICKBETS_ORACLE_SOL_FEED_ID")
	setStr(&cfg.Oracle.EthFeedID, "QUICKBETS_ORACLE_ETH_FEED_ID")
	setDuration(&cfg.Oracle.Staleness, "QUICKBETS_ORACLE_STALENESS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "QUICKBETS_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "QUICKBETS_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "QUICKBETS_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "QUICKBETS_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "QUICKBETS_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "QUICKBETS_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "QUICKBETS_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "QUICKBETS_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "QUICKBETS_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "QUICKBETS_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "QUICKBETS_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "QUICKBETS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "QUICKBETS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "QUICKBETS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "QUICKBETS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "QUICKBETS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "QUICKBETS_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "QUICKBETS_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "QUICKBETS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "QUICKBETS_S3_REGION")
	setStr(&cfg.S3.Bucket, "QUICKBETS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "QUICKBETS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "QUICKBETS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "QUICKBETS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "QUICKBETS_S3_FORCE_PATH_STYLE")

	// ── Crank ──
	setBool(&cfg.Crank.Enabled, "QUICKBETS_CRANK_ENABLED")
	setDuration(&cfg.Crank.Interval, "QUICKBETS_CRANK_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "QUICKBETS_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "QUICKBETS_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "QUICKBETS_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "QUICKBETS_SERVER_API_KEY")
	setInt(&cfg.Server.RequestsPerSecond, "QUICKBETS_SERVER_REQUESTS_PER_SECOND")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "QUICKBETS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "QUICKBETS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "QUICKBETS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "QUICKBETS_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "QUICKBETS_MODE")
	setStr(&cfg.LogLevel, "QUICKBETS_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
