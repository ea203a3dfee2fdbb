package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Market.Owner = "owner"
	cfg.Market.CrankAdmin = "crank"
	return cfg
}

func TestDefaultsValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "backtest"
	cfg.Market.BettingFeeBps = 10_000
	cfg.Market.Owner = ""
	cfg.Oracle.SolFeedID = "not-hex"
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "betting_fee_bps")
	assert.Contains(t, err.Error(), "owner")
	assert.Contains(t, err.Error(), "sol_feed_id")
	assert.Contains(t, err.Error(), "redis: addr")
}

func TestValidateFeedIdentityChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Oracle.EthFeedID = cfg.Oracle.SolFeedID
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")

	cfg = validConfig()
	cfg.Oracle.SolFeedID = "0x" + cfg.Oracle.SolFeedID
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "crank"

[market]
owner = "owner"
crank_admin = "crank"
betting_period = 30

[oracle]
staleness = "5s"

[server]
port = 9000
`), 0o600))

	t.Setenv("QUICKBETS_SERVER_PORT", "9100")
	t.Setenv("QUICKBETS_POSTGRES_PASSWORD", "s3cret")
	t.Setenv("QUICKBETS_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "crank", cfg.Mode)
	assert.Equal(t, uint64(30), cfg.Market.BettingPeriod)
	// File value survives where no env override exists...
	assert.Equal(t, "5s", cfg.Oracle.Staleness.String())
	// ...and env wins over the file.
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Postgres.Password)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Crank.Enabled)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pgpass"
	cfg.Redis.Password = "redispass"
	cfg.S3.SecretKey = "s3secret"
	cfg.Server.APIKey = "apikey"
	cfg.Notify.TelegramToken = "tok"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Originals untouched.
	assert.Equal(t, "pgpass", cfg.Postgres.Password)

	// Non-secrets pass through.
	assert.Equal(t, cfg.Market.Owner, red.Market.Owner)
	assert.Equal(t, cfg.Redis.Addr, red.Redis.Addr)
}
