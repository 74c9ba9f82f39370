package config

import (
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Server.APIKey = "svc_key"
	cfg.Auth.JWTSecret = "jwt_secret"
	cfg.Stripe.SecretKey = "sk_test_123"
	cfg.Stripe.WebhookSecret = "whsec_123"
	return cfg
}

func TestDefaultsValidateWithSecrets(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestWorkerModeSkipsServerSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "worker"
	require.NoError(t, cfg.Validate())
}

func TestServerModeRequiresSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "api_key")
	require.Contains(t, err.Error(), "jwt_secret")
	require.Contains(t, err.Error(), "stripe: secret_key")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Redis.Addr = ""
	cfg.Fees.AuctionPercent = 250
	cfg.Payout.RunHourUTC = 99

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, "unknown mode")
	require.Contains(t, msg, "log_level")
	require.Contains(t, msg, "redis: addr")
	require.Contains(t, msg, "auction_percent")
	require.Contains(t, msg, "run_hour_utc")
}

func TestDurationTOML(t *testing.T) {
	var cfg Config
	_, err := toml.Decode("[auth]\ntoken_ttl = \"36h\"\n\n[payout]\nvideo_token_ttl = \"48h\"\n", &cfg)
	require.NoError(t, err)
	require.Equal(t, 36*time.Hour, cfg.Auth.TokenTTL.Duration)
	require.Equal(t, 48*time.Hour, cfg.Payout.VideoTokenTTL.Duration)

	out, err := duration{90 * time.Second}.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "1m30s", string(out))
}

func TestPayoutWeekday(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, time.Monday, cfg.PayoutWeekday())

	cfg.Payout.Weekday = "Friday"
	require.Equal(t, time.Friday, cfg.PayoutWeekday())

	cfg.Payout.Weekday = "???"
	require.Equal(t, time.Monday, cfg.PayoutWeekday())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DECODE_MODE", "server")
	t.Setenv("DECODE_SERVER_PORT", "9100")
	t.Setenv("DECODE_RATES_USD_AED_PEG", "3.6730")
	t.Setenv("DECODE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DECODE_AUTH_TOKEN_TTL", "12h")
	t.Setenv("DECODE_POSTGRES_RUN_MIGRATIONS", "false")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	require.Equal(t, "server", cfg.Mode)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, 3.6730, cfg.Rates.USDAEDPeg)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL.Duration)
	require.False(t, cfg.Postgres.RunMigrations)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "dbpass"
	cfg.Notify.TelegramToken = "123:abc"

	red := RedactedConfig(&cfg)
	require.Equal(t, "***", red.Auth.JWTSecret)
	require.Equal(t, "***", red.Stripe.SecretKey)
	require.Equal(t, "***", red.Postgres.Password)
	require.Equal(t, "***", red.Notify.TelegramToken)

	// Empty secrets stay empty rather than gaining a placeholder.
	require.Equal(t, "", red.Treasury.PrivateKey)

	// The original is untouched and the slice copies are independent.
	require.Equal(t, "sk_test_123", cfg.Stripe.SecretKey)
	red.Server.CORSOrigins[0] = "mutated"
	require.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
