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
// built-in defaults, applies DECODE_* environment variable overrides, and
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

// applyEnvOverrides reads well-known DECODE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setBool(&cfg.Server.Enabled, "DECODE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DECODE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DECODE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DECODE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMin, "DECODE_SERVER_RATE_LIMIT_PER_MIN")
	setInt(&cfg.Server.RateLimitBurst, "DECODE_SERVER_RATE_LIMIT_BURST")

	// ── Auth ──
	setStr(&cfg.Auth.JWTSecret, "DECODE_AUTH_JWT_SECRET")
	setStr(&cfg.Auth.Issuer, "DECODE_AUTH_ISSUER")
	setDuration(&cfg.Auth.TokenTTL, "DECODE_AUTH_TOKEN_TTL")
	setDuration(&cfg.Auth.OTPTTL, "DECODE_AUTH_OTP_TTL")
	setInt(&cfg.Auth.OTPMaxAttempts, "DECODE_AUTH_OTP_MAX_ATTEMPTS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DECODE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "DECODE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DECODE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DECODE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DECODE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DECODE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DECODE_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "DECODE_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "DECODE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DECODE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DECODE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DECODE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DECODE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DECODE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DECODE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DECODE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DECODE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "DECODE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DECODE_S3_REGION")
	setStr(&cfg.S3.Bucket, "DECODE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DECODE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DECODE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DECODE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DECODE_S3_FORCE_PATH_STYLE")

	// ── Stripe ──
	setStr(&cfg.Stripe.SecretKey, "DECODE_STRIPE_SECRET_KEY")
	setStr(&cfg.Stripe.SecretKey, "STRIPE_SECRET_KEY") // compatibility alias
	setStr(&cfg.Stripe.WebhookSecret, "DECODE_STRIPE_WEBHOOK_SECRET")
	setStr(&cfg.Stripe.ConnectWebhookSecret, "DECODE_STRIPE_CONNECT_WEBHOOK_SECRET")
	setStr(&cfg.Stripe.PlatformAccount, "DECODE_STRIPE_PLATFORM_ACCOUNT")
	setStr(&cfg.Stripe.BaseURL, "DECODE_STRIPE_BASE_URL")
	setDuration(&cfg.Stripe.SignatureTolerance, "DECODE_STRIPE_SIGNATURE_TOLERANCE")

	// ── Crossmint ──
	setStr(&cfg.Crossmint.APIKey, "DECODE_CROSSMINT_API_KEY")
	setStr(&cfg.Crossmint.WebhookSecret, "DECODE_CROSSMINT_WEBHOOK_SECRET")
	setStr(&cfg.Crossmint.Environment, "DECODE_CROSSMINT_ENVIRONMENT")
	setStr(&cfg.Crossmint.ProjectID, "DECODE_CROSSMINT_PROJECT_ID")
	setStr(&cfg.Crossmint.CollectionID, "DECODE_CROSSMINT_COLLECTION_ID")

	// ── Whatsapp ──
	setStr(&cfg.Whatsapp.Token, "DECODE_WHATSAPP_TOKEN")
	setStr(&cfg.Whatsapp.PhoneID, "DECODE_WHATSAPP_PHONE_ID")
	setStr(&cfg.Whatsapp.Template, "DECODE_WHATSAPP_TEMPLATE")
	setStr(&cfg.Whatsapp.BaseURL, "DECODE_WHATSAPP_BASE_URL")

	// ── Resend ──
	setStr(&cfg.Resend.APIKey, "DECODE_RESEND_API_KEY")
	setStr(&cfg.Resend.From, "DECODE_RESEND_FROM")

	// ── Treasury ──
	setStr(&cfg.Treasury.PrivateKey, "DECODE_TREASURY_PRIVATE_KEY")
	setStr(&cfg.Treasury.HotWalletAddress, "DECODE_TREASURY_HOT_WALLET_ADDRESS")
	setStr(&cfg.Treasury.EncryptedKeyPath, "DECODE_TREASURY_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Treasury.KeyPassword, "DECODE_TREASURY_KEY_PASSWORD")
	setInt(&cfg.Treasury.ChainID, "DECODE_TREASURY_CHAIN_ID")

	// ── Fees ──
	setFloat64(&cfg.Fees.PaymentIntentPercent, "DECODE_FEES_PAYMENT_INTENT_PERCENT")
	setFloat64(&cfg.Fees.CrossmintPercent, "DECODE_FEES_CROSSMINT_PERCENT")
	setFloat64(&cfg.Fees.CheckoutPercent, "DECODE_FEES_CHECKOUT_PERCENT")
	setFloat64(&cfg.Fees.AuctionPercent, "DECODE_FEES_AUCTION_PERCENT")

	// ── Rates ──
	setFloat64(&cfg.Rates.USDAEDPeg, "DECODE_RATES_USD_AED_PEG")
	setDuration(&cfg.Rates.RefreshInterval, "DECODE_RATES_REFRESH_INTERVAL")

	// ── Payout ──
	setFloat64(&cfg.Payout.MinAmount, "DECODE_PAYOUT_MIN_AMOUNT")
	setFloat64(&cfg.Payout.MaxDailyAmount, "DECODE_PAYOUT_MAX_DAILY_AMOUNT")
	setStr(&cfg.Payout.Weekday, "DECODE_PAYOUT_WEEKDAY")
	setInt(&cfg.Payout.RunHourUTC, "DECODE_PAYOUT_RUN_HOUR_UTC")
	setInt(&cfg.Payout.BatchSize, "DECODE_PAYOUT_BATCH_SIZE")
	setDuration(&cfg.Payout.VideoTokenTTL, "DECODE_PAYOUT_VIDEO_TOKEN_TTL")
	setDuration(&cfg.Payout.SweepInterval, "DECODE_PAYOUT_SWEEP_INTERVAL")
	setDuration(&cfg.Payout.SettleInterval, "DECODE_PAYOUT_SETTLE_INTERVAL")
	setInt(&cfg.Payout.LedgerRetentionDays, "DECODE_PAYOUT_LEDGER_RETENTION_DAYS")
	setInt(&cfg.Payout.WebhookRetentionDays, "DECODE_PAYOUT_WEBHOOK_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DECODE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DECODE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DECODE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DECODE_NOTIFY_EVENTS")
	setStr(&cfg.Notify.MinSeverity, "DECODE_NOTIFY_MIN_SEVERITY")

	// ── Top-level ──
	setStr(&cfg.Mode, "DECODE_MODE")
	setStr(&cfg.LogLevel, "DECODE_LOG_LEVEL")
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
