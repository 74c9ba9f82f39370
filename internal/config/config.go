// Package config defines the top-level configuration for the DECODE payments
// server and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DECODE_* environment variables.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Stripe    StripeConfig    `toml:"stripe"`
	Crossmint CrossmintConfig `toml:"crossmint"`
	Whatsapp  WhatsappConfig  `toml:"whatsapp"`
	Resend    ResendConfig    `toml:"resend"`
	Treasury  TreasuryConfig  `toml:"treasury"`
	Fees      FeesConfig      `toml:"fees"`
	Rates     RatesConfig     `toml:"rates"`
	Payout    PayoutConfig    `toml:"payout"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
	RateLimitBurst  int      `toml:"rate_limit_burst"`
}

// AuthConfig holds JWT session and OTP verification parameters.
type AuthConfig struct {
	JWTSecret      string   `toml:"jwt_secret"`
	Issuer         string   `toml:"issuer"`
	TokenTTL       duration `toml:"token_ttl"`
	OTPTTL         duration `toml:"otp_ttl"`
	OTPMaxAttempts int      `toml:"otp_max_attempts"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// StripeConfig holds Stripe API credentials and webhook verification
// parameters. WebhookSecret verifies the payment webhook endpoint,
// ConnectWebhookSecret the Connect account events endpoint.
type StripeConfig struct {
	SecretKey            string   `toml:"secret_key"`
	WebhookSecret        string   `toml:"webhook_secret"`
	ConnectWebhookSecret string   `toml:"connect_webhook_secret"`
	PlatformAccount      string   `toml:"platform_account"`
	BaseURL              string   `toml:"base_url"`
	SignatureTolerance   duration `toml:"signature_tolerance"`
}

// CrossmintConfig holds Crossmint API credentials. Environment selects the
// staging or production API host.
type CrossmintConfig struct {
	APIKey        string `toml:"api_key"`
	WebhookSecret string `toml:"webhook_secret"`
	Environment   string `toml:"environment"`
	ProjectID     string `toml:"project_id"`
	CollectionID  string `toml:"collection_id"`
}

// WhatsappConfig holds WhatsApp Business API credentials for phone OTP
// delivery.
type WhatsappConfig struct {
	Token    string `toml:"token"`
	PhoneID  string `toml:"phone_id"`
	Template string `toml:"template"`
	BaseURL  string `toml:"base_url"`
}

// ResendConfig holds Resend credentials for email OTP delivery.
type ResendConfig struct {
	APIKey string `toml:"api_key"`
	From   string `toml:"from"`
}

// TreasuryConfig holds the hot wallet used to authorize crypto payouts.
type TreasuryConfig struct {
	PrivateKey       string `toml:"private_key"`
	HotWalletAddress string `toml:"hot_wallet_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	ChainID          int    `toml:"chain_id"`
}

// FeesConfig holds the default platform fee percentage per payment channel.
// Values are whole percentages (5 means 5%). Rows in the fee_policies table
// override these at runtime.
type FeesConfig struct {
	PaymentIntentPercent float64 `toml:"payment_intent_percent"`
	CrossmintPercent     float64 `toml:"crossmint_percent"`
	CheckoutPercent      float64 `toml:"checkout_percent"`
	AuctionPercent       float64 `toml:"auction_percent"`
}

// RatesConfig holds currency conversion parameters. USDAEDPeg is the fixed
// central-bank peg used when no fresher rate is cached.
type RatesConfig struct {
	USDAEDPeg       float64  `toml:"usd_aed_peg"`
	RefreshInterval duration `toml:"refresh_interval"`
}

// PayoutConfig holds payout batch scheduling and retention parameters.
type PayoutConfig struct {
	MinAmount            float64  `toml:"min_amount"`
	MaxDailyAmount       float64  `toml:"max_daily_amount"`
	Weekday              string   `toml:"weekday"`
	RunHourUTC           int      `toml:"run_hour_utc"`
	BatchSize            int      `toml:"batch_size"`
	VideoTokenTTL        duration `toml:"video_token_ttl"`
	SweepInterval        duration `toml:"sweep_interval"`
	SettleInterval       duration `toml:"settle_interval"`
	LedgerRetentionDays  int      `toml:"ledger_retention_days"`
	WebhookRetentionDays int      `toml:"webhook_retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	MinSeverity       string   `toml:"min_severity"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
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
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "https://decodebeauty.com"},
			RateLimitPerMin: 120,
			RateLimitBurst:  30,
		},
		Auth: AuthConfig{
			Issuer:         "decode",
			TokenTTL:       duration{24 * time.Hour},
			OTPTTL:         duration{10 * time.Minute},
			OTPMaxAttempts: 5,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "decode",
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
			Endpoint:       "http://localhost:9000",
			Region:         "me-central-1",
			Bucket:         "decode-media",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Stripe: StripeConfig{
			BaseURL:            "https://api.stripe.com",
			SignatureTolerance: duration{5 * time.Minute},
		},
		Crossmint: CrossmintConfig{
			Environment: "staging",
		},
		Whatsapp: WhatsappConfig{
			BaseURL:  "https://graph.facebook.com/v19.0",
			Template: "decode_otp",
		},
		Treasury: TreasuryConfig{
			ChainID: 137,
		},
		Fees: FeesConfig{
			PaymentIntentPercent: 5,
			CrossmintPercent:     9,
			CheckoutPercent:      11,
			AuctionPercent:       25,
		},
		Rates: RatesConfig{
			USDAEDPeg:       3.6725,
			RefreshInterval: duration{12 * time.Hour},
		},
		Payout: PayoutConfig{
			MinAmount:            10.0,
			MaxDailyAmount:       10000.0,
			Weekday:              "monday",
			RunHourUTC:           9,
			BatchSize:            50,
			VideoTokenTTL:        duration{72 * time.Hour},
			SweepInterval:        duration{10 * time.Minute},
			SettleInterval:       duration{time.Minute},
			LedgerRetentionDays:  365,
			WebhookRetentionDays: 90,
		},
		Notify: NotifyConfig{
			Events:      []string{"payment.failed", "payout.paid", "payout.failed", "webhook.rejected"},
			MinSeverity: "info",
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"worker": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validWeekdays enumerates the accepted values for payout.weekday.
var validWeekdays = map[string]bool{
	"sunday":    true,
	"monday":    true,
	"tuesday":   true,
	"wednesday": true,
	"thursday":  true,
	"friday":    true,
	"saturday":  true,
}

// validSeverities enumerates the accepted values for notify.min_severity.
var validSeverities = map[string]bool{
	"info":     true,
	"warning":  true,
	"critical": true,
}

// validEnvironments enumerates the accepted values for crossmint.environment.
var validEnvironments = map[string]bool{
	"staging":    true,
	"production": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, worker, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	serving := c.Server.Enabled && (c.Mode == "server" || c.Mode == "full")

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 1 {
			errs = append(errs, "server: rate_limit_per_min must be >= 1")
		}
	}
	if serving && c.Server.APIKey == "" {
		errs = append(errs, "server: api_key is required for the cron and service endpoints")
	}

	// Auth
	if serving && c.Auth.JWTSecret == "" {
		errs = append(errs, "auth: jwt_secret must be set when the server is enabled")
	}
	if c.Auth.TokenTTL.Duration <= 0 {
		errs = append(errs, "auth: token_ttl must be > 0")
	}
	if c.Auth.OTPTTL.Duration <= 0 {
		errs = append(errs, "auth: otp_ttl must be > 0")
	}
	if c.Auth.OTPMaxAttempts < 1 {
		errs = append(errs, "auth: otp_max_attempts must be >= 1")
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
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Stripe
	if serving {
		if c.Stripe.SecretKey == "" {
			errs = append(errs, "stripe: secret_key is required when the server is enabled")
		}
		if c.Stripe.WebhookSecret == "" {
			errs = append(errs, "stripe: webhook_secret is required when the server is enabled")
		}
	}
	if c.Stripe.BaseURL == "" {
		errs = append(errs, "stripe: base_url must not be empty")
	}
	if c.Stripe.SignatureTolerance.Duration <= 0 {
		errs = append(errs, "stripe: signature_tolerance must be > 0")
	}

	// Crossmint
	if !validEnvironments[strings.ToLower(c.Crossmint.Environment)] {
		errs = append(errs, fmt.Sprintf("crossmint: environment must be staging or production, got %q", c.Crossmint.Environment))
	}

	// Treasury
	if c.Treasury.EncryptedKeyPath != "" && c.Treasury.KeyPassword == "" {
		errs = append(errs, "treasury: key_password is required when encrypted_key_path is set")
	}
	if c.Treasury.ChainID <= 0 {
		errs = append(errs, "treasury: chain_id must be positive")
	}

	// Fees
	for name, pct := range map[string]float64{
		"payment_intent_percent": c.Fees.PaymentIntentPercent,
		"crossmint_percent":      c.Fees.CrossmintPercent,
		"checkout_percent":       c.Fees.CheckoutPercent,
		"auction_percent":        c.Fees.AuctionPercent,
	} {
		if pct < 0 || pct > 100 {
			errs = append(errs, fmt.Sprintf("fees: %s must be 0-100, got %v", name, pct))
		}
	}

	// Rates
	if c.Rates.USDAEDPeg <= 0 {
		errs = append(errs, "rates: usd_aed_peg must be > 0")
	}
	if c.Rates.RefreshInterval.Duration <= 0 {
		errs = append(errs, "rates: refresh_interval must be > 0")
	}

	// Payout
	if c.Payout.MinAmount < 0 {
		errs = append(errs, "payout: min_amount must be >= 0")
	}
	if c.Payout.MaxDailyAmount > 0 && c.Payout.MaxDailyAmount < c.Payout.MinAmount {
		errs = append(errs, "payout: max_daily_amount must not be below min_amount")
	}
	if !validWeekdays[strings.ToLower(c.Payout.Weekday)] {
		errs = append(errs, fmt.Sprintf("payout: unknown weekday %q", c.Payout.Weekday))
	}
	if c.Payout.RunHourUTC < 0 || c.Payout.RunHourUTC > 23 {
		errs = append(errs, fmt.Sprintf("payout: run_hour_utc must be 0-23, got %d", c.Payout.RunHourUTC))
	}
	if c.Payout.BatchSize < 1 {
		errs = append(errs, "payout: batch_size must be >= 1")
	}
	if c.Payout.VideoTokenTTL.Duration <= 0 {
		errs = append(errs, "payout: video_token_ttl must be > 0")
	}
	if c.Payout.LedgerRetentionDays < 0 {
		errs = append(errs, "payout: ledger_retention_days must be >= 0")
	}
	if c.Payout.WebhookRetentionDays < 0 {
		errs = append(errs, "payout: webhook_retention_days must be >= 0")
	}

	// Notify
	if !validSeverities[strings.ToLower(c.Notify.MinSeverity)] {
		errs = append(errs, fmt.Sprintf("notify: unknown min_severity %q (valid: info, warning, critical)", c.Notify.MinSeverity))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// PayoutWeekday maps the configured weekday name to a time.Weekday. Call
// after Validate; unknown names fall back to Monday.
func (c *Config) PayoutWeekday() time.Weekday {
	switch strings.ToLower(c.Payout.Weekday) {
	case "sunday":
		return time.Sunday
	case "tuesday":
		return time.Tuesday
	case "wednesday":
		return time.Wednesday
	case "thursday":
		return time.Thursday
	case "friday":
		return time.Friday
	case "saturday":
		return time.Saturday
	default:
		return time.Monday
	}
}
