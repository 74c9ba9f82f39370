package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Server
	out.Server = cfg.Server
	redact(&out.Server.APIKey)

	// Auth
	out.Auth = cfg.Auth
	redact(&out.Auth.JWTSecret)

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Stripe
	out.Stripe = cfg.Stripe
	redact(&out.Stripe.SecretKey)
	redact(&out.Stripe.WebhookSecret)
	redact(&out.Stripe.ConnectWebhookSecret)

	// Crossmint
	out.Crossmint = cfg.Crossmint
	redact(&out.Crossmint.APIKey)
	redact(&out.Crossmint.WebhookSecret)

	// Whatsapp
	out.Whatsapp = cfg.Whatsapp
	redact(&out.Whatsapp.Token)

	// Resend
	out.Resend = cfg.Resend
	redact(&out.Resend.APIKey)

	// Treasury
	out.Treasury = cfg.Treasury
	redact(&out.Treasury.PrivateKey)
	redact(&out.Treasury.KeyPassword)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
