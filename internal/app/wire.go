package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/decodebeauty/decode-server/internal/blob/s3"
	"github.com/decodebeauty/decode-server/internal/cache/redis"
	"github.com/decodebeauty/decode-server/internal/config"
	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/notify"
	"github.com/decodebeauty/decode-server/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	ProfileStore      domain.ProfileStore
	PaymentLinkStore  domain.PaymentLinkStore
	TransactionStore  domain.TransactionStore
	WalletStore       domain.WalletStore
	AuctionStore      domain.AuctionStore
	BidStore          domain.BidStore
	PayoutStore       domain.PayoutStore
	VideoTokenStore   domain.VideoTokenStore
	WebhookEventStore domain.WebhookEventStore
	FeePolicyStore    domain.FeePolicyStore
	AuditStore        domain.AuditStore

	// Caches
	AuctionCache domain.AuctionCache
	BidCache     domain.BidCache
	OTPCache     domain.OTPCache
	RateCache    domain.RateCache
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager
	SignalBus    domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Checks maps a dependency name to its connectivity ping, consumed by
	// the status endpoint.
	Checks map[string]func(ctx context.Context) error

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "server", "worker", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that require object storage. The server
// streams and accepts video uploads; the worker archives ledger rows.
func needsS3(mode string) bool {
	switch mode {
	case "server", "worker", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Checks: make(map[string]func(ctx context.Context) error),
	}

	// --- PostgreSQL (only for modes that need persistence) ---
	var walletStore *postgres.WalletStore
	var webhookStore *postgres.WebhookEventStore
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		walletStore = postgres.NewWalletStore(pool)
		webhookStore = postgres.NewWebhookEventStore(pool)
		deps.ProfileStore = postgres.NewProfileStore(pool)
		deps.PaymentLinkStore = postgres.NewPaymentLinkStore(pool)
		deps.TransactionStore = postgres.NewTransactionStore(pool)
		deps.WalletStore = walletStore
		deps.AuctionStore = postgres.NewAuctionStore(pool)
		deps.BidStore = postgres.NewBidStore(pool)
		deps.PayoutStore = postgres.NewPayoutStore(pool)
		deps.VideoTokenStore = postgres.NewVideoTokenStore(pool)
		deps.WebhookEventStore = webhookStore
		deps.FeePolicyStore = postgres.NewFeePolicyStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pool.Ping
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.AuctionCache = redis.NewAuctionCache(redisClient)
	deps.BidCache = redis.NewBidCache(redisClient)
	deps.OTPCache = redis.NewOTPCache(redisClient)
	deps.RateCache = redis.NewRateCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Checks["redis"] = redisClient.Ping

	// --- S3 blob storage (only for modes that need object storage) ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Checks["s3"] = s3Client.Health

		// Archiver needs the concrete stores for their trim queries.
		if walletStore != nil && webhookStore != nil {
			deps.Archiver = s3blob.NewArchiver(
				deps.BlobWriter,
				walletStore,
				webhookStore,
				deps.AuditStore,
			)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
