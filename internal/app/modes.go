package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/decodebeauty/decode-server/internal/crypto"
	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/fees"
	"github.com/decodebeauty/decode-server/internal/notify"
	"github.com/decodebeauty/decode-server/internal/payout"
	"github.com/decodebeauty/decode-server/internal/platform/crossmint"
	"github.com/decodebeauty/decode-server/internal/platform/resend"
	"github.com/decodebeauty/decode-server/internal/platform/stripe"
	"github.com/decodebeauty/decode-server/internal/platform/whatsapp"
	"github.com/decodebeauty/decode-server/internal/server"
	"github.com/decodebeauty/decode-server/internal/server/handler"
	"github.com/decodebeauty/decode-server/internal/server/middleware"
	"github.com/decodebeauty/decode-server/internal/server/ws"
	"github.com/decodebeauty/decode-server/internal/service"
	"github.com/decodebeauty/decode-server/internal/worker"
)

// Version is the build version stamped via -ldflags at release time.
var Version = "dev"

// defaultUSDAEDPeg is the UAE central bank dirham peg, used when the
// rates section does not override it.
const defaultUSDAEDPeg = 3.6725

// serviceSet holds every constructed domain service plus the platform
// clients the handlers need. Built once per mode by buildServices.
type serviceSet struct {
	rates    *service.RateService
	payments *service.PaymentService
	auctions *service.AuctionService
	videos   *service.VideoService
	payouts  *service.PayoutService
	wallet   *service.WalletService
	profiles *service.ProfileService
	webhooks *service.WebhookService
}

// ServerMode starts the HTTP API, the WebSocket hub, and the
// notification listener. Scheduled jobs are expected to run in a
// separate worker process or be driven through the cron endpoints.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	a.startAPI(ctx, g, deps, svcs)
	a.startNotifyListener(ctx, g, deps)

	return g.Wait()
}

// WorkerMode starts the background jobs (weekly payout batch, token
// sweeper, auction auto settler, rate refresher, ledger archiver) and
// the notification listener without binding an HTTP port.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("worker mode: %w", err)
	}

	a.startWorkers(ctx, g, deps, svcs)
	a.startNotifyListener(ctx, g, deps)

	return g.Wait()
}

// NotifyMode runs only the notification listener. Useful as a
// sidecar that relays platform events to Telegram or Discord while the
// API and workers run elsewhere.
func (a *App) NotifyMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting notify mode")

	listener := notify.NewListener(deps.SignalBus, deps.Notifier, a.cfg.Notify.MinSeverity, a.logger)
	return listener.Run(ctx)
}

// FullMode runs the HTTP API, the background jobs, and the notification
// listener in a single process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	a.startAPI(ctx, g, deps, svcs)
	a.startWorkers(ctx, g, deps, svcs)
	a.startNotifyListener(ctx, g, deps)

	return g.Wait()
}

// buildServices constructs the full service layer from wired
// dependencies and configuration. The treasury key is optional; when it
// cannot be loaded the crypto payout rail is left unregistered and
// crypto payouts fail with a rail error instead of blocking startup.
func (a *App) buildServices(deps *Dependencies) (*serviceSet, error) {
	cfg := a.cfg

	// Currency conversion with the dirham peg as the floor.
	peg := cfg.Rates.USDAEDPeg
	if peg <= 0 {
		peg = defaultUSDAEDPeg
	}
	pegs := []domain.ExchangeRate{{
		Base:      "USD",
		Quote:     "AED",
		Price:     decimal.NewFromFloat(peg),
		Version:   0,
		FetchedAt: time.Now().UTC(),
	}}
	rateSvc := service.NewRateService(deps.RateCache, pegs, a.logger)

	// Fee schedule defaults come from config; fee_policies rows override.
	schedule, err := fees.NewSchedule(map[domain.FeeChannel]decimal.Decimal{
		domain.ChannelPaymentIntent: decimal.NewFromFloat(cfg.Fees.PaymentIntentPercent),
		domain.ChannelCrossmint:     decimal.NewFromFloat(cfg.Fees.CrossmintPercent),
		domain.ChannelCheckout:      decimal.NewFromFloat(cfg.Fees.CheckoutPercent),
		domain.ChannelAuction:       decimal.NewFromFloat(cfg.Fees.AuctionPercent),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("build services: fee schedule: %w", err)
	}
	resolver := fees.NewResolver(deps.FeePolicyStore, schedule, a.logger)

	stripeClient := stripe.NewClient(cfg.Stripe.BaseURL, cfg.Stripe.SecretKey)
	crossmintClient := crossmint.NewClient(cfg.Crossmint.APIKey, cfg.Crossmint.Environment)

	paymentSvc := service.NewPaymentService(
		deps.PaymentLinkStore,
		deps.TransactionStore,
		deps.WalletStore,
		resolver,
		rateSvc,
		stripeClient,
		crossmintClient,
		deps.RateLimiter,
		deps.SignalBus,
		deps.AuditStore,
		a.logger,
	)

	videoSvc := service.NewVideoService(
		deps.VideoTokenStore,
		deps.AuctionStore,
		deps.PayoutStore,
		deps.BlobWriter,
		deps.BlobReader,
		cfg.Payout.VideoTokenTTL.Duration,
		deps.SignalBus,
		deps.AuditStore,
		a.logger,
	)

	auctionSvc := service.NewAuctionService(
		deps.AuctionStore,
		deps.BidStore,
		deps.VideoTokenStore,
		deps.WalletStore,
		deps.AuctionCache,
		deps.BidCache,
		deps.LockManager,
		deps.RateLimiter,
		resolver,
		videoSvc,
		deps.SignalBus,
		deps.AuditStore,
		a.logger,
	)

	// Treasury hot wallet for crypto payout authorizations.
	var signer service.PayoutAuthSigner
	var treasury *crypto.Treasury
	keyHex, keyErr := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Treasury.PrivateKey,
		EncryptedKeyPath: cfg.Treasury.EncryptedKeyPath,
		KeyPassword:      cfg.Treasury.KeyPassword,
	})
	if keyErr == nil {
		treasury, keyErr = crypto.NewTreasury(keyHex, cfg.Treasury.ChainID)
	}
	if keyErr != nil {
		a.logger.Warn("treasury key unavailable, crypto payout rail disabled",
			slog.String("error", keyErr.Error()))
	} else {
		signer = treasury
	}

	registry := payout.NewRegistry()
	registry.Register(payout.NewStripeRail(stripeClient))
	registry.Register(payout.NewPayPalRail())
	if treasury != nil {
		registry.Register(payout.NewCryptoRail(treasury, crossmintClient))
	}

	executor := payout.NewExecutor(
		registry,
		deps.PayoutStore,
		deps.WalletStore,
		deps.AuditStore,
		deps.SignalBus,
		a.logger,
	)

	payoutSvc := service.NewPayoutService(
		deps.PayoutStore,
		deps.ProfileStore,
		deps.AuctionStore,
		deps.VideoTokenStore,
		deps.WalletStore,
		registry,
		executor,
		signer,
		deps.LockManager,
		decimal.NewFromFloat(cfg.Payout.MinAmount),
		cfg.Payout.BatchSize,
		deps.SignalBus,
		deps.AuditStore,
		a.logger,
	)

	emailSender := resend.NewClient(cfg.Resend.APIKey, cfg.Resend.From)
	phoneSender := whatsapp.NewClient(
		cfg.Whatsapp.BaseURL,
		cfg.Whatsapp.Token,
		cfg.Whatsapp.PhoneID,
		cfg.Whatsapp.Template,
	)

	profileSvc := service.NewProfileService(
		deps.ProfileStore,
		deps.OTPCache,
		deps.RateLimiter,
		emailSender,
		phoneSender,
		stripeClient,
		cfg.Auth.OTPTTL.Duration,
		cfg.Auth.OTPMaxAttempts,
		deps.AuditStore,
		a.logger,
	)

	stripeVerifier := &crypto.StripeVerifier{
		Secret:    cfg.Stripe.WebhookSecret,
		Tolerance: cfg.Stripe.SignatureTolerance.Duration,
	}
	connectVerifier := &crypto.StripeVerifier{
		Secret:    cfg.Stripe.ConnectWebhookSecret,
		Tolerance: cfg.Stripe.SignatureTolerance.Duration,
	}
	crossmintVerifier := &crypto.CrossmintVerifier{Secret: cfg.Crossmint.WebhookSecret}

	webhookSvc := service.NewWebhookService(
		deps.WebhookEventStore,
		paymentSvc,
		deps.ProfileStore,
		stripeVerifier,
		connectVerifier,
		crossmintVerifier,
		deps.SignalBus,
		deps.AuditStore,
		a.logger,
	)

	return &serviceSet{
		rates:    rateSvc,
		payments: paymentSvc,
		auctions: auctionSvc,
		videos:   videoSvc,
		payouts:  payoutSvc,
		wallet:   service.NewWalletService(deps.WalletStore, a.logger),
		profiles: profileSvc,
		webhooks: webhookSvc,
	}, nil
}

// startAPI adds the WebSocket hub and HTTP server goroutines to the
// given errgroup. The server is shut down gracefully when the context
// is cancelled.
func (a *App) startAPI(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *serviceSet) {
	metrics := middleware.NewMetrics()

	hub := ws.NewHub(deps.SignalBus, metrics, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	checks := make(map[string]handler.CheckFunc, len(deps.Checks))
	for name, check := range deps.Checks {
		checks[name] = check
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(),
		Payments: handler.NewPaymentHandler(svcs.payments, a.logger),
		Auctions: handler.NewAuctionHandler(svcs.auctions, a.logger),
		Payouts:  handler.NewPayoutHandler(svcs.payouts, a.logger),
		Wallet:   handler.NewWalletHandler(svcs.wallet, a.logger),
		Videos:   handler.NewVideoHandler(svcs.videos, a.logger),
		Profiles: handler.NewProfileHandler(svcs.profiles, a.logger),
		Webhooks: handler.NewWebhookHandler(svcs.webhooks, a.logger),
		Cron: handler.NewCronHandler(
			svcs.payouts, svcs.videos, svcs.auctions, svcs.payments, svcs.rates, a.logger,
		),
		Status: handler.NewStatusHandler(
			Version, checks, deps.AuctionStore, deps.PayoutStore, a.cfg, metrics, a.logger,
		),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		JWTSecret:   a.cfg.Auth.JWTSecret,
		JWTIssuer:   a.cfg.Auth.Issuer,
		RateLimit:   a.cfg.Server.RateLimitPerMin,
		RateWindow:  time.Minute,
		Limiter:     deps.RateLimiter,
	}, handlers, hub, metrics, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startWorkers adds the background job orchestrator to the given
// errgroup. The archiver job is skipped when object storage is not
// wired or both retention windows are zero.
func (a *App) startWorkers(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *serviceSet) {
	cfg := a.cfg.Payout

	var archiver *worker.Archiver
	if deps.Archiver != nil && (cfg.LedgerRetentionDays > 0 || cfg.WebhookRetentionDays > 0) {
		archiver = worker.NewArchiver(
			deps.Archiver,
			cfg.LedgerRetentionDays,
			cfg.WebhookRetentionDays,
			a.logger,
		)
	}

	orch := worker.NewOrchestrator(
		worker.NewPayoutRunner(svcs.payouts, cfg.Weekday, cfg.RunHourUTC, a.logger),
		worker.NewTokenSweeper(svcs.videos, svcs.payments, cfg.SweepInterval.Duration, a.logger),
		worker.NewAutoSettler(svcs.auctions, cfg.SettleInterval.Duration, a.logger),
		worker.NewRateRefresher(svcs.rates, a.cfg.Rates.RefreshInterval.Duration, a.logger),
		archiver,
		a.logger,
	)

	g.Go(func() error {
		return orch.Run(ctx)
	})
}

// startNotifyListener adds the event-to-notification relay to the given
// errgroup.
func (a *App) startNotifyListener(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	listener := notify.NewListener(deps.SignalBus, deps.Notifier, a.cfg.Notify.MinSeverity, a.logger)
	g.Go(func() error {
		return listener.Run(ctx)
	})
}
