package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/server/handler"
	"github.com/decodebeauty/decode-server/internal/server/middleware"
	"github.com/decodebeauty/decode-server/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, service routes are disabled
	JWTSecret   string
	JWTIssuer   string
	RateLimit   int // requests per RateWindow per client IP
	RateWindow  time.Duration
	Limiter     domain.RateLimiter
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Payments *handler.PaymentHandler
	Auctions *handler.AuctionHandler
	Payouts  *handler.PayoutHandler
	Wallet   *handler.WalletHandler
	Videos   *handler.VideoHandler
	Profiles *handler.ProfileHandler
	Webhooks *handler.WebhookHandler
	Cron     *handler.CronHandler
	Status   *handler.StatusHandler
}

// Server is the HTTP + WebSocket API server for the marketplace.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer registers all routes on a ServeMux behind the middleware
// chain recover, CORS, logging, metrics, rate limit, then the
// per-group auth: JWT for user routes, API key for service routes,
// signature headers only for webhooks.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, metrics *middleware.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	user := middleware.JWT(cfg.JWTSecret, cfg.JWTIssuer)
	svc := middleware.APIKey(cfg.APIKey)

	userFunc := func(fn http.HandlerFunc) http.Handler { return user(fn) }
	svcFunc := func(fn http.HandlerFunc) http.Handler { return svc(fn) }

	// Public.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/payment-links/{slug}", handlers.Payments.OpenLink)
	mux.HandleFunc("GET /api/auctions", handlers.Auctions.ListAuctions)
	mux.HandleFunc("GET /api/auctions/{id}", handlers.Auctions.GetAuction)
	mux.HandleFunc("GET /api/auctions/{id}/bids", handlers.Auctions.ListBids)
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Payments and links.
	mux.Handle("POST /api/payment-links", userFunc(handlers.Payments.CreateLink))
	mux.Handle("GET /api/payment-links", userFunc(handlers.Payments.ListLinks))
	mux.Handle("POST /api/payments/intent", userFunc(handlers.Payments.CreateIntent))
	mux.Handle("POST /api/payments/checkout-session", userFunc(handlers.Payments.CreateCheckoutSession))
	mux.Handle("POST /api/payments/crossmint-order", userFunc(handlers.Payments.CreateCrossmintOrder))
	mux.Handle("POST /api/payments/manual-complete", userFunc(handlers.Payments.ManualComplete))
	mux.Handle("GET /api/payments", userFunc(handlers.Payments.ListTransactions))
	mux.Handle("PATCH /api/payments/{id}", userFunc(handlers.Payments.UpdateTransaction))

	// Wallet.
	mux.Handle("GET /api/wallet/transactions", userFunc(handlers.Wallet.GetStatement))
	mux.Handle("GET /api/wallet/balance", userFunc(handlers.Wallet.GetBalance))
	mux.Handle("POST /api/wallet/adjustments", userFunc(handlers.Wallet.Adjust))

	// Payouts.
	mux.Handle("POST /api/payouts", userFunc(handlers.Payouts.RequestPayout))
	mux.Handle("GET /api/payouts", userFunc(handlers.Payouts.ListPayouts))
	mux.Handle("GET /api/payouts/{id}", userFunc(handlers.Payouts.GetPayout))
	mux.Handle("POST /api/payouts/{id}/cancel", userFunc(handlers.Payouts.CancelPayout))

	// Auctions.
	mux.Handle("POST /api/auctions", userFunc(handlers.Auctions.CreateAuction))
	mux.Handle("POST /api/auctions/{id}/bids", userFunc(handlers.Auctions.PlaceBid))
	mux.Handle("POST /api/auctions/{id}/settle", userFunc(handlers.Auctions.Settle))
	mux.Handle("GET /api/auctions/{id}/payout-eligibility", userFunc(handlers.Auctions.PayoutEligibility))

	// Videos. The token in the path is the credential.
	mux.HandleFunc("GET /api/videos/{token}", handlers.Videos.GetToken)
	mux.HandleFunc("PUT /api/videos/{token}", handlers.Videos.Upload)
	mux.HandleFunc("POST /api/videos/{token}/watched", handlers.Videos.MarkWatched)
	mux.HandleFunc("GET /api/videos/{token}/stream", handlers.Videos.Stream)

	// Profile and verification.
	mux.Handle("GET /api/profile", userFunc(handlers.Profiles.GetProfile))
	mux.Handle("PATCH /api/profile", userFunc(handlers.Profiles.UpdateProfile))
	mux.Handle("POST /api/profile/verify-email", userFunc(handlers.Profiles.StartEmailVerification))
	mux.Handle("POST /api/profile/verify-email/confirm", userFunc(handlers.Profiles.ConfirmEmail))
	mux.Handle("POST /api/profile/verify-phone", userFunc(handlers.Profiles.StartPhoneVerification))
	mux.Handle("POST /api/profile/verify-phone/confirm", userFunc(handlers.Profiles.ConfirmPhone))

	// Stripe Connect.
	mux.Handle("POST /api/stripe/connect-account", userFunc(handlers.Profiles.CreateConnectAccount))
	mux.Handle("POST /api/stripe/account-session", userFunc(handlers.Profiles.CreateAccountSession))
	mux.Handle("GET /api/stripe/account-balance", userFunc(handlers.Profiles.AccountBalance))
	mux.Handle("POST /api/stripe/transfers", userFunc(handlers.Profiles.CreateTransfer))

	// Service routes.
	mux.Handle("GET /api/status", svcFunc(handlers.Status.GetStatus))
	mux.Handle("GET /api/metrics", svcFunc(handlers.Status.GetMetrics))
	mux.Handle("GET /api/debug/env-check", svcFunc(handlers.Status.EnvCheck))
	mux.Handle("POST /api/cron/weekly-payouts", svcFunc(handlers.Cron.WeeklyPayouts))
	mux.Handle("POST /api/cron/sweep-tokens", svcFunc(handlers.Cron.SweepTokens))
	mux.Handle("POST /api/cron/settle-auctions", svcFunc(handlers.Cron.SettleAuctions))
	mux.Handle("POST /api/cron/expire-links", svcFunc(handlers.Cron.ExpireLinks))
	mux.Handle("POST /api/cron/refresh-rates", svcFunc(handlers.Cron.RefreshRates))
	mux.Handle("POST /api/webhooks/replay", svcFunc(handlers.Webhooks.Replay))

	// Webhooks. Signature-verified in the service, no session auth.
	mux.HandleFunc("POST /api/webhooks/stripe", handlers.Webhooks.Stripe)
	mux.HandleFunc("POST /api/webhooks/stripe-connect", handlers.Webhooks.StripeConnect)
	mux.HandleFunc("POST /api/webhooks/crossmint", handlers.Webhooks.Crossmint)

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	if metrics != nil {
		h = metrics.Collect(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.Recover(logger)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
