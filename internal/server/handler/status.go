package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/decodebeauty/decode-server/internal/config"
	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/server/middleware"
)

// CheckFunc pings one external dependency.
type CheckFunc func(ctx context.Context) error

// StatusHandler serves operational status for dashboards and external
// monitors.
type StatusHandler struct {
	version  string
	checks   map[string]CheckFunc
	auctions domain.AuctionStore
	payouts  domain.PayoutStore
	cfg      *config.Config
	metrics  *middleware.Metrics
	started  time.Time
	logger   *slog.Logger
}

// NewStatusHandler creates a StatusHandler. checks maps a dependency
// name ("postgres", "redis", "s3") to its ping.
func NewStatusHandler(
	version string,
	checks map[string]CheckFunc,
	auctions domain.AuctionStore,
	payouts domain.PayoutStore,
	cfg *config.Config,
	metrics *middleware.Metrics,
	logger *slog.Logger,
) *StatusHandler {
	return &StatusHandler{
		version:  version,
		checks:   checks,
		auctions: auctions,
		payouts:  payouts,
		cfg:      cfg,
		metrics:  metrics,
		started:  time.Now().UTC(),
		logger:   logger,
	}
}

// GetStatus pings every dependency and reports queue depths. Degraded
// dependencies flip the top-level status but still return 200 so
// monitors can read the detail.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = "down"
			healthy = false
			continue
		}
		deps[name] = "up"
	}

	openAuctions, err := h.auctions.CountOpen(ctx)
	if err != nil {
		openAuctions = -1
	}
	pendingPayouts, err := h.payouts.CountPending(ctx)
	if err != nil {
		pendingPayouts = -1
	}

	status := "ok"
	if !healthy {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"version":         h.version,
		"uptime_seconds":  int64(time.Since(h.started).Seconds()),
		"dependencies":    deps,
		"open_auctions":   openAuctions,
		"pending_payouts": pendingPayouts,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// GetMetrics returns the in-process counter snapshot. Service key
// required.
// GET /api/metrics
func (h *StatusHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

// EnvCheck dumps the active configuration with secrets redacted.
// Service key required.
// GET /api/debug/env-check
func (h *StatusHandler) EnvCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.RedactedConfig(h.cfg))
}
