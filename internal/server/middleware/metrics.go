package middleware

import (
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics holds in-process request counters. Counters reset on restart;
// anything needing durability belongs in the audit log, not here.
type Metrics struct {
	requests     atomic.Int64
	clientErrors atomic.Int64
	serverErrors atomic.Int64
	rateLimited  atomic.Int64
	totalMicros  atomic.Int64
	wsClients    atomic.Int64
}

// NewMetrics creates an empty Metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Collect returns middleware that counts every request by outcome.
func (m *Metrics) Collect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.requests.Add(1)
		m.totalMicros.Add(time.Since(start).Microseconds())
		switch {
		case sw.status == http.StatusTooManyRequests:
			m.rateLimited.Add(1)
			m.clientErrors.Add(1)
		case sw.status >= 500:
			m.serverErrors.Add(1)
		case sw.status >= 400:
			m.clientErrors.Add(1)
		}
	})
}

// WSConnected records a WebSocket client attaching.
func (m *Metrics) WSConnected() { m.wsClients.Add(1) }

// WSDisconnected records a WebSocket client detaching.
func (m *Metrics) WSDisconnected() { m.wsClients.Add(-1) }

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() map[string]int64 {
	requests := m.requests.Load()
	avgMicros := int64(0)
	if requests > 0 {
		avgMicros = m.totalMicros.Load() / requests
	}
	return map[string]int64{
		"requests_total":      requests,
		"client_errors_total": m.clientErrors.Load(),
		"server_errors_total": m.serverErrors.Load(),
		"rate_limited_total":  m.rateLimited.Load(),
		"avg_latency_micros":  avgMicros,
		"ws_clients":          m.wsClients.Load(),
	}
}
