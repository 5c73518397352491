// Package metrics exposes Prometheus metrics for the sniper.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"raydium-sniper-bot/internal/position"
	"raydium-sniper-bot/internal/raydium"
	"raydium-sniper-bot/internal/safety"
	"raydium-sniper-bot/internal/sniper"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "raybot"

// Metrics holds all Prometheus metrics for the bot on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	// Detection metrics
	PoolsDetected *prometheus.CounterVec
	Verdicts      *prometheus.CounterVec
	RejectReasons *prometheus.CounterVec

	// Trading metrics
	Buys         *prometheus.CounterVec
	BuyAttempts  prometheus.Histogram
	Exits        *prometheus.CounterVec
	ExitPnLPct   prometheus.Histogram
	SellFailures *prometheus.CounterVec
}

// New creates the metrics. Process and Go runtime collectors are included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		PoolsDetected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "pools_detected_total",
			Help:      "Decoded pool creations by variant and SOL pairing",
		}, []string{"variant", "sol_pair"}),
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "verdicts_total",
			Help:      "Safety evaluations by result",
		}, []string{"result"}),
		RejectReasons: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "reject_reasons_total",
			Help:      "Failed safety rules by reason code",
		}, []string{"reason"}),

		Buys: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "buys_total",
			Help:      "Buy outcomes",
		}, []string{"result", "dry_run"}),
		BuyAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "buy_attempts",
			Help:      "Attempts needed per buy",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),
		Exits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "exits_total",
			Help:      "Confirmed exits by trigger",
		}, []string{"reason"}),
		ExitPnLPct: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "exit_pnl_percent",
			Help:      "Realized PnL of exits in percent",
			Buckets:   []float64{-90, -50, -25, -10, 0, 10, 25, 50, 100, 200, 500},
		}),
		SellFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "sell_failures_total",
			Help:      "Sells that did not confirm",
		}, []string{"stuck"}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WatchPipeline exports the detection counters as counter functions.
func (m *Metrics) WatchPipeline(stats *sniper.Stats) {
	f := promauto.With(m.registry)
	counters := []struct {
		name, help string
		read       func() int64
	}{
		{"notifications_received_total", "Log notifications received", stats.Received.Load},
		{"transactions_forwarded_total", "Transactions queued for classification", stats.Forwarded.Load},
		{"transactions_dropped_total", "Transactions dropped on a full queue", stats.Dropped.Load},
		{"fetch_errors_total", "Failed transaction fetches", stats.FetchErrors.Load},
		{"malformed_total", "Malformed pool-init transactions", stats.Malformed.Load},
		{"rate_limited_total", "Accepted pools blocked by the trade limiter", stats.RateLimited.Load},
	}
	for _, c := range counters {
		read := c.read
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      c.name,
			Help:      c.help,
		}, func() float64 { return float64(read()) })
	}
}

// WatchPositions exports the open position count.
func (m *Metrics) WatchPositions(count func() int) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "open_positions",
		Help:      "Positions currently tracked",
	}, func() float64 { return float64(count()) })
}

// PoolDetected counts a decoded pool.
func (m *Metrics) PoolDetected(ev raydium.PoolEvent) {
	m.PoolsDetected.WithLabelValues(ev.Variant.String(), boolLabel(ev.IsSOLPair())).Inc()
}

// Verdict counts a safety verdict and its failed rules.
func (m *Metrics) Verdict(_ raydium.PoolEvent, v safety.Verdict) {
	if v.Accepted {
		m.Verdicts.WithLabelValues("accepted").Inc()
		return
	}
	m.Verdicts.WithLabelValues("rejected").Inc()
	for _, r := range v.Reasons {
		m.RejectReasons.WithLabelValues(r).Inc()
	}
}

// Trade counts a buy outcome.
func (m *Metrics) Trade(ev sniper.TradeEvent) {
	result := "ok"
	if ev.Err != nil {
		result = "failed"
	}
	m.Buys.WithLabelValues(result, boolLabel(ev.Fill.DryRun)).Inc()
	m.BuyAttempts.Observe(float64(ev.Attempts))
}

// Exit counts a confirmed exit.
func (m *Metrics) Exit(ev position.ExitEvent) {
	m.Exits.WithLabelValues(string(ev.Reason)).Inc()
	m.ExitPnLPct.Observe(ev.PnLPct.InexactFloat64())
}

// SellFailure counts a failed sell.
func (m *Metrics) SellFailure(f position.SellFailure) {
	m.SellFailures.WithLabelValues(boolLabel(f.Stuck)).Inc()
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("📊 Metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
