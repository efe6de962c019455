package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type saleMetrics struct {
	purchases  *prometheus.CounterVec
	tokensSold *prometheus.GaugeVec
	raised     *prometheus.GaugeVec
	level      *prometheus.GaugeVec
	settled    *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	saleMetricsOnce sync.Once
	saleRegistry    *saleMetrics
)

// RPCMetrics returns the lazily-initialised registry used to record JSON-RPC
// activity.
func RPCMetrics() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dgx",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dgx",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and status code.",
			}, []string{"method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dgx",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dgx",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"method", "reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of an RPC request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *rpcMetrics) Observe(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied method.
// Reasons should be stable strings such as "rate_limit" so dashboards and
// alerts remain consistent.
func (m *rpcMetrics) RecordThrottle(method, reason string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(method, reason).Inc()
}

// SaleMetrics exposes the singleton registry tracking sale progress.
func SaleMetrics() *saleMetrics {
	saleMetricsOnce.Do(func() {
		saleRegistry = &saleMetrics{
			purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dgx",
				Subsystem: "presale",
				Name:      "purchases_total",
				Help:      "Count of committed purchases segmented by sale and outcome.",
			}, []string{"sale", "outcome"}),
			tokensSold: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "dgx",
				Subsystem: "presale",
				Name:      "tokens_sold",
				Help:      "Cumulative sale token units allocated per sale.",
			}, []string{"sale"}),
			raised: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "dgx",
				Subsystem: "presale",
				Name:      "payment_raised",
				Help:      "Cumulative payment units held in custody per sale.",
			}, []string{"sale"}),
			level: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "dgx",
				Subsystem: "presale",
				Name:      "current_level",
				Help:      "Active pricing tier per sale.",
			}, []string{"sale"}),
			settled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dgx",
				Subsystem: "presale",
				Name:      "settlements_total",
				Help:      "Count of terminal settlements segmented by sale and kind (claim or refund).",
			}, []string{"sale", "kind"}),
		}
		prometheus.MustRegister(
			saleRegistry.purchases,
			saleRegistry.tokensSold,
			saleRegistry.raised,
			saleRegistry.level,
			saleRegistry.settled,
		)
	})
	return saleRegistry
}

// RecordPurchase updates the purchase counters and progress gauges after a
// committed or rejected purchase.
func (m *saleMetrics) RecordPurchase(sale string, err error) {
	if m == nil {
		return
	}
	label := labelSale(sale)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.purchases.WithLabelValues(label, outcome).Inc()
}

// RecordProgress refreshes the per-sale progress gauges.
func (m *saleMetrics) RecordProgress(sale string, tokensSold, raised uint64, level uint8) {
	if m == nil {
		return
	}
	label := labelSale(sale)
	m.tokensSold.WithLabelValues(label).Set(float64(tokensSold))
	m.raised.WithLabelValues(label).Set(float64(raised))
	m.level.WithLabelValues(label).Set(float64(level))
}

// RecordSettlement counts a terminal claim or refund.
func (m *saleMetrics) RecordSettlement(sale, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.settled.WithLabelValues(labelSale(sale), kind).Inc()
}

func labelSale(sale string) string {
	trimmed := strings.TrimSpace(sale)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
