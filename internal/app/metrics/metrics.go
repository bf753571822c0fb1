// Package metrics exposes Prometheus collectors for the exchange layer.
package metrics

import (
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "exchange_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "exchange_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	listingOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange_layer",
			Subsystem: "market",
			Name:      "listing_operations_total",
			Help:      "Total listing operations by kind and outcome.",
		},
		[]string{"op", "outcome"},
	)

	salesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exchange_layer",
			Subsystem: "market",
			Name:      "sales_total",
			Help:      "Total settlement attempts by outcome.",
		},
		[]string{"outcome"},
	)

	settlementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "exchange_layer",
			Subsystem: "market",
			Name:      "settlement_duration_seconds",
			Help:      "Duration of the full purchase settlement path.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	accruedFees = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "exchange_layer",
			Subsystem: "market",
			Name:      "accrued_fees",
			Help:      "Current accrued operator fee revenue.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		listingOps,
		salesTotal,
		settlementDuration,
		accruedFees,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordListingOp records a listing lifecycle operation outcome.
func RecordListingOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	listingOps.WithLabelValues(op, outcome).Inc()
}

// RecordSale records a settlement attempt and its duration.
func RecordSale(duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	salesTotal.WithLabelValues(outcome).Inc()
	settlementDuration.Observe(duration.Seconds())
}

// SetAccruedFees updates the accrued fee gauge. Values beyond float64
// precision are reported approximately.
func SetAccruedFees(amount *big.Int) {
	if amount == nil {
		return
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	accruedFees.Set(f)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "collections":
		if len(parts) == 1 {
			return "/collections"
		}
		if len(parts) == 2 {
			return "/collections/:collection"
		}
		resource := parts[2]
		if len(parts) == 3 {
			return "/collections/:collection/" + resource
		}
		if len(parts) >= 5 && parts[4] == "buy" {
			return "/collections/:collection/" + resource + "/:token/buy"
		}
		return "/collections/:collection/" + resource + "/:token"
	case "admin":
		if len(parts) == 1 {
			return "/admin"
		}
		return "/admin/" + parts[1]
	default:
		return "/" + parts[0]
	}
}
