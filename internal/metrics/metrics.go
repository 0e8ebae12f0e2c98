package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const namespace = "coupon_service"

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	outcomes      *prometheus.CounterVec
	dropped       prometheus.Counter
	discounts     prometheus.Histogram
	httpDurations *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Coupon evaluations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revalidation_dropped_total",
			Help:      "Applied codes pruned by revalidation.",
		}),
		discounts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discount_amount",
			Help:      "Discount granted per successful apply, in currency units.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.outcomes, m.dropped, m.discounts, m.httpDurations)
	return m
}

// ObserveOutcome counts one evaluation. outcome is "applied" or an error kind.
func (m *Metrics) ObserveOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveDiscount(amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.discounts.Observe(amount.InexactFloat64())
}

func (m *Metrics) ObserveDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.Add(float64(n))
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDurations.WithLabelValues(method, route, statusClass(status)).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
