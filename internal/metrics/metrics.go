// Package metrics exposes Prometheus instruments for the library service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const namespace = "library"

// Metrics holds every instrument the service records.
type Metrics struct {
	borrows         prometheus.Counter
	returns         prometheus.Counter
	rejections      *prometheus.CounterVec
	deletions       *prometheus.CounterVec
	finesCents      prometheus.Counter
	overdueMarked   prometheus.Counter
	eventsPublished *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	sweepDuration   prometheus.Histogram
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		borrows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circulation",
			Name:      "borrows_total",
			Help:      "Books lent out.",
		}),
		returns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circulation",
			Name:      "returns_total",
			Help:      "Books returned.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circulation",
			Name:      "borrow_rejections_total",
			Help:      "Borrow requests refused, by reason.",
		}, []string{"reason"}),
		deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circulation",
			Name:      "transaction_deletions_total",
			Help:      "Transactions deleted, by status at deletion.",
		}, []string{"status"}),
		finesCents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circulation",
			Name:      "fines_cents_total",
			Help:      "Fines assessed on return, in cents.",
		}),
		overdueMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circulation",
			Name:      "overdue_marked_total",
			Help:      "Loans moved to overdue by the sweep.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "circulation",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of overdue sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events handed to the broker, by type and result.",
		}, []string{"event_type", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.borrows,
		m.returns,
		m.rejections,
		m.deletions,
		m.finesCents,
		m.overdueMarked,
		m.sweepDuration,
		m.eventsPublished,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Borrowed() {
	if m == nil {
		return
	}
	m.borrows.Inc()
}

// Returned records a completed loan and the fine it produced.
func (m *Metrics) Returned(fineCents int64) {
	if m == nil {
		return
	}
	m.returns.Inc()
	if fineCents > 0 {
		m.finesCents.Add(float64(fineCents))
	}
}

func (m *Metrics) BorrowRejected(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) TransactionDeleted(status string) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(status).Inc()
}

// Swept records one overdue sweep.
func (m *Metrics) Swept(marked int, took time.Duration) {
	if m == nil {
		return
	}
	m.overdueMarked.Add(float64(marked))
	m.sweepDuration.Observe(took.Seconds())
}

// EventPublished records the outcome of one publish attempt.
func (m *Metrics) EventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(eventType, result).Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// StatsFunc reports the total and active number of books.
type StatsFunc func(ctx context.Context) (total, active int64, err error)

// CatalogCollector reports catalog size gauges at scrape time.
type CatalogCollector struct {
	stats  StatsFunc
	log    *zap.Logger
	total  *prometheus.Desc
	active *prometheus.Desc
}

// NewCatalogCollector creates a collector backed by stats.
func NewCatalogCollector(stats StatsFunc, log *zap.Logger) *CatalogCollector {
	return &CatalogCollector{
		stats: stats,
		log:   log,
		total: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "catalog", "books"),
			"Books in the catalog, including soft-deleted ones.",
			nil, nil,
		),
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "catalog", "active_books"),
			"Active books in the catalog.",
			nil, nil,
		),
	}
}

func (c *CatalogCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.active
}

func (c *CatalogCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	total, active, err := c.stats(ctx)
	if err != nil {
		c.log.Warn("Failed to collect catalog stats", zap.Error(err))
		return
	}
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(total))
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(active))
}
