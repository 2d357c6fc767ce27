package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Export metrics
	ExportsStarted  prometheus.Counter
	ExportsPartial  prometheus.Counter
	ExportDuration  prometheus.Histogram
	ExportLedgerLen prometheus.Histogram

	// Fetch metrics
	FetchPages     *prometheus.CounterVec
	FetchRetries   *prometheus.CounterVec
	FetchErrors    *prometheus.CounterVec
	RateLimitWaits *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	PagesTruncated *prometheus.CounterVec

	// Classification metrics
	TransactionsClassified *prometheus.CounterVec
	AmbiguityFlags         *prometheus.CounterVec
	SourceAnomalies        *prometheus.CounterVec

	// Price metrics
	PriceLookups   *prometheus.CounterVec
	PriceCacheHits *prometheus.CounterVec

	// Ops HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics on reg. Tests pass a fresh registry so
// repeated construction never collides.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Export metrics
		ExportsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chainledger_exports_started_total",
			Help: "Total number of export runs started",
		}),
		ExportsPartial: factory.NewCounter(prometheus.CounterOpts{
			Name: "chainledger_exports_partial_total",
			Help: "Total number of export runs that finished partial",
		}),
		ExportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chainledger_export_duration_seconds",
			Help:    "Duration of full export runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		ExportLedgerLen: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chainledger_export_ledger_transactions",
			Help:    "Transactions per reconciled ledger",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
		}),

		// Fetch metrics
		FetchPages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainledger_fetch_pages_total",
				Help: "Total pages fetched per source and category",
			},
			[]string{"source", "category"},
		),
		FetchRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainledger_fetch_retries_total",
				Help: "Total fetch retries per source",
			},
			[]string{"source"},
		),
		FetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainledger_fetch_errors_total",
				Help: "Total terminal fetch errors by source and kind",
			},
			[]string{"source", "kind"},
		),
		RateLimitWaits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainledger_rate_limit_waits_total",
				Help: "Total full cooldowns taken after rate-limit responses",
			},
			[]string{"source"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chainledger_fetch_duration_seconds",
				Help:    "Duration of one category fetch including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source", "category"},
		),
		PagesTruncated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainledger_fetch_pages_truncated_total",
				Help: "Fetches stopped at the page safety limit",
			},
			[]string{"source", "category"},
		),

		// Classification metrics
		TransactionsClassified: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainledger_transactions_classified_total",
				Help: "Total canonical transactions by type",
			},
			[]string{"type"},
		),
		AmbiguityFlags: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainledger_ambiguity_flags_total",
				Help: "Total ambiguity flags by reason",
			},
			[]string{"reason"},
		),
		SourceAnomalies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainledger_source_anomalies_total",
				Help: "Total malformed-field substitutions by source",
			},
			[]string{"source"},
		),

		// Price metrics
		PriceLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainledger_price_lookups_total",
				Help: "Total price history lookups by currency",
			},
			[]string{"currency"},
		),
		PriceCacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainledger_price_cache_hits_total",
				Help: "Price history lookups served from cache",
			},
			[]string{"currency"},
		),

		// Ops HTTP metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chainledger_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}
