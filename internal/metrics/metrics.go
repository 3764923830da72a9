package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lgn"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is always 1; build information is carried in the labels.
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// Authentication metrics
var (
	// AuthEventsTotal counts register/login/refresh/logout/password events.
	AuthEventsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Total number of authentication events by type and outcome",
		},
		[]string{"event", "outcome"}, // outcome: success|failure
	)

	// TokensRevokedTotal counts access tokens revoked by login, refresh and logout.
	TokensRevokedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_revoked_total",
			Help:      "Total number of access tokens revoked",
		},
	)

	// TokenCacheRequestsTotal tracks Redis token-state cache lookups.
	TokenCacheRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_cache_requests_total",
			Help:      "Total number of token cache lookups by result",
		},
		[]string{"result"}, // result: hit|miss|error
	)
)

// Token cleanup job metrics
var (
	TokensPurgedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_purged_total",
			Help:      "Total number of inactive tokens deleted by the cleanup job",
		},
	)

	TokenPurgeDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_purge_duration_seconds",
			Help:      "Duration of token cleanup job execution in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	TokenPurgeErrors = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_purge_errors_total",
			Help:      "Total number of token cleanup job failures",
		},
	)
)

func RecordAuthEvent(event string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	AuthEventsTotal.WithLabelValues(event, outcome).Inc()
}

// Init registers runtime collectors and sets version information.
func Init(version, commit, buildDate string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
