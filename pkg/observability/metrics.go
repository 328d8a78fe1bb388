package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the suspension core.
type Metrics struct {
	// Suspension engine
	SuspensionsTotal *prometheus.CounterVec
	ResumesTotal     *prometheus.CounterVec

	// Revocation cascade
	RevocationAttemptsTotal  prometheus.Counter
	RevocationsDegradedTotal prometheus.Counter
	CredentialsRevokedTotal  prometheus.Counter

	// Snapshots
	SnapshotsCapturedTotal *prometheus.CounterVec
	SnapshotsConsumedTotal *prometheus.CounterVec

	// Retention sweeper
	SweepDeletedTotal  *prometheus.CounterVec
	SweepFailuresTotal prometheus.Counter

	// Database pool
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		SuspensionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_suspensions_total",
				Help: "Total number of suspend operations by outcome",
			},
			[]string{"outcome"},
		),
		ResumesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_resumes_total",
				Help: "Total number of resume operations by outcome",
			},
			[]string{"outcome"},
		),
		RevocationAttemptsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_revocation_attempts_total",
				Help: "Total number of credential revocation cascade attempts",
			},
		),
		RevocationsDegradedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_revocations_degraded_total",
				Help: "Revocation cascades that exhausted all retries",
			},
		),
		CredentialsRevokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_credentials_revoked_total",
				Help: "Total number of credentials revoked by the cascade",
			},
		),
		SnapshotsCapturedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_snapshots_captured_total",
				Help: "State snapshots captured by subject type",
			},
			[]string{"subject_type"},
		),
		SnapshotsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_snapshots_consumed_total",
				Help: "State snapshots consumed by resume operations",
			},
			[]string{"subject_type"},
		),
		SweepDeletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_sweep_deleted_total",
				Help: "Rows deleted by the retention sweeper by table",
			},
			[]string{"table"},
		),
		SweepFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_sweep_failures_total",
				Help: "Retention sweep runs that failed",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_idle",
				Help: "Idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.SuspensionsTotal,
		m.ResumesTotal,
		m.RevocationAttemptsTotal,
		m.RevocationsDegradedTotal,
		m.CredentialsRevokedTotal,
		m.SnapshotsCapturedTotal,
		m.SnapshotsConsumedTotal,
		m.SweepDeletedTotal,
		m.SweepFailuresTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the Prometheus scrape handler for the given registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
