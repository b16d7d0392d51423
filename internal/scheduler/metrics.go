package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's scheduler instrumentation.
type Metrics struct {
	// PassDuration observes how long each pass kind takes.
	PassDuration *prometheus.HistogramVec
	// DroppedTriggers counts triggers dropped because a pass of the
	// same kind was already running.
	DroppedTriggers *prometheus.CounterVec
	// InstancesCreated counts bill instances created by generation
	// passes.
	InstancesCreated prometheus.Counter
	// TransactionsIngested counts newly ingested ledger transactions.
	TransactionsIngested prometheus.Counter
	// SyncAccountErrors counts per-account sync failures.
	SyncAccountErrors prometheus.Counter
}

// NewMetrics registers the scheduler metrics with the registerer. Pass
// prometheus.DefaultRegisterer outside of tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PassDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_pass_duration_seconds",
			Help:    "Duration of scheduler passes by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pass"}),
		DroppedTriggers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_triggers_dropped_total",
			Help: "Triggers dropped because the pass was already running.",
		}, []string{"pass"}),
		InstancesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_instances_created_total",
			Help: "Bill instances created by generation passes.",
		}),
		TransactionsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_transactions_ingested_total",
			Help: "Ledger transactions newly ingested by sync passes.",
		}),
		SyncAccountErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_sync_account_errors_total",
			Help: "Per-account failures during sync passes.",
		}),
	}
}
