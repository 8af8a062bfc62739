package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "shardmanager"

var (
	// RegistrationsTotal counts accepted Register commands.
	RegistrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "registrations_total",
			Help:      "Total number of runner registrations accepted",
		},
	)

	// UnregistrationsTotal counts runner removals, labelled by whether the
	// runner asked to leave or was evicted by the health prober.
	UnregistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "unregistrations_total",
			Help:      "Total number of runner removals",
		},
		[]string{"reason"}, // request/evicted
	)

	// RebalanceRoundsTotal counts rebalance rounds that committed at least
	// one move; paused rounds and rounds with nothing to move are not
	// counted.
	RebalanceRoundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rebalance_rounds_total",
			Help:      "Total number of rebalance rounds that committed moves",
		},
	)

	// ShardMovesTotal counts committed shard moves by kind.
	ShardMovesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "shard_moves_total",
			Help:      "Total number of committed shard moves",
		},
		[]string{"kind"}, // assign/vacate
	)

	// PersistFailuresTotal counts failed snapshot writes (before retry).
	PersistFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "persist_failures_total",
			Help:      "Total number of failed state persistence attempts",
		},
	)

	// HealthStrikesTotal counts failed health pings.
	HealthStrikesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "health_strikes_total",
			Help:      "Total number of failed health pings",
		},
	)

	// RunnersGauge tracks the current registered runner count.
	RunnersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "runners",
			Help:      "Number of currently registered runners",
		},
	)

	// UnassignedShardsGauge tracks how many shards currently have no owner.
	UnassignedShardsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "shards_unassigned",
			Help:      "Number of shards with no current owner",
		},
	)

	// CommitVersionGauge exports the manager's monotonic commit counter.
	CommitVersionGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "commit_version",
			Help:      "Current in-memory commit version",
		},
	)

	// PersistedVersionGauge exports the durable-version watermark.
	PersistedVersionGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "persisted_version",
			Help:      "Commit version most recently written to storage",
		},
	)
)
