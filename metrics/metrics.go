// Package metrics exposes Stratus's operational counters and gauges as
// Prometheus collectors, registered directly with client_golang's
// promauto/promhttp rather than through the teacher's
// metrics-registry-to-Gatherer adapter (metrics/prometheus/prometheus.go):
// Stratus has no go-ethereum metrics.Registry of its own to adapt from,
// so every collector here is declared straight against
// prometheus.DefaultRegisterer, the same library the teacher already
// depends on for its own Prometheus export.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BlocksCommitted counts successful commit_block calls, labeled by
	// the writer that produced the block (§4.1, §9 "metrics as an
	// ambient concern").
	BlocksCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stratus",
		Subsystem: "store",
		Name:      "blocks_committed_total",
		Help:      "Number of blocks committed to the versioned store, by writer role.",
	}, []string{"role"})

	// CommitConflicts counts commit_block attempts rejected because
	// header.Number didn't match head()+1 at commit time.
	CommitConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stratus",
		Subsystem: "store",
		Name:      "commit_conflicts_total",
		Help:      "Number of commit_block calls that failed with ErrConflict.",
	})

	// ExecutionOutcomes counts transaction executions by their Kind
	// (OK, Revert, InsufficientBalance, ...), per §4.2.
	ExecutionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stratus",
		Subsystem: "executor",
		Name:      "executions_total",
		Help:      "Number of transactions executed, by outcome kind.",
	}, []string{"kind"})

	// MinerTickDuration observes how long one Miner.Tick call takes,
	// from block assembly after the pending set is drained through
	// CommitBlock.
	MinerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stratus",
		Subsystem: "miner",
		Name:      "tick_duration_seconds",
		Help:      "Wall-clock duration of a single miner tick that produced a block.",
		Buckets:   prometheus.DefBuckets,
	})

	// PendingTransactions gauges the current size of the pending set,
	// mirroring stratus_pendingTransactionsCount.
	PendingTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "stratus",
		Subsystem: "miner",
		Name:      "pending_transactions",
		Help:      "Number of admitted transactions awaiting inclusion in a block.",
	})

	// ModeTransitions counts successful Leader<->Follower transitions
	// (§4.4), by destination state.
	ModeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stratus",
		Subsystem: "mode",
		Name:      "transitions_total",
		Help:      "Number of successful mode transitions, by destination state.",
	}, []string{"to"})

	// ModeContention counts -32009 rejections from a held single-flight
	// guard, the metric behind the "mode contention" seeded scenario.
	ModeContention = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stratus",
		Subsystem: "mode",
		Name:      "contention_total",
		Help:      "Number of changeToLeader/changeToFollower calls rejected because a transition was already in flight.",
	})

	// ImporterBlocksApplied counts blocks the Importer has pulled,
	// verified and committed while this node is Follower.
	ImporterBlocksApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stratus",
		Subsystem: "importer",
		Name:      "blocks_applied_total",
		Help:      "Number of blocks pulled from the leader, verified, and committed.",
	})

	// ImporterVerificationFailures counts fatal transactions_root/
	// logs_bloom/block-hash mismatches (§4.5).
	ImporterVerificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stratus",
		Subsystem: "importer",
		Name:      "verification_failures_total",
		Help:      "Number of blocks rejected because the recomputed header didn't match the leader's.",
	})
)

// Handler returns the http.Handler serving /metrics, for cmd/stratus to
// mount alongside the JSON-RPC servers.
func Handler() http.Handler {
	return promhttp.Handler()
}
