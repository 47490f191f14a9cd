// Package metrics exposes Prometheus instrumentation for the node:
// commit latency, query latency, consensus round counts, and reasoner
// cache efficiency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commitLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rdfchain_commit_latency_seconds",
		Help:    "Time spent in writer.Commit applying a block to the graph store and chain.",
		Buckets: prometheus.DefBuckets,
	})

	queryLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rdfchain_query_latency_seconds",
		Help:    "Time to resolve a validated pattern query against the committed graph set.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	consensusRoundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rdfchain_consensus_rounds_total",
		Help: "Consensus rounds concluded, labeled by protocol and outcome.",
	}, []string{"protocol", "outcome"})

	consensusViewChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rdfchain_consensus_view_changes_total",
		Help: "View changes triggered by PBFT-lite rounds.",
	})

	reasonerCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rdfchain_reasoner_cache_hits_total",
		Help: "Reasoner materialization cache hits.",
	})

	reasonerCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rdfchain_reasoner_cache_misses_total",
		Help: "Reasoner materialization cache misses.",
	})

	chainHeightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rdfchain_chain_height",
		Help: "Index of the current chain tip.",
	})
)

// ObserveCommitLatency records the wall-clock time one writer.Commit call
// took; the block-log append that follows it is not included.
func ObserveCommitLatency(d time.Duration) {
	commitLatencySeconds.Observe(d.Seconds())
}

// ObserveQueryLatency records how long a pattern query took, labeled by
// whether it was accepted or rejected by the validator.
func ObserveQueryLatency(d time.Duration, accepted bool) {
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	queryLatencySeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordConsensusRound increments the round counter for the given
// protocol ("poa" or "pbft") and outcome ("finalized", "rejected",
// "timeout").
func RecordConsensusRound(protocol, outcome string) {
	consensusRoundsTotal.WithLabelValues(protocol, outcome).Inc()
}

// RecordViewChange increments the PBFT-lite view-change counter.
func RecordViewChange() {
	consensusViewChangesTotal.Inc()
}

// RecordReasonerCacheHit increments the reasoner cache hit counter.
func RecordReasonerCacheHit() {
	reasonerCacheHitsTotal.Inc()
}

// RecordReasonerCacheMiss increments the reasoner cache miss counter.
func RecordReasonerCacheMiss() {
	reasonerCacheMissesTotal.Inc()
}

// SetChainHeight reports the current chain tip index.
func SetChainHeight(index uint64) {
	chainHeightGauge.Set(float64(index))
}
