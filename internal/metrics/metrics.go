// Package metrics exposes prometheus instrumentation for the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every pagedb collector. A dedicated registry keeps the
// /metrics output to this process's own instrumentation.
var Registry = prometheus.NewRegistry()

var (
	QueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pagedb_queries_total",
		Help: "Statements executed, by outcome",
	}, []string{"status"})

	QueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagedb_query_duration_seconds",
		Help:    "End-to-end statement latency",
		Buckets: prometheus.DefBuckets,
	})

	BufferHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagedb_buffer_hits_total",
		Help: "Buffer pool fetches served from memory",
	})

	BufferMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagedb_buffer_misses_total",
		Help: "Buffer pool fetches that went to disk",
	})

	BufferEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagedb_buffer_evictions_total",
		Help: "Frames evicted by CLOCK replacement",
	})

	WALAppends = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagedb_wal_records_total",
		Help: "Log records appended to the WAL buffer",
	})

	WALFlushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagedb_wal_flushes_total",
		Help: "WAL buffer flushes (fsync included)",
	})

	LockWaits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagedb_lock_waits_total",
		Help: "Lock requests that had to queue",
	})

	DeadlocksResolved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagedb_deadlocks_resolved_total",
		Help: "Deadlock cycles broken by aborting a victim",
	})

	TxCommits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagedb_tx_commits_total",
		Help: "Transactions committed",
	})

	TxAborts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagedb_tx_aborts_total",
		Help: "Transactions aborted",
	})
)

func init() {
	Registry.MustRegister(
		QueriesTotal, QueryDuration,
		BufferHits, BufferMisses, BufferEvictions,
		WALAppends, WALFlushes,
		LockWaits, DeadlocksResolved,
		TxCommits, TxAborts,
	)
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
