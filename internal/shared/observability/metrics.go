package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by the counters below.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeTimeout  = "timeout"
	OutcomeRejected = "rejected"
	OutcomeStale    = "stale"
	OutcomeRetried  = "retried"
)

// Metrics definitions
var (
	AdapterRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coderefactor_adapter_runs_total",
		Help: "Adapter invocations by adapter and outcome.",
	}, []string{"adapter", "outcome"})

	AdapterDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coderefactor_adapter_seconds",
		Help:    "Time spent inside a single adapter invocation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"adapter"})

	MalformedDiagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coderefactor_malformed_diagnostics_total",
		Help: "Diagnostics that arrived without a usable location.",
	}, []string{"adapter"})

	IssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coderefactor_issues_total",
		Help: "Issues reported after aggregation, by severity.",
	}, []string{"severity"})

	TruncatedResultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coderefactor_truncated_results_total",
		Help: "Analysis results cut at the per-unit issue cap.",
	})

	UnitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coderefactor_unit_seconds",
		Help:    "Wall-clock time to aggregate one compilation unit.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	FixRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coderefactor_fix_requests_total",
		Help: "Fix requests by final broker outcome.",
	}, []string{"outcome"})

	CommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coderefactor_commits_total",
		Help: "Commit and rollback attempts by outcome.",
	}, []string{"outcome"})

	OracleCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coderefactor_oracle_calls_total",
		Help: "Suggestion oracle calls by outcome.",
	}, []string{"outcome"})

	HistoryWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coderefactor_history_writes_total",
		Help: "Persisted analysis runs by outcome.",
	}, []string{"outcome"})
	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coderefactor_watcher_events_total",
		Help: "File system events seen by the project watcher.",
	})
)
