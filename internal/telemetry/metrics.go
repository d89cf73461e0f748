package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	RunsStarted      = prometheus.NewCounter(prometheus.CounterOpts{Name: "studio_runs_started_total", Help: "Generation runs started"})
	RunsSucceeded    = prometheus.NewCounter(prometheus.CounterOpts{Name: "studio_runs_succeeded_total", Help: "Runs that produced a shared artifact"})
	RunsDegraded     = prometheus.NewCounter(prometheus.CounterOpts{Name: "studio_runs_degraded_total", Help: "Runs that produced only a local artifact"})
	RunsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "studio_runs_failed_total", Help: "Runs that failed before a local artifact existed"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "studio_rate_limit_rejects_total", Help: "Cloud operations skipped by the client-side limiter"})

	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studio_stage_duration_seconds",
		Help:    "Wall-clock duration per pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"stage", "outcome"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			RunsStarted,
			RunsSucceeded,
			RunsDegraded,
			RunsFailed,
			RateLimitRejects,
			StageDuration,
		)
	})
	return promhttp.Handler()
}
