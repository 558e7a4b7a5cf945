package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
)

const namespace = "orgsync"

// Collector records destination API traffic and reconciliation runs.
// All methods are safe to call on a nil *Collector.
type Collector struct {
	apiRequests  *prometheus.CounterVec
	apiRetries   *prometheus.CounterVec
	apiLatency   prometheus.Histogram
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	mutations    *prometheus.CounterVec
	runFailures  prometheus.Counter
	inProgress   prometheus.Gauge
	lastFinished prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics to reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Destination API responses by method and status code",
		}, []string{"method", "status_code"}),
		apiRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Destination API retries by reason",
		}, []string{"reason"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_latency_seconds",
			Help:      "Destination API round trip latency",
			Buckets:   prometheus.DefBuckets,
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished reconciliation runs by trigger and state",
		}, []string{"trigger", "state"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall clock duration of reconciliation runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Destination mutations applied by kind",
		}, []string{"kind"}),
		runFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_failures_total",
			Help:      "Per-entity failures skipped during runs",
		}),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a reconciliation run is executing",
		}),
		lastFinished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_finished_timestamp_seconds",
			Help:      "Unix time of the last finished run",
		}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiRetries,
		c.apiLatency,
		c.runs,
		c.runDuration,
		c.mutations,
		c.runFailures,
		c.inProgress,
		c.lastFinished,
	)

	return c
}

// RecordAPIResponse counts one destination API response
func (c *Collector) RecordAPIResponse(method string, statusCode int, latency time.Duration) {
	if c == nil {
		return
	}
	c.apiRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.apiLatency.Observe(latency.Seconds())
}

// RecordAPIRetry counts a retry, with reason "unauthorized" or "rate_limited"
func (c *Collector) RecordAPIRetry(reason string) {
	if c == nil {
		return
	}
	c.apiRetries.WithLabelValues(reason).Inc()
}

// RecordRunStarted flags a run as executing
func (c *Collector) RecordRunStarted() {
	if c == nil {
		return
	}
	c.inProgress.Set(1)
}

// RecordRunFinished records the outcome and counters of a finished run
func (c *Collector) RecordRunFinished(run *model.Run) {
	if c == nil || run == nil {
		return
	}
	c.inProgress.Set(0)
	c.runs.WithLabelValues(run.Trigger.String(), string(run.State)).Inc()
	c.runDuration.Observe(run.Duration().Seconds())
	c.lastFinished.Set(float64(run.FinishedAt.Unix()))

	s := run.Stats
	for kind, n := range map[string]int{
		"user_create":     s.UsersCreated,
		"user_update":     s.UsersUpdated,
		"user_activate":   s.UsersActivated,
		"user_deactivate": s.UsersDeactivated,
		"team_create":     s.TeamsCreated,
		"team_update":     s.TeamsUpdated,
		"team_remove":     s.TeamsRemoved,
		"team_sort":       s.TeamsSorted,
		"member_add":      s.MembersAdded,
		"member_remove":   s.MembersRemoved,
	} {
		if n > 0 {
			c.mutations.WithLabelValues(kind).Add(float64(n))
		}
	}
	c.runFailures.Add(float64(s.Failures))
}

// Handler returns the Prometheus scrape handler
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
