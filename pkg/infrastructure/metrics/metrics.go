// Package metrics exposes the scheduler and cache as Prometheus
// gauges/counters (SPEC_FULL.md §4.3a), scraped via GET /metrics. The
// promauto registration pattern mirrors how the rest of the retrieved
// corpus wires prometheus/client_golang into a worker engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SchedulerSnapshot is the subset of scheduler.StatusReport metrics cares
// about; kept as a plain struct rather than importing pkg/judge/scheduler
// so this package has no upward dependency on the judging core.
type SchedulerSnapshot struct {
	QueueSize     int
	ActiveWorkers int
	Concurrency   int
}

// CacheSnapshot is the subset of cache.Stats metrics cares about.
type CacheSnapshot struct {
	Count      int
	TotalBytes int64
}

// Metrics bundles every gauge/counter judged exposes. Each instance
// owns its own registry so tests can construct one without colliding
// with the process-wide default registerer.
type Metrics struct {
	Registry *prometheus.Registry

	QueueSize       prometheus.Gauge
	ActiveWorkers   prometheus.Gauge
	Concurrency     prometheus.Gauge
	TasksCompleted  prometheus.Counter
	TasksFailed     prometheus.Counter
	CacheEntries    prometheus.Gauge
	CacheBytes      prometheus.Gauge
	TaskDuration    prometheus.Histogram
	HTTPRequests    *prometheus.CounterVec
}

// New builds a Metrics bundle registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "judge_queue_size",
			Help: "Number of tasks waiting in the priority queue.",
		}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "judge_active_workers",
			Help: "Number of tasks currently executing.",
		}),
		Concurrency: factory.NewGauge(prometheus.GaugeOpts{
			Name: "judge_concurrency",
			Help: "Current worker concurrency cap.",
		}),
		TasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "judge_tasks_completed_total",
			Help: "Tasks that reached status=completed.",
		}),
		TasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "judge_tasks_failed_total",
			Help: "Tasks that reached status=failed.",
		}),
		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "judge_cache_entries",
			Help: "Live artifact cache entries.",
		}),
		CacheBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "judge_cache_bytes",
			Help: "Total bytes held by live artifact cache entries.",
		}),
		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "judge_task_duration_seconds",
			Help:    "Task handler execution time from startedAt to completedAt.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_http_requests_total",
			Help: "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
	}
}

// Handler returns the promhttp handler for this bundle's registry,
// mounted at GET /metrics alongside the plain-JSON GET /status.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveTaskTerminal records a terminal task transition: the
// completed/failed counter and, when startedAt is known, the duration
// histogram.
func (m *Metrics) ObserveTaskTerminal(failed bool, durationSeconds float64) {
	if failed {
		m.TasksFailed.Inc()
	} else {
		m.TasksCompleted.Inc()
	}
	if durationSeconds > 0 {
		m.TaskDuration.Observe(durationSeconds)
	}
}

// StartPolling periodically refreshes the queue/cache gauges from live
// snapshots, since GET /status and GET /metrics read the same
// underlying state but promhttp has no hook to pull it lazily per
// scrape without coupling this package to the scheduler/cache types.
// It stops when stop is closed.
func (m *Metrics) StartPolling(interval time.Duration, stop <-chan struct{}, scheduler func() SchedulerSnapshot, cache func() CacheSnapshot) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s := scheduler()
				m.QueueSize.Set(float64(s.QueueSize))
				m.ActiveWorkers.Set(float64(s.ActiveWorkers))
				m.Concurrency.Set(float64(s.Concurrency))

				c := cache()
				m.CacheEntries.Set(float64(c.Count))
				m.CacheBytes.Set(float64(c.TotalBytes))
			}
		}
	}()
}
