package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// alert monitor.
type Metrics struct {
	CyclesTotal   prometheus.Counter
	CycleDuration prometheus.Histogram

	// Upstream fetch metrics.
	FetchRequests *prometheus.CounterVec // labels: endpoint={station,points,forecast,alerts,postal}, outcome={success,not_found,unavailable,timeout,error}
	FetchDuration *prometheus.HistogramVec

	// Alert pipeline metrics.
	AlertsObserved   prometheus.Counter
	AlertsAnnounced  prometheus.Counter
	MalformedEntries prometheus.Counter

	// Coordinate resolution metrics.
	ResolverCache      *prometheus.CounterVec // labels: result={hit,miss}
	ResolutionFailures prometheus.Counter

	// Announcement metrics.
	AnnouncementQueueDepth   prometheus.Gauge
	AnnouncementsSpoken      *prometheus.CounterVec // labels: priority={normal,high}
	AnnouncementsInterrupted prometheus.Counter

	// Scheduler metrics.
	SchedulerState   prometheus.Gauge // 0=paused, 1=armed, 2=running
	CountdownSeconds prometheus.Gauge
}

// NewMetrics creates and registers all monitor metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_monitor",
			Name:      "cycles_total",
			Help:      "Total check cycles started.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_monitor",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete resolve-fetch-dedup-announce cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_monitor",
			Name:      "fetch_requests_total",
			Help:      "Upstream API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weather_monitor",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		AlertsObserved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_monitor",
			Name:      "alerts_observed_total",
			Help:      "Total alert entries parsed from the active-alerts feed.",
		}),
		AlertsAnnounced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_monitor",
			Name:      "alerts_announced_total",
			Help:      "Total newly observed alerts handed to the announcer.",
		}),
		MalformedEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_monitor",
			Name:      "malformed_entries_total",
			Help:      "Feed entries skipped for missing required fields.",
		}),
		ResolverCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_monitor",
			Name:      "resolver_cache_total",
			Help:      "Coordinate cache lookups by result.",
		}, []string{"result"}),
		ResolutionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_monitor",
			Name:      "resolution_failures_total",
			Help:      "Location tokens that failed every resolution strategy.",
		}),
		AnnouncementQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weather_monitor",
			Name:      "announcement_queue_depth",
			Help:      "Announcements waiting to be spoken.",
		}),
		AnnouncementsSpoken: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_monitor",
			Name:      "announcements_spoken_total",
			Help:      "Announcements delivered (spoken or logged) by priority.",
		}, []string{"priority"}),
		AnnouncementsInterrupted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_monitor",
			Name:      "announcements_interrupted_total",
			Help:      "Normal announcements cut off by a high-priority arrival.",
		}),
		SchedulerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weather_monitor",
			Name:      "scheduler_state",
			Help:      "Scheduler state: 0=paused, 1=armed, 2=running.",
		}),
		CountdownSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weather_monitor",
			Name:      "countdown_seconds",
			Help:      "Seconds until the next scheduled check.",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.FetchRequests,
		m.FetchDuration,
		m.AlertsObserved,
		m.AlertsAnnounced,
		m.MalformedEntries,
		m.ResolverCache,
		m.ResolutionFailures,
		m.AnnouncementQueueDepth,
		m.AnnouncementsSpoken,
		m.AnnouncementsInterrupted,
		m.SchedulerState,
		m.CountdownSeconds,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		CyclesTotal:              prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weather_monitor", Name: "cycles_total"}),
		CycleDuration:            prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "weather_monitor", Name: "cycle_duration_seconds"}),
		FetchRequests:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weather_monitor", Name: "fetch_requests_total"}, []string{"endpoint", "outcome"}),
		FetchDuration:            prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "weather_monitor", Name: "fetch_duration_seconds"}, []string{"endpoint"}),
		AlertsObserved:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weather_monitor", Name: "alerts_observed_total"}),
		AlertsAnnounced:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weather_monitor", Name: "alerts_announced_total"}),
		MalformedEntries:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weather_monitor", Name: "malformed_entries_total"}),
		ResolverCache:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weather_monitor", Name: "resolver_cache_total"}, []string{"result"}),
		ResolutionFailures:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weather_monitor", Name: "resolution_failures_total"}),
		AnnouncementQueueDepth:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "weather_monitor", Name: "announcement_queue_depth"}),
		AnnouncementsSpoken:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weather_monitor", Name: "announcements_spoken_total"}, []string{"priority"}),
		AnnouncementsInterrupted: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weather_monitor", Name: "announcements_interrupted_total"}),
		SchedulerState:           prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "weather_monitor", Name: "scheduler_state"}),
		CountdownSeconds:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "weather_monitor", Name: "countdown_seconds"}),
	}
}
