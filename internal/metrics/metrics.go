// Package metrics exposes Prometheus metrics for the admin panel:
// update and handler counters, permission check results and the state of
// the in-process caches.
package metrics

import (
	"time"

	"github.com/maxbolgarin/lang"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/armorybot/armory/internal/cache"
)

const defaultSubsystem = "armory"

// HandlerDurationBuckets covers handler execution time from 1ms to 10s.
var HandlerDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Config configures metric registration.
// A nil Registry disables collection entirely.
type Config struct {
	Registry    *prometheus.Registry
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

// Metrics holds all Prometheus metrics for the bot system.
type Metrics struct {
	Config

	updatesTotal           prometheus.Counter
	handlerDurationSeconds prometheus.Histogram
	errorsTotal            *prometheus.CounterVec

	permissionChecksTotal  *prometheus.CounterVec
	moderationActionsTotal *prometheus.CounterVec
	broadcastMessagesTotal prometheus.Counter
	digestRunsTotal        prometheus.Counter

	cacheHits      *prometheus.GaugeVec
	cacheMisses    *prometheus.GaugeVec
	cacheEvictions *prometheus.GaugeVec
	cacheSize      *prometheus.GaugeVec

	disabled bool
}

// New creates and registers all metrics.
// If config.Registry is nil, returns a disabled instance whose methods
// are all no-ops.
func New(config Config) *Metrics {
	if config.Registry == nil {
		return &Metrics{disabled: true}
	}

	m := &Metrics{Config: config}

	m.updatesTotal = m.newSimpleCounter("updates_total", "Total number of updates received")
	m.handlerDurationSeconds = m.newSimpleHistogram("handler_duration_seconds", "Handler execution duration in seconds", HandlerDurationBuckets)
	m.errorsTotal = m.newCounter("errors_total", "Total number of errors by type", "type")

	m.permissionChecksTotal = m.newCounter("permission_checks_total", "Total number of permission checks by result", "result")
	m.moderationActionsTotal = m.newCounter("moderation_actions_total", "Total number of moderation actions by kind", "action")
	m.broadcastMessagesTotal = m.newSimpleCounter("broadcast_messages_total", "Total number of broadcast messages sent")
	m.digestRunsTotal = m.newSimpleCounter("digest_runs_total", "Total number of digest runs")

	m.cacheHits = m.newGauge("cache_hits_total", "Cumulative cache hits by cache name", "cache")
	m.cacheMisses = m.newGauge("cache_misses_total", "Cumulative cache misses by cache name", "cache")
	m.cacheEvictions = m.newGauge("cache_evictions_total", "Cumulative cache evictions by cache name", "cache")
	m.cacheSize = m.newGauge("cache_size", "Current number of cached entries by cache name", "cache")

	return m
}

// IncUpdate increments the total updates counter.
func (m *Metrics) IncUpdate() {
	if m == nil || m.disabled {
		return
	}
	m.updatesTotal.Inc()
}

// ObserveHandlerDuration records one handler execution duration.
func (m *Metrics) ObserveHandlerDuration(d time.Duration) {
	if m == nil || m.disabled {
		return
	}
	m.handlerDurationSeconds.Observe(d.Seconds())
}

// IncError increments the error counter for the given error type.
func (m *Metrics) IncError(errorType string) {
	if m == nil || m.disabled {
		return
	}
	m.errorsTotal.WithLabelValues(errorType).Inc()
}

// IncPermissionCheck records one permission check result.
func (m *Metrics) IncPermissionCheck(allowed bool) {
	if m == nil || m.disabled {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.permissionChecksTotal.WithLabelValues(result).Inc()
}

// IncModerationAction records one moderation action by kind.
func (m *Metrics) IncModerationAction(action string) {
	if m == nil || m.disabled {
		return
	}
	m.moderationActionsTotal.WithLabelValues(action).Inc()
}

// IncBroadcastMessage counts one delivered broadcast message.
func (m *Metrics) IncBroadcastMessage() {
	if m == nil || m.disabled {
		return
	}
	m.broadcastMessagesTotal.Inc()
}

// IncDigestRun counts one digest run.
func (m *Metrics) IncDigestRun() {
	if m == nil || m.disabled {
		return
	}
	m.digestRunsTotal.Inc()
}

// SetCacheStats publishes the counters of one named cache.
// The underlying caches keep cumulative counters, so gauges are set
// rather than incremented.
func (m *Metrics) SetCacheStats(name string, stats cache.Stats) {
	if m == nil || m.disabled {
		return
	}
	m.cacheHits.WithLabelValues(name).Set(float64(stats.Hits))
	m.cacheMisses.WithLabelValues(name).Set(float64(stats.Misses))
	m.cacheEvictions.WithLabelValues(name).Set(float64(stats.Evictions))
}

// SetCacheSize publishes the current entry count of one named cache.
func (m *Metrics) SetCacheSize(name string, size int) {
	if m == nil || m.disabled {
		return
	}
	m.cacheSize.WithLabelValues(name).Set(float64(size))
}

func (m *Metrics) newCounter(name, help string, labelNames ...string) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.Namespace,
			Subsystem:   lang.Check(m.Subsystem, defaultSubsystem),
			Name:        name,
			Help:        help,
			ConstLabels: m.ConstLabels,
		},
		labelNames,
	)
	m.Registry.MustRegister(counter)
	return counter
}

func (m *Metrics) newGauge(name, help string, labelNames ...string) *prometheus.GaugeVec {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   m.Namespace,
			Subsystem:   lang.Check(m.Subsystem, defaultSubsystem),
			Name:        name,
			Help:        help,
			ConstLabels: m.ConstLabels,
		},
		labelNames,
	)
	m.Registry.MustRegister(gauge)
	return gauge
}

func (m *Metrics) newSimpleCounter(name, help string) prometheus.Counter {
	counter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   m.Namespace,
			Subsystem:   lang.Check(m.Subsystem, defaultSubsystem),
			Name:        name,
			Help:        help,
			ConstLabels: m.ConstLabels,
		},
	)
	m.Registry.MustRegister(counter)
	return counter
}

func (m *Metrics) newSimpleHistogram(name, help string, buckets []float64) prometheus.Histogram {
	histogram := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   m.Namespace,
			Subsystem:   lang.Check(m.Subsystem, defaultSubsystem),
			Name:        name,
			Help:        help,
			ConstLabels: m.ConstLabels,
			Buckets:     buckets,
		},
	)
	m.Registry.MustRegister(histogram)
	return histogram
}
