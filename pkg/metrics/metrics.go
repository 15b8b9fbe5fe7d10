// Package metrics exposes the registry's Prometheus instruments.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "combine_registry"

var (
	registerOnce sync.Once

	resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolutions_total",
		Help:      "Resolved inputs by match kind of the primary result",
	}, []string{"kind"})
	failures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolution_failures_total",
		Help:      "Inputs that could not be resolved, by reason",
	}, []string{"reason"})
	cacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_requests_total",
		Help:      "Result cache lookups by outcome",
	}, []string{"result"})
	corrections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "corrections_total",
		Help:      "Correction records by append outcome",
	}, []string{"status"})
	resolveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "resolve_duration_seconds",
		Help:      "Time spent resolving one uncached input",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12), // 50µs to ~100ms
	})
	referenceModels = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reference_models",
		Help:      "Canonical models in the active reference snapshot",
	})
)

// Register adds the instruments to the default Prometheus registry (idempotent).
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(resolutions, failures, cacheRequests, corrections, resolveDuration, referenceModels)
	})
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func IncResolution(kind string)   { resolutions.WithLabelValues(kind).Inc() }
func IncFailure(reason string)    { failures.WithLabelValues(reason).Inc() }
func IncCorrection(status string) { corrections.WithLabelValues(status).Inc() }

// IncCache counts one cache lookup.
func IncCache(hit bool) {
	if hit {
		cacheRequests.WithLabelValues("hit").Inc()
		return
	}
	cacheRequests.WithLabelValues("miss").Inc()
}

func ObserveResolve(d time.Duration) { resolveDuration.Observe(d.Seconds()) }
func SetReferenceModels(n int)       { referenceModels.Set(float64(n)) }
