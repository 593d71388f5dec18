// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_jobs_total",
		Help: "Finished job runs by codec and result",
	}, []string{"codec", "result"}) // result=finished|cancelled|noop|retry|failed

	jobFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_job_failures_total",
		Help: "Job failures by taxonomy code",
	}, []string{"codec", "code"})

	renditionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_renditions_total",
		Help: "Renditions uploaded by kind and codec",
	}, []string{"kind", "codec"}) // kind=audio|video|manifest

	renditionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transcoderd_rendition_duration_seconds",
		Help:    "Encode+package+upload time of one rendition",
		Buckets: prometheus.ExponentialBuckets(5, 2, 12),
	}, []string{"kind", "codec"})

	segmentRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_segment_retries_total",
		Help: "Segment re-attempts in split encoding by reason",
	}, []string{"reason"}) // reason=retry_requested|timed_out|exit_code

	stateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_state_transitions_total",
		Help: "Orchestrator state transitions",
	}, []string{"from", "to"})

	resultsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_results_published_total",
		Help: "Result messages published by event",
	}, []string{"event"})

	activeJobs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "transcoderd_active_jobs",
		Help: "Jobs currently being processed per codec slot",
	}, []string{"codec"})

	configValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcoderd_config_validation_errors_total",
		Help: "Total number of configuration validation errors",
	})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "transcoderd_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_circuit_breaker_trips_total",
		Help: "Circuit breaker trips by reason",
	}, []string{"name", "reason"})
)

// RecordJob counts one finished job run.
func RecordJob(codec, result string) { jobsTotal.WithLabelValues(codec, result).Inc() }

// RecordJobFailure counts a failure by taxonomy code.
func RecordJobFailure(codec, code string) { jobFailuresTotal.WithLabelValues(codec, code).Inc() }

// RecordRendition counts one uploaded rendition and its processing time.
func RecordRendition(kind, codec string, seconds float64) {
	renditionsTotal.WithLabelValues(kind, codec).Inc()
	renditionDuration.WithLabelValues(kind, codec).Observe(seconds)
}

// IncSegmentRetry counts one segment re-attempt.
func IncSegmentRetry(reason string) { segmentRetriesTotal.WithLabelValues(reason).Inc() }

// RecordTransition counts one orchestrator state change.
func RecordTransition(from, to string) { stateTransitionsTotal.WithLabelValues(from, to).Inc() }

// IncResultPublished counts one outbound result message.
func IncResultPublished(event string) { resultsPublishedTotal.WithLabelValues(event).Inc() }

// SetActiveJobs sets the in-flight job gauge for a codec slot.
func SetActiveJobs(codec string, n int) { activeJobs.WithLabelValues(codec).Set(float64(n)) }

// IncConfigValidationError increments the config validation error counter.
func IncConfigValidationError() { configValidationErrors.Inc() }

// SetCircuitBreakerState publishes the state of a named breaker.
func SetCircuitBreakerState(name, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	circuitBreakerState.WithLabelValues(name).Set(v)
}

// RecordCircuitBreakerTrip counts a breaker opening.
func RecordCircuitBreakerTrip(name, reason string) {
	circuitBreakerTrips.WithLabelValues(name, reason).Inc()
}
