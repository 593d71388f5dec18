// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProcessStartsTotal counts supervised subprocess launches per tool.
	ProcessStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_process_starts_total",
		Help: "Total supervised subprocess launches",
	}, []string{"tool"})

	// ProcessExitsTotal counts supervised subprocess results per tool and outcome.
	ProcessExitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_process_exits_total",
		Help: "Total supervised subprocess exits by outcome",
	}, []string{"tool", "outcome"}) // outcome=success|cancelled|retry_requested|timed_out|failed

	// ProcessDuration tracks wall time of supervised subprocesses.
	ProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transcoderd_process_duration_seconds",
		Help:    "Wall time of supervised subprocesses",
		Buckets: prometheus.ExponentialBuckets(0.5, 2.5, 12), // 0.5s to ~33h
	}, []string{"tool"})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_proc_terminate_total",
		Help: "Signals sent while terminating process groups",
	}, []string{"signal", "result"}) // result=sent|esrch|error

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_proc_wait_total",
		Help: "Process reap results after termination",
	}, []string{"result"})
)

// IncProcTerminate records a termination signal attempt.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records how a terminated process was reaped.
func IncProcWait(result string) {
	procWaitTotal.WithLabelValues(result).Inc()
}
