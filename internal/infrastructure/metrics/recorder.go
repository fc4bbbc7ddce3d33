// Package metrics exposes plaza-hub operational metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pasantias/plaza-hub/internal/application/command"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
	"github.com/pasantias/plaza-hub/internal/infrastructure/messaging"
	"github.com/pasantias/plaza-hub/internal/infrastructure/scheduler"
)

const namespace = "plazahub"

// LatencyBuckets covers single-row lookups up to slow batch transactions.
var LatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Recorder records allocation, lifecycle, event bus and job metrics on its
// own registry.
type Recorder struct {
	registry *prometheus.Registry

	assignments       *prometheus.CounterVec
	assignmentLatency *prometheus.HistogramVec
	studentsAssigned  prometheus.Counter
	transitions       *prometheus.CounterVec
	eventsPublished   *prometheus.CounterVec
	handlerFailures   *prometheus.CounterVec
	handlerLatency    *prometheus.HistogramVec
	jobRuns           *prometheus.CounterVec
	jobLatency        *prometheus.HistogramVec
}

var (
	_ command.Metrics    = (*Recorder)(nil)
	_ messaging.Observer = (*Recorder)(nil)
	_ scheduler.Observer = (*Recorder)(nil)
)

// NewRecorder creates a Recorder with Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.assignments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "allocation",
		Name:      "assignments_total",
		Help:      "Assignment requests by outcome.",
	}, []string{"outcome"})

	r.assignmentLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "allocation",
		Name:      "assignment_duration_seconds",
		Help:      "Time spent handling an assignment request.",
		Buckets:   LatencyBuckets,
	}, []string{"outcome"})

	r.studentsAssigned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "allocation",
		Name:      "students_assigned_total",
		Help:      "Internships created by successful assignments.",
	})

	r.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "State transition requests by entity kind, target state and outcome.",
	}, []string{"kind", "to", "outcome"})

	r.eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Domain events published by type.",
	}, []string{"type"})

	r.handlerFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "handler_failures_total",
		Help:      "Event handler errors and panics by event type.",
	}, []string{"type"})

	r.handlerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "handler_duration_seconds",
		Help:      "Time spent in event handlers.",
		Buckets:   LatencyBuckets,
	}, []string{"type"})

	r.jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job runs by result: success, failure or skipped.",
	}, []string{"job", "result"})

	r.jobLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Scheduled job run time.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"job"})

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.assignments,
		r.assignmentLatency,
		r.studentsAssigned,
		r.transitions,
		r.eventsPublished,
		r.handlerFailures,
		r.handlerLatency,
		r.jobRuns,
		r.jobLatency,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveAssignment implements command.Metrics.
func (r *Recorder) ObserveAssignment(outcome string, students int, elapsed time.Duration) {
	r.assignments.WithLabelValues(outcome).Inc()
	r.assignmentLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if outcome == "ok" {
		r.studentsAssigned.Add(float64(students))
	}
}

// ObserveTransition implements command.Metrics.
func (r *Recorder) ObserveTransition(kind, to, outcome string) {
	r.transitions.WithLabelValues(kind, to, outcome).Inc()
}

// EventPublished implements messaging.Observer.
func (r *Recorder) EventPublished(eventType shared.EventType) {
	r.eventsPublished.WithLabelValues(string(eventType)).Inc()
}

// HandlerCompleted implements messaging.Observer.
func (r *Recorder) HandlerCompleted(eventType shared.EventType, elapsed time.Duration, err error) {
	r.handlerLatency.WithLabelValues(string(eventType)).Observe(elapsed.Seconds())
	if err != nil {
		r.handlerFailures.WithLabelValues(string(eventType)).Inc()
	}
}

// JobCompleted implements scheduler.Observer.
func (r *Recorder) JobCompleted(job string, elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.jobRuns.WithLabelValues(job, result).Inc()
	r.jobLatency.WithLabelValues(job).Observe(elapsed.Seconds())
}

// JobSkipped implements scheduler.Observer.
func (r *Recorder) JobSkipped(job string) {
	r.jobRuns.WithLabelValues(job, "skipped").Inc()
}
