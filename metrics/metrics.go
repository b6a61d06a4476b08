// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics provides the Prometheus + OpenTelemetry wiring shared by
// the hook executor, event bus, state manager, and workflow engine. Each
// component gets its own metric family so a hook storm doesn't pollute
// workflow dashboards, but they all share one registry and one tracer
// provider per process.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the per-component metric families for the fabric.
type Registry struct {
	registry *prometheus.Registry

	HookDuration    *prometheus.HistogramVec
	HookInvocations *prometheus.CounterVec
	HookSkipped     *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec

	EventsPublished *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	EventsRejected  *prometheus.CounterVec
	EventsBlocked   *prometheus.CounterVec
	SubscriberLag   *prometheus.GaugeVec

	StateOps        *prometheus.CounterVec
	StateOpDuration *prometheus.HistogramVec

	StepDuration    *prometheus.HistogramVec
	WorkflowResults *prometheus.CounterVec

	BackupOps       *prometheus.CounterVec
	BackupDuration  *prometheus.HistogramVec
	BackupSizeBytes *prometheus.HistogramVec

	LifecycleTransitions      *prometheus.CounterVec
	LifecycleState            *prometheus.GaugeVec
	LifecycleRecoveryAttempts *prometheus.CounterVec

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a Registry with all metric families registered against a
// fresh prometheus.Registry. namespace prefixes every metric name
// (e.g. "fabric").
func New(namespace string) *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.HookDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "hooks",
		Name:      "duration_seconds",
		Help:      "Hook execution duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	}, []string{"hook", "point"})

	r.HookInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hooks",
		Name:      "invocations_total",
		Help:      "Total hook invocations by outcome.",
	}, []string{"hook", "point", "outcome"})

	r.HookSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hooks",
		Name:      "skipped_total",
		Help:      "Total hook invocations skipped (predicate false or breaker open).",
	}, []string{"hook", "reason"})

	r.BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hooks",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per hook (0=closed, 1=half-open, 2=open).",
	}, []string{"hook"})

	r.EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Total events accepted by the bus.",
	}, []string{"event_type"})

	r.EventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Total events dropped by overflow policy.",
	}, []string{"reason"})

	r.EventsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "rejected_total",
		Help:      "Total events rejected by schema validation.",
	}, []string{"reason"})

	r.EventsBlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "blocked_total",
		Help:      "Total publishes that observed a blocked flow-control outcome.",
	}, []string{"reason"})

	r.SubscriberLag = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "subscriber_queue_depth",
		Help:      "Current queue depth per subscription.",
	}, []string{"subscription"})

	r.StateOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "state",
		Name:      "operations_total",
		Help:      "Total state manager operations by backend and result.",
	}, []string{"backend", "op", "result"})

	r.StateOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "state",
		Name:      "operation_duration_seconds",
		Help:      "State manager operation latency in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
	}, []string{"backend", "op"})

	r.StepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "step_duration_seconds",
		Help:      "Workflow step execution duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"pattern", "step_type"})

	r.WorkflowResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "results_total",
		Help:      "Total workflow executions by pattern and success.",
	}, []string{"pattern", "success"})

	r.BackupOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backup",
		Name:      "operations_total",
		Help:      "Total backup capture/restore operations by kind and result.",
	}, []string{"op", "result"})

	r.BackupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "backup",
		Name:      "duration_seconds",
		Help:      "Backup capture/restore duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"op"})

	r.BackupSizeBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "backup",
		Name:      "snapshot_bytes",
		Help:      "Serialized backup snapshot size in bytes, before compression.",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 16),
	}, []string{"compression"})

	r.LifecycleTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Total lifecycle state transitions by from-state, to-state, and result.",
	}, []string{"from", "to", "result"})

	r.LifecycleState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "state",
		Help:      "Current lifecycle state per agent (1 for the active state, 0 otherwise).",
	}, []string{"agent_id", "state"})

	r.LifecycleRecoveryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "recovery_attempts_total",
		Help:      "Total auto-recovery attempts by outcome.",
	}, []string{"outcome"})

	r.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests served by the query API, by route pattern and status class.",
	}, []string{"method", "route", "status"})

	r.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds, by route pattern.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"method", "route"})

	r.registry.MustRegister(
		r.HookDuration, r.HookInvocations, r.HookSkipped, r.BreakerState,
		r.EventsPublished, r.EventsDropped, r.EventsRejected, r.EventsBlocked, r.SubscriberLag,
		r.StateOps, r.StateOpDuration,
		r.StepDuration, r.WorkflowResults,
		r.BackupOps, r.BackupDuration, r.BackupSizeBytes,
		r.LifecycleTransitions, r.LifecycleState, r.LifecycleRecoveryAttempts,
		r.HTTPRequests, r.HTTPRequestDuration,
	)

	return r
}

// Handler returns an http.Handler serving the registry in Prometheus
// exposition format, suitable for mounting under httpapi.Router.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
