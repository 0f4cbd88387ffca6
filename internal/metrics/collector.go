// Package metrics provides internal metrics collection for the engine.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the engine's prometheus metrics. All methods are safe
// for concurrent use; a nil *Collector is a no-op everywhere.
type Collector struct {
	transitionsTotal *prometheus.CounterVec
	nodeDuration     *prometheus.HistogramVec

	checkpointsTotal   *prometheus.CounterVec
	checkpointDuration prometheus.Histogram

	branchesTotal *prometheus.CounterVec

	approvalsRequested *prometheus.CounterVec
	approvalsDecided   *prometheus.CounterVec

	retriesTotal prometheus.Counter

	logger *zap.Logger
}

// NewCollector creates a metrics collector registered against reg. Pass nil
// to use the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.transitionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_transitions_total",
			Help:      "Total number of node transitions",
		},
		[]string{"from", "to"},
	)

	c.nodeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node"},
	)

	c.checkpointsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Total number of checkpoint writes",
		},
		[]string{"status"},
	)

	c.checkpointDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_duration_seconds",
			Help:      "Checkpoint write duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.branchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_branches_total",
			Help:      "Total number of fan-out branches by outcome",
		},
		[]string{"outcome"},
	)

	c.approvalsRequested = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_requested_total",
			Help:      "Total number of approval requests created",
		},
		[]string{"kind"},
	)

	c.approvalsDecided = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_decided_total",
			Help:      "Total number of approval decisions applied",
		},
		[]string{"decision"},
	)

	c.retriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_retries_total",
			Help:      "Total number of whole-workflow retries",
		},
	)

	return c
}

// RecordTransition counts a node transition.
func (c *Collector) RecordTransition(from, to string) {
	if c == nil {
		return
	}
	c.transitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordNodeDuration records how long a node execution took.
func (c *Collector) RecordNodeDuration(node string, d time.Duration) {
	if c == nil {
		return
	}
	c.nodeDuration.WithLabelValues(node).Observe(d.Seconds())
}

// RecordCheckpoint counts a checkpoint write and its duration.
func (c *Collector) RecordCheckpoint(success bool, d time.Duration) {
	if c == nil {
		return
	}
	status := "ok"
	if !success {
		status = "error"
	}
	c.checkpointsTotal.WithLabelValues(status).Inc()
	c.checkpointDuration.Observe(d.Seconds())
}

// RecordBranch counts one fan-out branch outcome.
func (c *Collector) RecordBranch(outcome string) {
	if c == nil {
		return
	}
	c.branchesTotal.WithLabelValues(outcome).Inc()
}

// RecordApprovalRequested counts a newly created approval request.
func (c *Collector) RecordApprovalRequested(kind string) {
	if c == nil {
		return
	}
	c.approvalsRequested.WithLabelValues(kind).Inc()
}

// RecordApprovalDecided counts an applied approval decision.
func (c *Collector) RecordApprovalDecided(granted bool) {
	if c == nil {
		return
	}
	decision := "granted"
	if !granted {
		decision = "rejected"
	}
	c.approvalsDecided.WithLabelValues(decision).Inc()
}

// RecordRetry counts a whole-workflow retry.
func (c *Collector) RecordRetry() {
	if c == nil {
		return
	}
	c.retriesTotal.Inc()
}
