// Package monitoring exposes Prometheus metrics for the engine, grounded on
// the teacher's internal/infrastructure/monitoring/metrics.go (namespaced
// promauto collectors, one struct of typed fields, Record* helper methods).
// Unlike the teacher, whose metrics are recorded from explicit call sites
// scattered through HTTP handlers and LLM/tool executors, Flowcraft's
// metrics are derived entirely from the event bus (§6): Metrics.Attach
// subscribes a wildcard handler and every FlowcraftEvent updates the
// relevant counters/histograms, so no engine-layer package needs a direct
// dependency on this one.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flowcraft/flowcraft/internal/domain/state"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

// Metrics holds every Prometheus collector the engine populates.
type Metrics struct {
	WorkflowsStarted  *prometheus.CounterVec
	WorkflowsFinished *prometheus.CounterVec
	WorkflowsActive   prometheus.Gauge

	NodesExecutedTotal *prometheus.CounterVec
	NodeDuration       *prometheus.HistogramVec
	NodeErrorsTotal    *prometheus.CounterVec
	NodeRetriesTotal   *prometheus.CounterVec

	BatchesStarted  *prometheus.CounterVec
	BatchesFinished *prometheus.CounterVec

	EventsPublishedTotal *prometheus.CounterVec

	mu            sync.Mutex
	nodeStartedAt map[string]time.Time
}

// NewMetrics creates and registers every collector under namespace
// (defaulting to "flowcraft").
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "flowcraft"
	}

	return &Metrics{
		WorkflowsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "workflows_started_total", Help: "Total number of workflow executions started",
		}, []string{"blueprint_id"}),
		WorkflowsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "workflows_finished_total", Help: "Total number of workflow executions finished, by terminal status",
		}, []string{"blueprint_id", "status"}),
		WorkflowsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "workflows_active", Help: "Number of currently in-flight workflow executions",
		}),

		NodesExecutedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "nodes_executed_total", Help: "Total number of node executions, by node id",
		}, []string{"blueprint_id", "node_id"}),
		NodeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "node_duration_seconds", Help: "Node execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"blueprint_id", "node_id"}),
		NodeErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "node_errors_total", Help: "Total number of node execution errors",
		}, []string{"blueprint_id", "node_id"}),
		NodeRetriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "node_retries_total", Help: "Total number of node retry attempts",
		}, []string{"blueprint_id", "node_id"}),

		BatchesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_started_total", Help: "Total number of batch-scatter chunks dispatched",
		}, []string{"blueprint_id", "scatter_node_id"}),
		BatchesFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_finished_total", Help: "Total number of batch-gather completions",
		}, []string{"blueprint_id", "gather_node_id"}),

		EventsPublishedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_published_total", Help: "Total number of FlowcraftEvents published, by type",
		}, []string{"event_type"}),

		nodeStartedAt: make(map[string]time.Time),
	}
}

// Attach subscribes a wildcard handler to bus, updating every collector
// from the event stream.
func (m *Metrics) Attach(bus eventbus.Bus) {
	bus.Subscribe("*", func(_ context.Context, evt eventbus.Event) error {
		m.observe(evt)
		return nil
	})
}

func (m *Metrics) observe(evt eventbus.Event) {
	m.EventsPublishedTotal.WithLabelValues(evt.EventType()).Inc()

	switch e := evt.(type) {
	case eventbus.WorkflowStart:
		m.WorkflowsStarted.WithLabelValues(e.BlueprintID()).Inc()
		m.WorkflowsActive.Inc()
	case eventbus.WorkflowFinish:
		status := e.Status
		if status == "" {
			status = string(state.StatusFailed)
		}
		m.WorkflowsFinished.WithLabelValues(e.BlueprintID(), status).Inc()
		m.WorkflowsActive.Dec()
	case eventbus.NodeStart:
		m.mu.Lock()
		m.nodeStartedAt[e.ExecutionID()+":"+e.NodeID] = time.Now()
		m.mu.Unlock()
	case eventbus.NodeFinish:
		m.NodesExecutedTotal.WithLabelValues(e.BlueprintID(), e.NodeID).Inc()
		key := e.ExecutionID() + ":" + e.NodeID
		m.mu.Lock()
		start, ok := m.nodeStartedAt[key]
		if ok {
			delete(m.nodeStartedAt, key)
		}
		m.mu.Unlock()
		if ok {
			m.NodeDuration.WithLabelValues(e.BlueprintID(), e.NodeID).Observe(time.Since(start).Seconds())
		}
	case eventbus.NodeError:
		m.NodeErrorsTotal.WithLabelValues(e.BlueprintID(), e.NodeID).Inc()
	case eventbus.NodeRetry:
		m.NodeRetriesTotal.WithLabelValues(e.BlueprintID(), e.NodeID).Inc()
	case eventbus.BatchStart:
		m.BatchesStarted.WithLabelValues(e.BlueprintID(), e.ScatterNodeID).Inc()
	case eventbus.BatchFinish:
		m.BatchesFinished.WithLabelValues(e.BlueprintID(), e.GatherNodeID).Inc()
	}
}
