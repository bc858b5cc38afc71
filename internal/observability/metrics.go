package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	conversationLoadDuration prometheus.Histogram
	conversationSaveDuration prometheus.Histogram
	conversationsTotal       prometheus.Gauge
	truncationDroppedTotal   prometheus.Counter

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec
	toolSkippedTotal      *prometheus.CounterVec

	turnTotal       *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	turnErrorsTotal *prometheus.CounterVec
	modelCallsTotal *prometheus.CounterVec

	activeConnections prometheus.Gauge
	eventsEmitted     *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "queue_size",
					Help: "Current queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dequeue_total",
					Help: "Total dequeue/completion operations by lane and status.",
				},
				[]string{"lane", "status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "task_duration_seconds",
					Help:    "Task execution duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			conversationLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "conversation_load_duration_seconds",
					Help:    "Conversation load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			conversationSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "conversation_save_duration_seconds",
					Help:    "Conversation save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			conversationsTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "conversations_total",
					Help: "Total conversations in the store index.",
				},
			),
			truncationDroppedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "truncation_dropped_messages_total",
					Help: "Total messages dropped by context window truncation.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_errors_total",
					Help: "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			toolSkippedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_skipped_total",
					Help: "Total tool calls answered from the duplicate cache by tool.",
				},
				[]string{"tool"},
			),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turn_total",
					Help: "Total completed turns by provider and status.",
				},
				[]string{"provider", "status"},
			),
			turnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "turn_duration_seconds",
					Help:    "Turn duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			turnErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turn_errors_total",
					Help: "Total failed turns by provider.",
				},
				[]string{"provider"},
			),
			modelCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "model_calls_total",
					Help: "Total model invocations by provider and model.",
				},
				[]string{"provider", "model"},
			),
			activeConnections: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_connections",
					Help: "Current open websocket connections.",
				},
			),
			eventsEmitted: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "events_emitted_total",
					Help: "Total turn events emitted by event type.",
				},
				[]string{"type"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.conversationLoadDuration,
			m.conversationSaveDuration,
			m.conversationsTotal,
			m.truncationDroppedTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.toolSkippedTotal,
			m.turnTotal,
			m.turnDuration,
			m.turnErrorsTotal,
			m.modelCallsTotal,
			m.activeConnections,
			m.eventsEmitted,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetQueueSize(lane string, queueSize int) {
	m := getMetrics()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.dequeueTotal.WithLabelValues(lane, status).Inc()
	m.taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordConversationLoad(duration time.Duration) {
	getMetrics().conversationLoadDuration.Observe(duration.Seconds())
}

func RecordConversationSave(duration time.Duration) {
	getMetrics().conversationSaveDuration.Observe(duration.Seconds())
}

func SetConversationsTotal(count int) {
	getMetrics().conversationsTotal.Set(float64(count))
}

func RecordTruncationDropped(count int) {
	if count <= 0 {
		return
	}
	getMetrics().truncationDroppedTotal.Add(float64(count))
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordToolSkipped(tool string) {
	getMetrics().toolSkippedTotal.WithLabelValues(tool).Inc()
}

func RecordTurn(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.turnTotal.WithLabelValues(provider, status).Inc()
	m.turnDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if !success {
		m.turnErrorsTotal.WithLabelValues(provider).Inc()
	}
}

func RecordModelCall(provider, model string) {
	getMetrics().modelCallsTotal.WithLabelValues(provider, model).Inc()
}

func ConnectionOpened() {
	getMetrics().activeConnections.Inc()
}

func ConnectionClosed() {
	getMetrics().activeConnections.Dec()
}

func RecordEventEmitted(eventType string) {
	getMetrics().eventsEmitted.WithLabelValues(eventType).Inc()
}
