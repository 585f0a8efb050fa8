// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_interview_voice"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal    prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionDuration  prometheus.Histogram
	DeliveryFailures prometheus.Counter

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter
	BufferLimitExceeded prometheus.Counter

	// Utterance metrics
	UtterancesFlushed *prometheus.CounterVec
	TriggersDropped   prometheus.Counter

	// Pipeline metrics
	PipelineRuns    *prometheus.CounterVec
	StageLatency    *prometheus.HistogramVec
	StageErrors     *prometheus.CounterVec
	PipelineLatency prometheus.Histogram

	// Relay metrics
	RelaySessionsActive prometheus.Gauge
	RelayFrames         *prometheus.CounterVec
	RelayDialErrors     prometheus.Counter

	// Guardrail metrics
	GuardrailChecks     prometheus.Counter
	GuardrailViolations *prometheus.CounterVec

	// gRPC metrics
	GRPCRequests *prometheus.CounterVec
	GRPCLatency  *prometheus.HistogramVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of client sessions registered",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently registered client sessions",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of client sessions in seconds",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
		}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Total number of failed writes to client transports",
		}),

		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioFramesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),
		BufferLimitExceeded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_limit_exceeded_total",
			Help:      "Total number of chunks rejected by the buffer size limit",
		}),

		UtterancesFlushed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_flushed_total",
			Help:      "Total number of utterances handed to the pipeline",
		}, []string{"mode"}),
		TriggersDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_dropped_total",
			Help:      "Total number of flush triggers dropped while processing",
		}),

		PipelineRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs by outcome",
		}, []string{"outcome"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Latency of each pipeline stage in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"stage"}),
		StageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Total number of pipeline stage failures",
		}, []string{"stage"}),
		PipelineLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_latency_seconds",
			Help:      "End-to-end pipeline latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		RelaySessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_sessions_active",
			Help:      "Number of currently active relay sessions",
		}),
		RelayFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_frames_total",
			Help:      "Total number of frames forwarded by the relay",
		}, []string{"direction"}),
		RelayDialErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_dial_errors_total",
			Help:      "Total number of failed upstream dials",
		}),

		GuardrailChecks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_checks_total",
			Help:      "Total number of texts validated against guardrails",
		}),
		GuardrailViolations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_violations_total",
			Help:      "Total number of texts failing guardrail validation",
		}, []string{"severity"}),

		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC calls by method and status code",
		}, []string{"method", "code"}),
		GRPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a new client session.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a client session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordDeliveryFailure records a failed write to a client.
func (m *Metrics) RecordDeliveryFailure() {
	m.DeliveryFailures.Inc()
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordBufferLimitExceeded records a rejected chunk.
func (m *Metrics) RecordBufferLimitExceeded() {
	m.BufferLimitExceeded.Inc()
}

// RecordUtterance records an utterance handed to the pipeline.
// mode is "edge" or "single_shot".
func (m *Metrics) RecordUtterance(mode string) {
	m.UtterancesFlushed.WithLabelValues(mode).Inc()
}

// RecordTriggerDropped records a flush trigger dropped by the re-entrancy guard.
func (m *Metrics) RecordTriggerDropped() {
	m.TriggersDropped.Inc()
}

// RecordPipelineRun records the outcome of one pipeline run.
func (m *Metrics) RecordPipelineRun(success bool, latencySeconds float64) {
	outcome := "failed"
	if success {
		outcome = "success"
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
	m.PipelineLatency.Observe(latencySeconds)
}

// RecordStage records the latency of a pipeline stage and whether it failed.
func (m *Metrics) RecordStage(stage string, err error, latencySeconds float64) {
	m.StageLatency.WithLabelValues(stage).Observe(latencySeconds)
	if err != nil {
		m.StageErrors.WithLabelValues(stage).Inc()
	}
}

// RecordRelayStart records a relay session starting.
func (m *Metrics) RecordRelayStart() {
	m.RelaySessionsActive.Inc()
}

// RecordRelayEnd records a relay session ending.
func (m *Metrics) RecordRelayEnd() {
	m.RelaySessionsActive.Dec()
}

// RecordRelayFrame records a forwarded frame. direction is "inbound" or "outbound".
func (m *Metrics) RecordRelayFrame(direction string) {
	m.RelayFrames.WithLabelValues(direction).Inc()
}

// RecordRelayDialError records a failed upstream dial.
func (m *Metrics) RecordRelayDialError() {
	m.RelayDialErrors.Inc()
}

// RecordGuardrail records one validation and its severity.
func (m *Metrics) RecordGuardrail(valid bool, severity string) {
	m.GuardrailChecks.Inc()
	if !valid {
		m.GuardrailViolations.WithLabelValues(severity).Inc()
	}
}

// RecordGRPCCall records one completed gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string, latencySeconds float64) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(latencySeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
