// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clinical_notes"

// Metrics holds all Prometheus metrics for the service.
// Every Record method is a no-op on a nil *Metrics.
type Metrics struct {
	// Pipeline run metrics
	RunsTotal     *prometheus.CounterVec
	RunsActive    prometheus.Gauge
	RunDuration   prometheus.Histogram
	StageDuration *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec

	// Review metrics
	Verdicts        *prometheus.CounterVec
	Overrides       prometheus.Counter
	Regenerations   prometheus.Counter
	ReviewNoteChars prometheus.Histogram

	// Drafting metrics
	DraftAttempts *prometheus.CounterVec

	// Audit sink metrics
	SinkErrors *prometheus.CounterVec

	// Streaming metrics
	SessionsActive       prometheus.Gauge
	AudioFramesReceived  prometheus.Counter
	AudioSamplesReceived prometheus.Counter
	ChunksEmitted        prometheus.Counter
	ChunkDuration        prometheus.Histogram
	ChunkErrors          *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// API metrics
	GRPCCalls    *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by outcome",
		}, []string{"outcome"}),
		RunsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Number of pipeline runs in progress",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage"}),
		StageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Total number of stage failures",
		}, []string{"stage", "kind"}),

		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Total number of review verdicts by action",
		}, []string{"action"}),
		Overrides: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_overrides_total",
			Help:      "Total number of runs forced to human review",
		}),
		Regenerations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regenerations_total",
			Help:      "Total number of caller-driven regenerate attempts",
		}),
		ReviewNoteChars: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "review_note_chars",
			Help:      "Length of reviewed notes in characters",
			Buckets:   []float64{50, 150, 300, 600, 1000, 2000, 4000, 8000},
		}),

		DraftAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_model_attempts_total",
			Help:      "Total number of drafting attempts per model",
		}, []string{"model", "outcome"}),

		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transition_sink_errors_total",
			Help:      "Total number of transition events a sink failed to record",
		}, []string{"sink"}),

		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of open live sessions",
		}),
		AudioFramesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames pushed into session buffers",
		}),
		AudioSamplesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_samples_received_total",
			Help:      "Total audio samples pushed into session buffers",
		}),
		ChunksEmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_emitted_total",
			Help:      "Total chunks emitted by session buffers",
		}),
		ChunkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Audio duration of emitted chunks",
			Buckets:   []float64{0.5, 1, 2, 3, 4, 5, 6, 8, 10},
		}),
		ChunkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_errors_total",
			Help:      "Total chunk persistence and transcription errors",
		}, []string{"step"}),

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

		GRPCCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of gRPC calls by method and status code",
		}, []string{"method", "code"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of API requests by route and status",
		}, []string{"route", "status"}),
	}
}

// RecordRunStart records a pipeline run starting.
func (m *Metrics) RecordRunStart() {
	if m == nil {
		return
	}
	m.RunsActive.Inc()
}

// RecordRunEnd records a pipeline run ending with outcome.
func (m *Metrics) RecordRunEnd(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RunsActive.Dec()
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordStage records a stage duration and, when kind is non-empty, its failure.
func (m *Metrics) RecordStage(stage, kind string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
	if kind != "" {
		m.StageErrors.WithLabelValues(stage, kind).Inc()
	}
}

// RecordVerdict records a final review verdict.
func (m *Metrics) RecordVerdict(action string, noteChars int, overridden bool) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(action).Inc()
	m.ReviewNoteChars.Observe(float64(noteChars))
	if overridden {
		m.Overrides.Inc()
	}
}

// RecordRegeneration records a retry after a regenerate verdict.
func (m *Metrics) RecordRegeneration() {
	if m == nil {
		return
	}
	m.Regenerations.Inc()
}

// RecordDraftAttempt records one drafting call against a model.
func (m *Metrics) RecordDraftAttempt(model, outcome string) {
	if m == nil {
		return
	}
	m.DraftAttempts.WithLabelValues(model, outcome).Inc()
}

// RecordSinkError records a transition sink failure.
func (m *Metrics) RecordSinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// RecordSessionOpened records a live session being created.
func (m *Metrics) RecordSessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionClosed records a live session being removed.
func (m *Metrics) RecordSessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// RecordAudioReceived records a frame of samples pushed into a buffer.
func (m *Metrics) RecordAudioReceived(samples int) {
	if m == nil {
		return
	}
	m.AudioFramesReceived.Inc()
	m.AudioSamplesReceived.Add(float64(samples))
}

// RecordChunk records an emitted chunk.
func (m *Metrics) RecordChunk(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ChunksEmitted.Inc()
	m.ChunkDuration.Observe(durationSeconds)
}

// RecordChunkError records a chunk that failed at step.
func (m *Metrics) RecordChunkError(step string) {
	if m == nil {
		return
	}
	m.ChunkErrors.WithLabelValues(step).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	if m == nil {
		return
	}
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPCCall records a finished gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string) {
	if m == nil {
		return
	}
	m.GRPCCalls.WithLabelValues(method, code).Inc()
}

// RecordHTTPRequest records a finished API request.
func (m *Metrics) RecordHTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
