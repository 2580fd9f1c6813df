package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stages
const (
	StageTranscription = "transcription"
	StageCompletion    = "completion"
	StageSynthesis     = "synthesis"
)

var (
	// Turn metrics
	turnsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicechat_turns_in_flight",
		Help: "Number of pipeline requests currently being processed",
	})

	turnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicechat_turns_total",
		Help: "Total number of pipeline requests processed",
	})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicechat_turn_duration_seconds",
		Help:    "End to end pipeline latency in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
	})

	responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicechat_responses_total",
		Help: "Pipeline responses by outcome",
	}, []string{"outcome"}) // audio, text, downgraded, or the failure kind

	// Stage metrics
	stageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicechat_stage_requests_total",
		Help: "Total number of provider calls per stage",
	}, []string{"stage", "provider", "status"})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voicechat_stage_latency_seconds",
		Help:    "Provider latency per pipeline stage in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage", "provider"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicechat_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voicechat_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicechat_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicechat_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	// Client metrics
	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicechat_client_state_transitions_total",
		Help: "Conversation state transitions observed by the client",
	}, []string{"from", "to"})

	feedConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicechat_client_feed_connections",
		Help: "Open state feed websocket connections",
	})
)

// TurnMetrics tracks metrics for a single pipeline request
type TurnMetrics struct {
	startTime   time.Time
	stageStarts map[string]time.Time
	mu          sync.Mutex
}

// NewTurnMetrics creates a tracker and counts the turn as in flight.
func NewTurnMetrics() *TurnMetrics {
	turnsInFlight.Inc()
	turnsTotal.Inc()
	return &TurnMetrics{
		startTime:   time.Now(),
		stageStarts: make(map[string]time.Time),
	}
}

// RecordStageStart records the start of a pipeline stage
func (m *TurnMetrics) RecordStageStart(stage string) {
	m.mu.Lock()
	m.stageStarts[stage] = time.Now()
	m.mu.Unlock()
}

// RecordStageEnd records the end of a pipeline stage and returns its latency.
func (m *TurnMetrics) RecordStageEnd(stage, provider string, success bool) time.Duration {
	m.mu.Lock()
	start, ok := m.stageStarts[stage]
	m.mu.Unlock()

	var latency time.Duration
	if ok {
		latency = time.Since(start)
		stageLatency.WithLabelValues(stage, provider).Observe(latency.Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	stageRequests.WithLabelValues(stage, provider, status).Inc()
	return latency
}

// RecordOutcome closes the turn with its response outcome.
func (m *TurnMetrics) RecordOutcome(outcome string) {
	turnsInFlight.Dec()
	turnDuration.Observe(time.Since(m.startTime).Seconds())
	responsesTotal.WithLabelValues(outcome).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func RecordAudioBytes(direction string, bytes int) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordStateTransition counts a client conversation state change
func RecordStateTransition(from, to string) {
	stateTransitions.WithLabelValues(from, to).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

// FeedConnected tracks a state feed websocket opening.
func FeedConnected() {
	feedConnections.Inc()
}

// FeedDisconnected tracks a state feed websocket closing.
func FeedDisconnected() {
	feedConnections.Dec()
}
