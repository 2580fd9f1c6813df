// Package monitor turns a continuous capture stream into discrete utterances.
// It owns the capture source and a voice activity detector and reports
// speech start and end to a Handler.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/audio"
)

// State of the monitor
type State int

const (
	Stopped State = iota
	Armed
	Capturing
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Armed:
		return "armed"
	case Capturing:
		return "capturing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrNotInitialized is returned by Start before Init has been called.
var ErrNotInitialized = errors.New("voice monitor not initialized")

// InitError wraps a capture source failure. It is terminal: once Init fails
// every later Start returns the same error.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("voice monitor init: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Handler receives speech boundaries. Both methods are called from the
// monitor's capture goroutine; no further event is produced until a call
// returns.
type Handler interface {
	OnSpeechStart()
	OnSpeechEnd(segment []float32)
}

// Source produces mono float samples at the configured rate.
type Source interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) ([]float32, error)
	Close() error
}

// Config controls framing and detection.
type Config struct {
	SampleRate      int
	FrameSize       int
	EnergyThreshold float64
	SilenceFrames   int
	PrefixFrames    int // frames of audio kept from before speech start
}

// DefaultConfig returns settings for 16kHz microphone capture.
func DefaultConfig() Config {
	vad := audio.DefaultVADConfig()
	return Config{
		SampleRate:      16000,
		FrameSize:       vad.FrameSize,
		EnergyThreshold: vad.EnergyThreshold,
		SilenceFrames:   vad.SilenceFrames,
		PrefixFrames:    10,
	}
}

// Monitor detects utterances on a capture source.
type Monitor struct {
	src    Source
	cfg    Config
	logger zerolog.Logger

	mu          sync.Mutex
	state       State
	handler     Handler
	initialized bool
	initErr     error
	detector    *audio.VADDetector
	prefix      *audio.SampleRing
	segment     []float32

	// pending is owned by the capture goroutine
	pending []float32

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a monitor in the Stopped state. Init must be called before Start.
func New(src Source, cfg Config, logger zerolog.Logger) *Monitor {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultConfig().FrameSize
	}
	if cfg.SilenceFrames <= 0 {
		cfg.SilenceFrames = DefaultConfig().SilenceFrames
	}
	return &Monitor{
		src:    src,
		cfg:    cfg,
		logger: logger.With().Str("component", "voice_monitor").Logger(),
		detector: audio.NewVADDetector(&audio.VADConfig{
			EnergyThreshold: cfg.EnergyThreshold,
			SilenceFrames:   cfg.SilenceFrames,
			FrameSize:       cfg.FrameSize,
		}),
		prefix: audio.NewSampleRing(cfg.PrefixFrames * cfg.FrameSize),
	}
}

// Init opens the capture source and starts the capture goroutine. It runs at
// most once; a failure is remembered and returned from every later Init and
// Start without reopening the source.
func (m *Monitor) Init(ctx context.Context, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return m.initErr
	}
	m.initialized = true

	if err := m.src.Open(ctx); err != nil {
		m.initErr = &InitError{Err: err}
		m.logger.Error().Err(err).Msg("Failed to open capture source")
		return m.initErr
	}

	m.handler = h
	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(loopCtx)

	m.logger.Info().
		Int("sample_rate", m.cfg.SampleRate).
		Int("frame_size", m.cfg.FrameSize).
		Float64("energy_threshold", m.cfg.EnergyThreshold).
		Msg("Voice monitor initialized")
	return nil
}

// Start arms detection. It is a no-op when already armed or capturing.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}
	if m.initErr != nil {
		return m.initErr
	}
	if m.state == Stopped {
		m.detector.Reset()
		m.prefix.Clear()
		m.state = Armed
		m.logger.Debug().Msg("Voice monitor armed")
	}
	return nil
}

// Pause stops detection and discards any partially captured utterance.
func (m *Monitor) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Capturing {
		m.logger.Debug().Int("samples", len(m.segment)).Msg("Discarding partial utterance")
	}
	m.state = Stopped
	m.segment = nil
	m.detector.Reset()
}

// Stop is Pause under the name used by callers shutting detection down.
func (m *Monitor) Stop() {
	m.Pause()
}

// State returns the current monitor state
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close stops the capture goroutine and releases the source.
func (m *Monitor) Close() error {
	m.Pause()

	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return m.src.Close()
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	for {
		samples, err := m.src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				m.logger.Info().Msg("Capture source exhausted")
				return
			}
			m.logger.Error().Err(err).Msg("Capture source read failed")
			return
		}
		m.feed(samples)
	}
}

// feed slices arbitrary reads into detector frames.
func (m *Monitor) feed(samples []float32) {
	m.pending = append(m.pending, samples...)
	for len(m.pending) >= m.cfg.FrameSize {
		frame := make([]float32, m.cfg.FrameSize)
		copy(frame, m.pending[:m.cfg.FrameSize])
		m.pending = m.pending[m.cfg.FrameSize:]
		m.process(frame)
	}
}

// process advances the detector by one frame. State is updated under the
// lock; the handler is called after it is released.
func (m *Monitor) process(frame []float32) {
	m.mu.Lock()
	if m.state == Stopped {
		m.mu.Unlock()
		return
	}

	_, started, ended := m.detector.ProcessFrame(frame)

	var (
		emitStart bool
		segment   []float32
	)
	switch m.state {
	case Armed:
		if started {
			m.segment = append(m.prefix.Snapshot(), frame...)
			m.prefix.Clear()
			m.state = Capturing
			emitStart = true
		} else {
			m.prefix.Write(frame)
		}
	case Capturing:
		m.segment = append(m.segment, frame...)
		if ended {
			segment = m.segment
			m.segment = nil
			m.state = Armed
		}
	}
	h := m.handler
	m.mu.Unlock()

	if h == nil {
		return
	}
	if emitStart {
		m.logger.Debug().Msg("Speech started")
		h.OnSpeechStart()
	}
	if segment != nil {
		m.logger.Debug().Int("samples", len(segment)).Msg("Speech ended")
		h.OnSpeechEnd(segment)
	}
}
