//go:build portaudio
// +build portaudio

package device

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

const playbackFrames = 1024

// Microphone captures mono float samples from the default input device.
type Microphone struct {
	sampleRate int
	frameSize  int
	logger     zerolog.Logger

	stream *portaudio.Stream
	buffer []float32
}

// NewMicrophone creates a microphone source. Nothing is opened until Open.
func NewMicrophone(sampleRate, frameSize int, logger zerolog.Logger) *Microphone {
	return &Microphone{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		logger:     logger.With().Str("component", "microphone").Logger(),
	}
}

// Open initializes portaudio and starts the input stream.
func (m *Microphone) Open(ctx context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	m.buffer = make([]float32, m.frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), m.frameSize, m.buffer)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting input stream: %w", err)
	}
	m.stream = stream

	m.logger.Info().Int("sample_rate", m.sampleRate).Int("frame_size", m.frameSize).Msg("Microphone started")
	return nil
}

// Read blocks for one frame.
func (m *Microphone) Read(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.stream.Read(); err != nil {
		return nil, fmt.Errorf("reading input stream: %w", err)
	}
	frame := make([]float32, len(m.buffer))
	copy(frame, m.buffer)
	return frame, nil
}

// Close stops the stream and releases portaudio.
func (m *Microphone) Close() error {
	if m.stream == nil {
		return nil
	}
	m.stream.Stop()
	err := m.stream.Close()
	m.stream = nil
	portaudio.Terminate()
	return err
}

// Speaker plays WAV replies on the default output device.
type Speaker struct {
	logger zerolog.Logger
}

// NewSpeaker creates a speaker.
func NewSpeaker(logger zerolog.Logger) *Speaker {
	return &Speaker{logger: logger.With().Str("component", "speaker").Logger()}
}

// Play blocks until the reply has been written out or ctx is cancelled.
func (s *Speaker) Play(ctx context.Context, data []byte, mimeType string) error {
	samples, rate, err := decodeReply(data, mimeType)
	if err != nil {
		return err
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()

	buffer := make([]float32, playbackFrames)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(rate), playbackFrames, buffer)
	if err != nil {
		return fmt.Errorf("opening output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting output stream: %w", err)
	}
	defer stream.Stop()

	s.logger.Debug().Int("samples", len(samples)).Int("sample_rate", rate).Msg("Playing reply")
	for off := 0; off < len(samples); off += playbackFrames {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buffer, samples[off:])
		for i := n; i < len(buffer); i++ {
			buffer[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("writing output stream: %w", err)
		}
	}
	return nil
}
