//go:build !portaudio
// +build !portaudio

package device

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Microphone is unavailable without portaudio.
type Microphone struct {
	logger zerolog.Logger
}

// NewMicrophone creates a microphone that always fails to open.
func NewMicrophone(sampleRate, frameSize int, logger zerolog.Logger) *Microphone {
	return &Microphone{logger: logger}
}

// Open always returns ErrUnavailable.
func (m *Microphone) Open(ctx context.Context) error {
	return ErrUnavailable
}

// Read always returns ErrUnavailable.
func (m *Microphone) Read(ctx context.Context) ([]float32, error) {
	return nil, ErrUnavailable
}

// Close is a no-op.
func (m *Microphone) Close() error {
	return nil
}

// Speaker waits out each reply's duration instead of playing it.
type Speaker struct {
	logger zerolog.Logger
}

// NewSpeaker creates a silent speaker.
func NewSpeaker(logger zerolog.Logger) *Speaker {
	return &Speaker{logger: logger.With().Str("component", "speaker").Logger()}
}

// Play blocks for the reply's duration or until ctx is cancelled.
func (s *Speaker) Play(ctx context.Context, data []byte, mimeType string) error {
	d, err := PlaybackDuration(data, mimeType)
	if err != nil {
		return err
	}
	s.logger.Info().Dur("duration", d).Msg("No audio output, simulating playback")

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
