package device

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/audio"
)

// FileConfig describes a WAV file replayed as if it came from a microphone.
type FileConfig struct {
	Path       string
	SampleRate int
	FrameSize  int
	// Realtime paces frames at the capture rate. Off, frames are returned
	// as fast as they are read.
	Realtime bool
	// TrailingSilence is appended so the last utterance ends cleanly.
	TrailingSilence time.Duration
}

// FileSource implements monitor.Source over a WAV file.
type FileSource struct {
	cfg    FileConfig
	clock  clock.Clock
	logger zerolog.Logger

	samples []float32
	pos     int
	ticker  *clock.Ticker
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithFileClock replaces the clock used for realtime pacing.
func WithFileClock(c clock.Clock) FileOption {
	return func(f *FileSource) { f.clock = c }
}

// NewFileSource creates a source for cfg.Path. The file is read on Open.
func NewFileSource(cfg FileConfig, logger zerolog.Logger, opts ...FileOption) *FileSource {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 512
	}
	f := &FileSource{
		cfg:    cfg,
		clock:  clock.New(),
		logger: logger.With().Str("component", "file_source").Str("path", cfg.Path).Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open loads and resamples the file.
func (f *FileSource) Open(ctx context.Context) error {
	data, err := os.ReadFile(f.cfg.Path)
	if err != nil {
		return fmt.Errorf("reading input file: %w", err)
	}
	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("decoding input file: %w", err)
	}
	samples = audio.Resample(samples, rate, f.cfg.SampleRate)

	pad := int(f.cfg.TrailingSilence.Seconds() * float64(f.cfg.SampleRate))
	f.samples = append(samples, make([]float32, pad)...)
	f.pos = 0

	if f.cfg.Realtime {
		interval := time.Duration(f.cfg.FrameSize) * time.Second / time.Duration(f.cfg.SampleRate)
		f.ticker = f.clock.Ticker(interval)
	}

	f.logger.Info().
		Int("source_rate", rate).
		Int("sample_rate", f.cfg.SampleRate).
		Int("samples", len(f.samples)).
		Msg("Input file loaded")
	return nil
}

// Read returns the next frame, or io.EOF once the file is exhausted.
func (f *FileSource) Read(ctx context.Context) ([]float32, error) {
	if f.pos >= len(f.samples) {
		return nil, io.EOF
	}
	if f.ticker != nil {
		select {
		case <-f.ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	end := f.pos + f.cfg.FrameSize
	if end > len(f.samples) {
		end = len(f.samples)
	}
	frame := make([]float32, end-f.pos)
	copy(frame, f.samples[f.pos:end])
	f.pos = end
	return frame, nil
}

// Close stops pacing.
func (f *FileSource) Close() error {
	if f.ticker != nil {
		f.ticker.Stop()
	}
	return nil
}
