package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/resilience"
)

// DeepgramConfig configures the prerecorded Deepgram client.
type DeepgramConfig struct {
	APIKey   string
	Model    string
	Language string
	Breaker  resilience.Settings
}

type streamFunc func(ctx context.Context, r io.Reader) (*msginterfaces.PreRecordedResponse, error)

// DeepgramClient transcribes complete recordings with Deepgram's prerecorded API.
type DeepgramClient struct {
	fromStream     streamFunc
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewDeepgramClient creates a new Deepgram prerecorded client
func NewDeepgramClient(cfg DeepgramConfig, logger zerolog.Logger) *DeepgramClient {
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       cfg.Model,
		Language:    cfg.Language,
		Punctuate:   true,
		SmartFormat: true,
	}

	c := client.NewREST(cfg.APIKey, &interfaces.ClientOptions{})
	dg := api.New(c)

	return newDeepgramClient(func(ctx context.Context, r io.Reader) (*msginterfaces.PreRecordedResponse, error) {
		return dg.FromStream(ctx, r, options)
	}, cfg.Breaker, logger)
}

func newDeepgramClient(fn streamFunc, breaker resilience.Settings, logger zerolog.Logger) *DeepgramClient {
	return &DeepgramClient{
		fromStream:     fn,
		circuitBreaker: breaker.New("deepgram"),
		logger:         logger.With().Str("provider", "deepgram").Logger(),
	}
}

// Name returns the provider label used in metrics
func (d *DeepgramClient) Name() string {
	return "deepgram"
}

// Transcribe sends the recording and returns the best transcript.
func (d *DeepgramClient) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyAudio
	}

	var transcript string
	err := d.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		res, err := d.fromStream(ctx, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("deepgram transcription: %w", err)
		}

		transcript = bestTranscript(res)
		return nil
	})
	if err != nil {
		return "", err
	}

	d.logger.Debug().Int("audio_bytes", len(data)).Int("transcript_chars", len(transcript)).Msg("Deepgram transcription complete")
	return transcript, nil
}

// HealthCheck reports whether the provider's circuit is closed
func (d *DeepgramClient) HealthCheck(ctx context.Context) (bool, error) {
	return d.circuitBreaker.HealthCheck(ctx)
}

// bestTranscript reads the top alternative of the first channel. Input is
// mono, so further channels carry no speech.
func bestTranscript(res *msginterfaces.PreRecordedResponse) string {
	if res == nil || res.Results == nil || len(res.Results.Channels) == 0 {
		return ""
	}
	alts := res.Results.Channels[0].Alternatives
	if len(alts) == 0 {
		return ""
	}
	return joinTranscripts([]string{alts[0].Transcript})
}
