package stt

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/audio"
	"github.com/lexiqai/voicechat/internal/resilience"
)

// recognizer is the subset of *speech.Client used here.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// GoogleConfig configures Google Cloud Speech-to-Text.
type GoogleConfig struct {
	Language string
	Breaker  resilience.Settings
}

// GoogleClient transcribes recordings with Cloud Speech synchronous recognition.
type GoogleClient struct {
	client         recognizer
	language       string
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewGoogleClient creates a client using application default credentials.
func NewGoogleClient(ctx context.Context, cfg GoogleConfig, logger zerolog.Logger) (*GoogleClient, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return newGoogleClient(c, cfg, logger), nil
}

func newGoogleClient(c recognizer, cfg GoogleConfig, logger zerolog.Logger) *GoogleClient {
	return &GoogleClient{
		client:         c,
		language:       cfg.Language,
		circuitBreaker: cfg.Breaker.New("google_speech"),
		logger:         logger.With().Str("provider", "google_speech").Logger(),
	}
}

// Name returns the provider label used in metrics
func (g *GoogleClient) Name() string {
	return "google_speech"
}

// Transcribe converts the WAV recording to 16-bit PCM and runs recognition.
func (g *GoogleClient) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyAudio
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return "", fmt.Errorf("google speech input: %w", err)
	}
	pcm, err := audio.EncodeWAV(samples, rate)
	if err != nil {
		return "", fmt.Errorf("google speech input: %w", err)
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(rate),
			LanguageCode:               g.language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm.Data[44:]},
		},
	}

	var transcript string
	err = g.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := g.client.Recognize(ctx, req)
		if err != nil {
			return fmt.Errorf("google speech recognize: %w", err)
		}

		var parts []string
		for _, result := range resp.GetResults() {
			if alts := result.GetAlternatives(); len(alts) > 0 {
				parts = append(parts, alts[0].GetTranscript())
			}
		}
		transcript = joinTranscripts(parts)
		return nil
	})
	if err != nil {
		return "", err
	}
	return transcript, nil
}

// HealthCheck reports whether the provider's circuit is closed
func (g *GoogleClient) HealthCheck(ctx context.Context) (bool, error) {
	return g.circuitBreaker.HealthCheck(ctx)
}

// Close releases the gRPC connection
func (g *GoogleClient) Close() error {
	return g.client.Close()
}
