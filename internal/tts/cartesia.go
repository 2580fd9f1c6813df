package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/audio"
	"github.com/lexiqai/voicechat/internal/resilience"
)

// CartesiaConfig configures the Cartesia bytes endpoint.
type CartesiaConfig struct {
	APIKey     string
	BaseURL    string
	Version    string
	ModelID    string
	VoiceID    string
	SampleRate int
	Timeout    time.Duration
	Breaker    resilience.Settings
}

// CartesiaClient synthesizes complete replies with Cartesia's /tts/bytes API.
type CartesiaClient struct {
	cfg            CartesiaConfig
	format         OutputFormat
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// CartesiaRequest represents the request payload for Cartesia TTS API
type CartesiaRequest struct {
	ModelID      string        `json:"model_id"`
	Transcript   string        `json:"transcript"`
	Voice        CartesiaVoice `json:"voice"`
	OutputFormat OutputFormat  `json:"output_format"`
}

// CartesiaVoice selects a voice by id
type CartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

// NewCartesiaClient creates a new Cartesia TTS client
func NewCartesiaClient(cfg CartesiaConfig, logger zerolog.Logger) *CartesiaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cartesia.ai"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	format := DefaultOutputFormat()
	if cfg.SampleRate > 0 {
		format.SampleRate = cfg.SampleRate
	}
	return &CartesiaClient{
		cfg:            cfg,
		format:         format,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: cfg.Breaker.New("cartesia"),
		logger:         logger.With().Str("provider", "cartesia").Logger(),
	}
}

// Name returns the provider label used in metrics
func (c *CartesiaClient) Name() string {
	return "cartesia"
}

// Synthesize renders text into a WAV file.
func (c *CartesiaClient) Synthesize(ctx context.Context, text string) (audio.EncodedAudio, error) {
	if strings.TrimSpace(text) == "" {
		return audio.EncodedAudio{}, ErrEmptyText
	}

	jsonData, err := json.Marshal(CartesiaRequest{
		ModelID:      c.cfg.ModelID,
		Transcript:   text,
		Voice:        CartesiaVoice{Mode: "id", ID: c.cfg.VoiceID},
		OutputFormat: c.format,
	})
	if err != nil {
		return audio.EncodedAudio{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	var data []byte
	err = c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/tts/bytes", bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Cartesia-Version", c.cfg.Version)
		req.Header.Set("X-API-Key", c.cfg.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to make request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("cartesia API returned status %d: %s", resp.StatusCode, string(body))
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading cartesia audio: %w", err)
		}
		return nil
	})
	if err != nil {
		return audio.EncodedAudio{}, err
	}

	c.logger.Debug().Int("text_chars", len(text)).Int("audio_bytes", len(data)).Msg("Cartesia synthesis complete")
	return audio.EncodedAudio{Data: data, MIMEType: audio.MIMETypeWAV}, nil
}

// HealthCheck reports whether the provider's circuit is closed
func (c *CartesiaClient) HealthCheck(ctx context.Context) (bool, error) {
	return c.circuitBreaker.HealthCheck(ctx)
}
