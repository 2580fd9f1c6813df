package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/resilience"
)

// WhisperConfig configures an OpenAI compatible transcription endpoint such as Groq.
type WhisperConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
	Breaker  resilience.Settings
}

// WhisperClient transcribes recordings through /audio/transcriptions.
type WhisperClient struct {
	cfg            WhisperConfig
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// NewWhisperClient creates a Whisper compatible client
func NewWhisperClient(cfg WhisperConfig, logger zerolog.Logger) *WhisperClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &WhisperClient{
		cfg:            cfg,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: cfg.Breaker.New("whisper"),
		logger:         logger.With().Str("provider", "whisper").Logger(),
	}
}

// Name returns the provider label used in metrics
func (c *WhisperClient) Name() string {
	return "whisper"
}

// Transcribe uploads the recording and returns the transcript.
func (c *WhisperClient) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyAudio
	}

	var result transcriptionResponse
	err := c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
		header.Set("Content-Type", mimeType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return fmt.Errorf("creating form file: %w", err)
		}
		if _, err = part.Write(data); err != nil {
			return fmt.Errorf("writing audio: %w", err)
		}
		if err = writer.WriteField("model", c.cfg.Model); err != nil {
			return fmt.Errorf("writing model field: %w", err)
		}
		if err = writer.WriteField("response_format", "json"); err != nil {
			return fmt.Errorf("writing format field: %w", err)
		}
		if c.cfg.Language != "" {
			if err = writer.WriteField("language", c.cfg.Language); err != nil {
				return fmt.Errorf("writing language field: %w", err)
			}
		}
		if err = writer.Close(); err != nil {
			return fmt.Errorf("closing writer: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", body)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("whisper API error %d: %s", resp.StatusCode, string(respBody))
		}

		if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return result.Text, nil
}

// HealthCheck reports whether the provider's circuit is closed
func (c *WhisperClient) HealthCheck(ctx context.Context) (bool, error) {
	return c.circuitBreaker.HealthCheck(ctx)
}
