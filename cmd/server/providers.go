package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/config"
	"github.com/lexiqai/voicechat/internal/llm"
	"github.com/lexiqai/voicechat/internal/observability"
	"github.com/lexiqai/voicechat/internal/pipeline"
	"github.com/lexiqai/voicechat/internal/resilience"
	"github.com/lexiqai/voicechat/internal/stt"
	"github.com/lexiqai/voicechat/internal/tts"
)

type healthChecker interface {
	HealthCheck(ctx context.Context) (bool, error)
}

type transcriber interface {
	pipeline.Transcriber
	healthChecker
}

type completer interface {
	pipeline.Completer
	healthChecker
}

type synthesizer interface {
	pipeline.Synthesizer
	healthChecker
}

// providers holds the adapters selected by configuration.
type providers struct {
	stt     transcriber
	llm     completer
	tts     synthesizer
	closers []func() error
}

func buildProviders(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*providers, error) {
	breaker := resilience.Settings{
		MaxFailures:  cfg.CircuitBreakerMaxFailures,
		ResetTimeout: cfg.CircuitBreakerResetTimeout,
	}
	p := &providers{}

	switch cfg.STTProvider {
	case config.STTDeepgram:
		p.stt = stt.NewDeepgramClient(stt.DeepgramConfig{
			APIKey:   cfg.DeepgramAPIKey,
			Model:    cfg.DeepgramModel,
			Language: cfg.DeepgramLanguage,
			Breaker:  breaker,
		}, logger)
	case config.STTWhisper:
		p.stt = stt.NewWhisperClient(stt.WhisperConfig{
			APIKey:  cfg.GroqAPIKey,
			BaseURL: cfg.GroqBaseURL,
			Model:   cfg.WhisperModel,
			Timeout: cfg.StageTimeout,
			Breaker: breaker,
		}, logger)
	case config.STTGoogle:
		client, err := stt.NewGoogleClient(ctx, stt.GoogleConfig{
			Language: cfg.GoogleSpeechLanguage,
			Breaker:  breaker,
		}, logger)
		if err != nil {
			return nil, err
		}
		p.stt = client
		p.closers = append(p.closers, client.Close)
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.STTProvider)
	}

	switch cfg.LLMProvider {
	case config.LLMGemini:
		client, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:          cfg.GeminiAPIKey,
			Model:           cfg.GeminiModel,
			Temperature:     cfg.LLMTemperature,
			MaxOutputTokens: cfg.LLMMaxTokens,
			Breaker:         breaker,
		}, logger)
		if err != nil {
			p.close(logger)
			return nil, err
		}
		p.llm = client
	case config.LLMGroq:
		p.llm = llm.NewChatClient(llm.ChatConfig{
			APIKey:      cfg.GroqAPIKey,
			BaseURL:     cfg.GroqBaseURL,
			Model:       cfg.GroqModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
			Timeout:     cfg.StageTimeout,
			Breaker:     breaker,
		}, logger)
	default:
		p.close(logger)
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}

	p.tts = tts.NewCartesiaClient(tts.CartesiaConfig{
		APIKey:     cfg.CartesiaAPIKey,
		BaseURL:    cfg.CartesiaBaseURL,
		Version:    cfg.CartesiaVersion,
		ModelID:    cfg.CartesiaModelID,
		VoiceID:    cfg.CartesiaVoiceID,
		SampleRate: cfg.CartesiaSampleRate,
		Timeout:    cfg.StageTimeout,
		Breaker:    breaker,
	}, logger)

	return p, nil
}

// checks names each provider's breaker check for /ready and gRPC health.
func (p *providers) checks() map[string]observability.HealthCheckFunc {
	return map[string]observability.HealthCheckFunc{
		"stt_" + p.stt.Name(): p.stt.HealthCheck,
		"llm_" + p.llm.Name(): p.llm.HealthCheck,
		"tts_" + p.tts.Name(): p.tts.HealthCheck,
	}
}

func (p *providers) close(logger zerolog.Logger) {
	for _, c := range p.closers {
		if err := c(); err != nil {
			logger.Warn().Err(err).Msg("Error closing provider")
		}
	}
}
