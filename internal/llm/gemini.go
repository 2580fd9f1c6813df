// Package llm holds the language completion providers used by the pipeline's
// completion stage.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/lexiqai/voicechat/internal/resilience"
	"github.com/lexiqai/voicechat/internal/turn"
)

// ErrNoContent is returned when the provider answered without any text.
var ErrNoContent = errors.New("no content generated")

// generator is the subset of *genai.Models used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures the Gemini completion client.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
	Breaker         resilience.Settings
}

// GeminiClient completes turns with the Gemini API.
type GeminiClient struct {
	models          generator
	model           string
	temperature     float32
	maxOutputTokens int
	circuitBreaker  *resilience.CircuitBreaker
	logger          zerolog.Logger
}

// NewGeminiClient creates a Gemini client
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger zerolog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGeminiClient(client.Models, cfg, logger), nil
}

func newGeminiClient(models generator, cfg GeminiConfig, logger zerolog.Logger) *GeminiClient {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiClient{
		models:          models,
		model:           model,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		circuitBreaker:  cfg.Breaker.New("gemini"),
		logger:          logger.With().Str("provider", "gemini").Logger(),
	}
}

// Name returns the provider label used in metrics
func (g *GeminiClient) Name() string {
	return "gemini"
}

// Complete sends history plus the new user message and returns the reply text.
func (g *GeminiClient) Complete(ctx context.Context, system string, history []turn.Message, user string) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		role := genai.RoleUser
		if m.Role == turn.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}
	contents = append(contents, genai.NewContentFromText(user, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	if g.temperature > 0 {
		config.Temperature = genai.Ptr(g.temperature)
	}
	if g.maxOutputTokens > 0 {
		config.MaxOutputTokens = int32(g.maxOutputTokens)
	}

	var text string
	err := g.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
		if err != nil {
			return fmt.Errorf("gemini generate: %w", err)
		}
		text = responseText(resp)
		return nil
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrNoContent
	}

	g.logger.Debug().Int("history_len", len(history)).Int("reply_chars", len(text)).Msg("Gemini completion")
	return text, nil
}

// HealthCheck reports whether the provider's circuit is closed
func (g *GeminiClient) HealthCheck(ctx context.Context) (bool, error) {
	return g.circuitBreaker.HealthCheck(ctx)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
