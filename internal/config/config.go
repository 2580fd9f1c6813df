package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Provider names accepted by STT_PROVIDER and LLM_PROVIDER
const (
	STTDeepgram = "deepgram"
	STTWhisper  = "whisper"
	STTGoogle   = "google"

	LLMGemini = "gemini"
	LLMGroq   = "groq"
)

// Config holds all configuration for the speech pipeline service
type Config struct {
	// Server configuration
	Port           string        `envconfig:"PORT" default:"8080"`
	BodyLimit      string        `envconfig:"BODY_LIMIT" default:"10M"`           // echo body limit for /api/transcribe
	MaxAudioBytes  int64         `envconfig:"MAX_AUDIO_BYTES" default:"10485760"` // largest accepted audio part
	StageTimeout   time.Duration `envconfig:"STAGE_TIMEOUT" default:"30s"`        // per provider call
	GRPCHealthPort string        `envconfig:"GRPC_HEALTH_PORT" default:"9090"`    // empty disables the gRPC health server

	// Provider selection
	STTProvider string `envconfig:"STT_PROVIDER" default:"deepgram"` // deepgram, whisper, google
	LLMProvider string `envconfig:"LLM_PROVIDER" default:"gemini"`   // gemini, groq

	// Deepgram STT API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Groq (OpenAI compatible) configuration, used for Whisper STT and chat completion
	GroqAPIKey   string `envconfig:"GROQ_API_KEY"`
	GroqBaseURL  string `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1"`
	WhisperModel string `envconfig:"WHISPER_MODEL" default:"whisper-large-v3"`
	GroqModel    string `envconfig:"GROQ_MODEL" default:"llama3-70b-8192"`

	// Google Cloud Speech configuration (credentials come from GOOGLE_APPLICATION_CREDENTIALS)
	GoogleSpeechLanguage string `envconfig:"GOOGLE_SPEECH_LANGUAGE" default:"en-US"`

	// Gemini configuration
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`

	// Completion tuning
	LLMTemperature float32 `envconfig:"LLM_TEMPERATURE" default:"0.7"`
	LLMMaxTokens   int     `envconfig:"LLM_MAX_TOKENS" default:"256"`

	// Cartesia TTS API configuration
	CartesiaAPIKey     string `envconfig:"CARTESIA_API_KEY" required:"true"`
	CartesiaBaseURL    string `envconfig:"CARTESIA_BASE_URL" default:"https://api.cartesia.ai"`
	CartesiaVersion    string `envconfig:"CARTESIA_VERSION" default:"2024-06-30"`
	CartesiaModelID    string `envconfig:"CARTESIA_MODEL_ID" default:"sonic-english"`
	CartesiaVoiceID    string `envconfig:"CARTESIA_VOICE_ID" default:"71a7ad14-091c-4e8e-a314-022ece01c121"`
	CartesiaSampleRate int    `envconfig:"CARTESIA_SAMPLE_RATE" default:"24000"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int           `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout time.Duration `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30s"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// ClientConfig holds configuration for the voice client
type ClientConfig struct {
	PipelineURL    string        `envconfig:"PIPELINE_URL" default:"http://localhost:8080/api/transcribe"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`

	// Capture and voice activity detection
	SampleRate         int     `envconfig:"SAMPLE_RATE" default:"16000"`
	FrameSize          int     `envconfig:"FRAME_SIZE" default:"512"`
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"`
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"20"`
	VADPrefixFrames    int     `envconfig:"VAD_PREFIX_FRAMES" default:"10"`
	InputWAV           string  `envconfig:"INPUT_WAV"` // replay a file instead of the microphone

	// Conversation behaviour
	TTSEnabled           bool          `envconfig:"TTS_ENABLED" default:"true"`
	SkipAudio            bool          `envconfig:"SKIP_AUDIO" default:"false"`
	FailsafeTimeout      time.Duration `envconfig:"FAILSAFE_TIMEOUT" default:"10s"`
	MutedDisplayDuration time.Duration `envconfig:"MUTED_DISPLAY_DURATION" default:"3s"`

	// State feed for UIs; empty disables it
	StateFeedAddr string `envconfig:"STATE_FEED_ADDR" default:":8090"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load reads server configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected providers have credentials.
func (c *Config) Validate() error {
	switch c.STTProvider {
	case STTDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when STT_PROVIDER=%s", STTDeepgram)
		}
	case STTWhisper:
		if c.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY is required when STT_PROVIDER=%s", STTWhisper)
		}
	case STTGoogle:
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider)
	}

	switch c.LLMProvider {
	case LLMGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=%s", LLMGemini)
		}
	case LLMGroq:
		if c.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY is required when LLM_PROVIDER=%s", LLMGroq)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	if c.CartesiaAPIKey == "" {
		return fmt.Errorf("CARTESIA_API_KEY is required")
	}
	if c.StageTimeout <= 0 {
		return fmt.Errorf("STAGE_TIMEOUT must be positive")
	}
	return nil
}

// LoadClient reads voice client configuration, honouring a .env file.
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load client config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks client settings for values the orchestrator cannot run with.
func (c *ClientConfig) Validate() error {
	if c.PipelineURL == "" {
		return fmt.Errorf("PIPELINE_URL is required")
	}
	if c.SampleRate <= 0 || c.FrameSize <= 0 {
		return fmt.Errorf("SAMPLE_RATE and FRAME_SIZE must be positive")
	}
	if c.FailsafeTimeout <= 0 || c.MutedDisplayDuration <= 0 {
		return fmt.Errorf("FAILSAFE_TIMEOUT and MUTED_DISPLAY_DURATION must be positive")
	}
	return nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
