package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/audio"
	"github.com/lexiqai/voicechat/internal/observability"
	"github.com/lexiqai/voicechat/internal/turn"
)

var errEmptySynthesis = errors.New("synthesizer returned no audio")

// Transcriber converts recorded speech into text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Completer produces the assistant reply for a user utterance.
type Completer interface {
	Name() string
	Complete(ctx context.Context, system string, history []turn.Message, user string) (string, error)
}

// Synthesizer renders reply text as audio.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (audio.EncodedAudio, error)
}

// Service runs the three pipeline stages for a single request. It keeps no
// per-request state and may serve any number of requests concurrently.
type Service struct {
	stt    Transcriber
	llm    Completer
	tts    Synthesizer
	logger zerolog.Logger

	now          func() time.Time
	stageTimeout time.Duration
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithNow overrides the clock used for the date in the system instruction.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithStageTimeout bounds each provider call.
func WithStageTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.stageTimeout = d }
}

// NewService wires the stage providers together.
func NewService(stt Transcriber, llm Completer, tts Synthesizer, logger zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		stt:    stt,
		llm:    llm,
		tts:    tts,
		logger: logger.With().Str("component", "pipeline").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle runs transcription, completion and, when requested, synthesis.
// Transcription and completion failures end the turn; a synthesis failure is
// downgraded to a text reply.
func (s *Service) Handle(ctx context.Context, req turn.Request) turn.Response {
	logger := observability.FromContext(ctx, s.logger)
	metrics := observability.NewTurnMetrics()

	fail := func(f turn.Failure) turn.Response {
		metrics.RecordOutcome(string(f.Kind))
		observability.RecordError(string(f.Kind), "pipeline")
		return f
	}

	if len(req.Audio.Data) == 0 {
		logger.Warn().Msg("Request has no audio")
		return fail(turn.Fail(turn.InvalidRequest, turn.MsgInvalidRequest))
	}
	if err := turn.ValidateHistory(req.History); err != nil {
		logger.Warn().Err(err).Msg("Rejected message history")
		return fail(turn.Fail(turn.InvalidRequest, turn.MsgInvalidRequest))
	}
	observability.RecordAudioBytes("in", len(req.Audio.Data))

	// Stage 1: transcription
	metrics.RecordStageStart(observability.StageTranscription)
	stageCtx, cancel := s.stageContext(ctx)
	transcript, err := s.stt.Transcribe(stageCtx, req.Audio.Data, req.Audio.MIMEType)
	cancel()
	latency := metrics.RecordStageEnd(observability.StageTranscription, s.stt.Name(), err == nil)
	if err != nil {
		logger.Error().Err(err).Str("provider", s.stt.Name()).Msg("Transcription failed")
		return fail(turn.Fail(turn.UpstreamError, "transcription failed: %v", err))
	}

	transcript = strings.TrimSpace(transcript)
	logger.Info().
		Str("provider", s.stt.Name()).
		Int64("transcription_ms", latency.Milliseconds()).
		Int("transcript_chars", len(transcript)).
		Msg("Transcription complete")
	if transcript == "" {
		return fail(turn.Fail(turn.NoSpeechDetected, turn.MsgNoSpeech))
	}

	// Stage 2: completion
	metrics.RecordStageStart(observability.StageCompletion)
	stageCtx, cancel = s.stageContext(ctx)
	reply, err := s.llm.Complete(stageCtx, SystemInstruction(s.now()), req.History, transcript)
	cancel()
	latency = metrics.RecordStageEnd(observability.StageCompletion, s.llm.Name(), err == nil)
	if err != nil {
		logger.Error().Err(err).Str("provider", s.llm.Name()).Msg("Completion failed")
		return fail(turn.Fail(turn.UpstreamError, "completion failed: %v", err))
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		logger.Error().Str("provider", s.llm.Name()).Msg("Completion returned no text")
		return fail(turn.Fail(turn.UpstreamError, "completion returned no text"))
	}
	logger.Info().
		Str("provider", s.llm.Name()).
		Int64("completion_ms", latency.Milliseconds()).
		Int("history_len", len(req.History)).
		Msg("Completion complete")

	if !req.WantsAudio() || s.tts == nil {
		metrics.RecordOutcome("text")
		return turn.TextReply{Transcript: transcript, ReplyText: reply}
	}

	// Stage 3: synthesis
	metrics.RecordStageStart(observability.StageSynthesis)
	stageCtx, cancel = s.stageContext(ctx)
	speech, err := s.tts.Synthesize(stageCtx, reply)
	cancel()
	if err == nil && len(speech.Data) == 0 {
		err = errEmptySynthesis
	}
	latency = metrics.RecordStageEnd(observability.StageSynthesis, s.tts.Name(), err == nil)
	if err != nil {
		logger.Warn().Err(err).Str("provider", s.tts.Name()).Msg("Synthesis failed, returning text only")
		observability.RecordError(string(turn.SynthesisError), "pipeline")
		metrics.RecordOutcome("downgraded")
		return turn.TextReply{Transcript: transcript, ReplyText: reply, SynthesisFailed: true}
	}

	observability.RecordAudioBytes("out", len(speech.Data))
	logger.Info().
		Str("provider", s.tts.Name()).
		Int64("synthesis_ms", latency.Milliseconds()).
		Int("audio_bytes", len(speech.Data)).
		Msg("Synthesis complete")

	mimeType := speech.MIMEType
	if mimeType == "" {
		mimeType = audio.MIMETypeWAV
	}
	metrics.RecordOutcome("audio")
	return turn.AudioReply{
		Transcript: transcript,
		ReplyText:  reply,
		Audio:      speech.Data,
		MIMEType:   mimeType,
	}
}

func (s *Service) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.stageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.stageTimeout)
}
