// Package orchestrator drives a voice conversation: it reacts to speech
// segments from the monitor, sends each one through the speech pipeline,
// plays the reply and keeps the conversation history.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/audio"
	"github.com/lexiqai/voicechat/internal/observability"
	"github.com/lexiqai/voicechat/internal/turn"
)

// MsgPlaybackFailed is surfaced when the speaker cannot play a reply.
const MsgPlaybackFailed = "audio playback failed"

// Monitor is the capture side the orchestrator arms and disarms.
type Monitor interface {
	Start() error
	Pause()
}

// Pipeline runs one speech turn.
type Pipeline interface {
	Send(ctx context.Context, req turn.Request) turn.Response
}

// Player plays an encoded reply. Play blocks until playback finishes or ctx
// is cancelled.
type Player interface {
	Play(ctx context.Context, data []byte, mimeType string) error
}

// Options tunes a conversation.
type Options struct {
	SampleRate           int
	TTSEnabled           bool
	SkipAudio            bool
	RequestTimeout       time.Duration
	FailsafeTimeout      time.Duration
	MutedDisplayDuration time.Duration
}

// DefaultOptions returns the client defaults.
func DefaultOptions() Options {
	return Options{
		SampleRate:           16000,
		TTSEnabled:           true,
		RequestTimeout:       60 * time.Second,
		FailsafeTimeout:      10 * time.Second,
		MutedDisplayDuration: 3 * time.Second,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// Orchestrator owns the conversation state. Every mutation happens on the
// goroutine running Run; everything else posts events.
type Orchestrator struct {
	monitor  Monitor
	pipeline Pipeline
	player   Player
	opts     Options
	clock    clock.Clock
	logger   zerolog.Logger

	events chan event
	done   chan struct{}

	// Owned by Run.
	runCtx         context.Context
	state          State
	muted          bool
	history        []turn.Message
	lastErr        string
	turnID         uint64
	speakID        uint64
	cancelTurn     context.CancelFunc
	cancelPlayback context.CancelFunc
	failsafe       *clock.Timer
	display        *clock.Timer

	mu       sync.RWMutex
	snapshot Snapshot
	subs     map[chan Snapshot]struct{}
}

// New creates an orchestrator in the Idle state.
func New(mon Monitor, pipe Pipeline, player Player, opts Options, logger zerolog.Logger, options ...Option) *Orchestrator {
	o := &Orchestrator{
		monitor:  mon,
		pipeline: pipe,
		player:   player,
		opts:     opts,
		clock:    clock.New(),
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		events:   make(chan event, 64),
		done:     make(chan struct{}),
		state:    Idle,
		subs:     make(map[chan Snapshot]struct{}),
	}
	for _, opt := range options {
		opt(o)
	}
	o.snapshot = Snapshot{State: Idle, History: []turn.Message{}}
	return o
}

// Run applies events until ctx is cancelled. It must be called exactly once.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.runCtx = ctx
	defer close(o.done)
	defer o.shutdown()

	o.logger.Info().Msg("Conversation loop started")
	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("Conversation loop stopped")
			return nil
		case ev := <-o.events:
			o.apply(ev)
		}
	}
}

// ToggleListening turns listening on from Idle and off from any other state.
func (o *Orchestrator) ToggleListening() { o.post(toggleListening{}) }

// ToggleMute flips reply playback on or off.
func (o *Orchestrator) ToggleMute() { o.post(toggleMute{}) }

// ClearConversation empties the history. An in-flight turn is unaffected.
func (o *Orchestrator) ClearConversation() { o.post(clearConversation{}) }

// OnSpeechStart implements monitor.Handler.
func (o *Orchestrator) OnSpeechStart() { o.post(speechStarted{}) }

// OnSpeechEnd implements monitor.Handler.
func (o *Orchestrator) OnSpeechEnd(segment []float32) { o.post(speechEnded{segment: segment}) }

// Snapshot returns the latest published state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return copySnapshot(o.snapshot)
}

// Subscribe returns a channel receiving every published snapshot, starting
// with the current one, and a func to stop the subscription. Slow readers
// only miss intermediate snapshots, never the latest.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)
	o.mu.Lock()
	o.subs[ch] = struct{}{}
	ch <- copySnapshot(o.snapshot)
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, ch)
			o.mu.Unlock()
		})
	}
}

func (o *Orchestrator) post(ev event) {
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

func (o *Orchestrator) apply(ev event) {
	switch e := ev.(type) {
	case toggleListening:
		if o.state == Idle {
			o.startListening()
		} else {
			o.stopListening()
		}
	case toggleMute:
		o.muted = !o.muted
		o.logger.Info().Bool("muted", o.muted).Msg("Mute toggled")
		if o.muted && o.state == AiSpeaking && o.cancelPlayback != nil {
			o.finishSpeaking()
			return
		}
		o.publish()
	case clearConversation:
		o.history = nil
		o.lastErr = ""
		o.publish()
	case speechStarted:
		if o.state != Listening {
			o.logger.Debug().Stringer("state", o.state).Msg("Ignoring speech start")
			return
		}
		o.setState(UserSpeaking)
	case speechEnded:
		if o.state != UserSpeaking {
			o.logger.Debug().Stringer("state", o.state).Msg("Ignoring speech end")
			return
		}
		o.submit(e.segment)
	case pipelineResult:
		if e.turnID != o.turnID || o.state != Transcribing {
			o.logger.Debug().Uint64("turn", e.turnID).Msg("Dropping stale pipeline result")
			return
		}
		o.receive(e.resp)
	case playbackDone:
		if e.speakID != o.speakID || o.state != AiSpeaking {
			return
		}
		if e.err != nil && !errors.Is(e.err, context.Canceled) {
			o.logger.Error().Err(e.err).Msg("Playback failed")
			o.lastErr = MsgPlaybackFailed
		}
		o.finishSpeaking()
	case displayElapsed:
		if e.speakID != o.speakID || o.state != AiSpeaking {
			return
		}
		o.finishSpeaking()
	case failsafeFired:
		if e.speakID != o.speakID || o.state != AiSpeaking {
			return
		}
		o.logger.Warn().Dur("timeout", o.opts.FailsafeTimeout).Msg("Playback failsafe fired")
		o.finishSpeaking()
	}
}

func (o *Orchestrator) startListening() {
	if err := o.monitor.Start(); err != nil {
		o.logger.Error().Err(err).Msg("Failed to start monitor")
		o.lastErr = err.Error()
		o.publish()
		return
	}
	o.lastErr = ""
	o.setState(Listening)
}

func (o *Orchestrator) stopListening() {
	o.monitor.Pause()
	if o.cancelTurn != nil {
		o.cancelTurn()
		o.cancelTurn = nil
	}
	// Any result still on its way belongs to an abandoned turn.
	o.turnID++
	o.stopSpeaking()
	o.setState(Idle)
}

func (o *Orchestrator) submit(segment []float32) {
	o.monitor.Pause()

	encoded, err := audio.EncodeWAV(segment, o.opts.SampleRate)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Discarding speech segment")
		o.lastErr = err.Error()
		o.resume()
		return
	}

	o.setState(Transcribing)

	o.turnID++
	id := o.turnID
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if o.opts.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(o.runCtx, o.opts.RequestTimeout)
	} else {
		ctx, cancel = context.WithCancel(o.runCtx)
	}
	o.cancelTurn = cancel

	req := turn.Request{
		Audio:      encoded,
		History:    append([]turn.Message(nil), o.history...),
		TTSEnabled: o.opts.TTSEnabled,
		SkipAudio:  o.opts.SkipAudio,
	}
	o.logger.Info().
		Uint64("turn", id).
		Int("samples", len(segment)).
		Int("history_len", len(req.History)).
		Msg("Submitting speech segment")

	go func() {
		defer cancel()
		resp := o.pipeline.Send(ctx, req)
		o.post(pipelineResult{turnID: id, resp: resp})
	}()
}

func (o *Orchestrator) receive(resp turn.Response) {
	o.cancelTurn = nil

	pair, ok := turn.Exchange(resp)
	if !ok {
		msg := "request failed"
		if f, isFailure := resp.(turn.Failure); isFailure {
			msg = f.Message
			o.logger.Warn().Str("kind", string(f.Kind)).Str("error", f.Message).Msg("Turn failed")
		}
		o.lastErr = msg
		o.resume()
		return
	}

	o.history = append(o.history, pair[0], pair[1])
	o.lastErr = ""
	o.logger.Info().
		Uint64("turn", o.turnID).
		Str("transcript", pair[0].Content).
		Msg("Turn completed")
	o.setState(Thinking)

	switch r := resp.(type) {
	case turn.AudioReply:
		if len(r.Audio) > 0 {
			o.speak(r.Audio, r.MIMEType)
			return
		}
	case turn.TextReply:
		if r.SynthesisFailed {
			o.lastErr = turn.MsgSynthesisFailed
		}
	}
	o.resume()
}

// speak enters AiSpeaking. Timers are armed before the state is published so
// that an observer of AiSpeaking can rely on them.
func (o *Orchestrator) speak(data []byte, mimeType string) {
	o.speakID++
	id := o.speakID

	o.failsafe = o.clock.AfterFunc(o.opts.FailsafeTimeout, func() {
		o.post(failsafeFired{speakID: id})
	})

	if o.muted {
		o.display = o.clock.AfterFunc(o.opts.MutedDisplayDuration, func() {
			o.post(displayElapsed{speakID: id})
		})
	} else {
		ctx, cancel := context.WithCancel(o.runCtx)
		o.cancelPlayback = cancel
		go func() {
			err := o.player.Play(ctx, data, mimeType)
			o.post(playbackDone{speakID: id, err: err})
		}()
	}

	o.setState(AiSpeaking)
}

func (o *Orchestrator) stopSpeaking() {
	if o.failsafe != nil {
		o.failsafe.Stop()
		o.failsafe = nil
	}
	if o.display != nil {
		o.display.Stop()
		o.display = nil
	}
	if o.cancelPlayback != nil {
		o.cancelPlayback()
		o.cancelPlayback = nil
	}
}

func (o *Orchestrator) finishSpeaking() {
	o.stopSpeaking()
	o.resume()
}

// resume re-arms the monitor and returns to Listening.
func (o *Orchestrator) resume() {
	if !CanTransition(o.state, Listening) {
		o.publish()
		return
	}
	if err := o.monitor.Start(); err != nil {
		o.logger.Error().Err(err).Msg("Failed to restart monitor")
		o.lastErr = err.Error()
		o.setState(Idle)
		return
	}
	o.setState(Listening)
}

func (o *Orchestrator) setState(next State) bool {
	prev := o.state
	if !CanTransition(prev, next) {
		o.logger.Error().Stringer("from", prev).Stringer("to", next).Msg("Rejected state transition")
		return false
	}
	o.state = next
	observability.RecordStateTransition(prev.String(), next.String())
	o.logger.Debug().Stringer("from", prev).Stringer("to", next).Msg("State changed")
	o.publish()
	return true
}

func (o *Orchestrator) publish() {
	snap := Snapshot{
		State:   o.state,
		Muted:   o.muted,
		History: append([]turn.Message{}, o.history...),
		Error:   o.lastErr,
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshot = snap
	for ch := range o.subs {
		select {
		case ch <- copySnapshot(snap):
		default:
			// Drop the oldest so the newest always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- copySnapshot(snap):
			default:
			}
		}
	}
}

func (o *Orchestrator) shutdown() {
	if o.cancelTurn != nil {
		o.cancelTurn()
		o.cancelTurn = nil
	}
	o.stopSpeaking()
	o.monitor.Pause()
}

func copySnapshot(s Snapshot) Snapshot {
	s.History = append([]turn.Message{}, s.History...)
	return s
}
