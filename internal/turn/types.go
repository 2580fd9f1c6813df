// Package turn defines the values exchanged during one conversational turn:
// the request shipped to the speech pipeline, its closed set of outcomes and
// the message history both sides share.
package turn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lexiqai/voicechat/internal/audio"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one entry in the conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ErrInvalidHistory is returned by ValidateHistory.
var ErrInvalidHistory = errors.New("invalid message history")

// ValidateHistory checks every message has a known role and non-empty content.
func ValidateHistory(history []Message) error {
	for i, m := range history {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: message %d has unknown role %q", ErrInvalidHistory, i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("%w: message %d has empty content", ErrInvalidHistory, i)
		}
	}
	return nil
}

// Request is one utterance plus the context needed to answer it.
type Request struct {
	Audio      audio.EncodedAudio
	History    []Message
	TTSEnabled bool
	SkipAudio  bool
}

// WantsAudio reports whether the caller asked for a synthesized reply.
func (r Request) WantsAudio() bool {
	return r.TTSEnabled && !r.SkipAudio
}

// Response is the outcome of one pipeline call. It is implemented only by
// AudioReply, TextReply and Failure.
type Response interface {
	isResponse()
}

// AudioReply carries a synthesized spoken reply.
type AudioReply struct {
	Transcript string
	ReplyText  string
	Audio      []byte
	MIMEType   string
}

// TextReply carries a reply without audio. SynthesisFailed is set when audio
// was requested but synthesis did not succeed.
type TextReply struct {
	Transcript      string
	ReplyText       string
	SynthesisFailed bool
}

// Failure is a turn that produced no reply.
type Failure struct {
	Kind    Kind
	Message string
}

func (AudioReply) isResponse() {}
func (TextReply) isResponse()  {}
func (Failure) isResponse()    {}

// Error makes a Failure usable wherever an error is expected.
func (f Failure) Error() string {
	if f.Message == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Fail builds a Failure response.
func Fail(kind Kind, format string, args ...any) Failure {
	return Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Exchange returns the user/assistant pair a successful response appends to
// history. ok is false for failures.
func Exchange(resp Response) (pair [2]Message, ok bool) {
	switch r := resp.(type) {
	case AudioReply:
		return [2]Message{{Role: RoleUser, Content: r.Transcript}, {Role: RoleAssistant, Content: r.ReplyText}}, true
	case TextReply:
		return [2]Message{{Role: RoleUser, Content: r.Transcript}, {Role: RoleAssistant, Content: r.ReplyText}}, true
	default:
		return pair, false
	}
}
