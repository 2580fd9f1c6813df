package orchestrator

import (
	"fmt"

	"github.com/lexiqai/voicechat/internal/turn"
)

// State is the conversation state shown to the user.
type State int

const (
	Idle State = iota
	Listening
	UserSpeaking
	Transcribing
	Thinking
	AiSpeaking
)

var stateNames = map[State]string{
	Idle:         "idle",
	Listening:    "listening",
	UserSpeaking: "user_speaking",
	Transcribing: "transcribing",
	Thinking:     "thinking",
	AiSpeaking:   "ai_speaking",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for st, name := range stateNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown conversation state %q", b)
}

// transitions lists every permitted move other than to Idle, which is
// reachable from anywhere by turning listening off.
var transitions = map[State][]State{
	Idle:         {Listening},
	Listening:    {UserSpeaking},
	UserSpeaking: {Transcribing, Listening},
	Transcribing: {Thinking, Listening},
	Thinking:     {AiSpeaking, Listening},
	AiSpeaking:   {Listening},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	if to == Idle {
		return from != Idle
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Snapshot is the observable conversation state.
type Snapshot struct {
	State   State          `json:"state"`
	Muted   bool           `json:"muted"`
	History []turn.Message `json:"history"`
	Error   string         `json:"error,omitempty"`
}
