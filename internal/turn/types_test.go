package turn

import (
	"errors"
	"testing"
)

func TestValidateHistory(t *testing.T) {
	tests := []struct {
		name    string
		history []Message
		wantErr bool
	}{
		{"empty", nil, false},
		{"valid pair", []Message{{RoleUser, "hi"}, {RoleAssistant, "hello"}}, false},
		{"unknown role", []Message{{Role("system"), "x"}}, true},
		{"empty content", []Message{{RoleUser, "  "}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHistory(tt.history)
			if tt.wantErr && !errors.Is(err, ErrInvalidHistory) {
				t.Errorf("Expected ErrInvalidHistory, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestExchange(t *testing.T) {
	pair, ok := Exchange(AudioReply{Transcript: "hello", ReplyText: "Hi there!"})
	if !ok {
		t.Fatal("Expected audio reply to produce an exchange")
	}
	if pair[0] != (Message{RoleUser, "hello"}) || pair[1] != (Message{RoleAssistant, "Hi there!"}) {
		t.Errorf("Unexpected pair %+v", pair)
	}

	if _, ok := Exchange(TextReply{Transcript: "a", ReplyText: "b", SynthesisFailed: true}); !ok {
		t.Error("Expected text reply to produce an exchange")
	}
	if _, ok := Exchange(Failure{Kind: UpstreamError}); ok {
		t.Error("Expected failure to produce no exchange")
	}
}

func TestRequestWantsAudio(t *testing.T) {
	if !(Request{TTSEnabled: true}).WantsAudio() {
		t.Error("Expected audio when TTS enabled")
	}
	if (Request{TTSEnabled: true, SkipAudio: true}).WantsAudio() {
		t.Error("Expected no audio when skip requested")
	}
	if (Request{}).WantsAudio() {
		t.Error("Expected no audio when TTS disabled")
	}
}

func TestFailureError(t *testing.T) {
	f := Fail(NetworkError, "status %d", 503)
	if f.Error() != "network_error: status 503" {
		t.Errorf("Unexpected error string %q", f.Error())
	}
}
