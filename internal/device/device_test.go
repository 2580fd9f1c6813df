package device

import (
	"testing"
	"time"

	"github.com/lexiqai/voicechat/internal/audio"
)

func TestPlaybackDuration(t *testing.T) {
	enc, err := audio.EncodeWAV(make([]float32, 12000), 24000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	d, err := PlaybackDuration(enc.Data, enc.MIMEType)
	if err != nil {
		t.Fatalf("PlaybackDuration: %v", err)
	}
	if d != 500*time.Millisecond {
		t.Errorf("duration = %v, want 500ms", d)
	}
}

func TestPlaybackDurationRejects(t *testing.T) {
	if _, err := PlaybackDuration([]byte("ID3"), "audio/mpeg"); err == nil {
		t.Error("expected error for mp3")
	}
	if _, err := PlaybackDuration([]byte("garbage"), audio.MIMETypeWAV); err == nil {
		t.Error("expected error for invalid wav")
	}
}
