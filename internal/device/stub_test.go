//go:build !portaudio
// +build !portaudio

package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/audio"
)

func TestStubMicrophoneUnavailable(t *testing.T) {
	mic := NewMicrophone(16000, 512, zerolog.Nop())
	if err := mic.Open(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Open = %v, want ErrUnavailable", err)
	}
}

func TestStubSpeakerWaitsAndCancels(t *testing.T) {
	enc, err := audio.EncodeWAV(make([]float32, 160), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	sp := NewSpeaker(zerolog.Nop())

	start := time.Now()
	if err := sp.Play(context.Background(), enc.Data, enc.MIMEType); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("Play returned before the reply duration")
	}

	long, _ := audio.EncodeWAV(make([]float32, 16000*5), 16000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sp.Play(ctx, long.Data, long.MIMEType); !errors.Is(err, context.Canceled) {
		t.Errorf("Play after cancel = %v", err)
	}
}
