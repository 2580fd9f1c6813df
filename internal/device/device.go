// Package device connects the conversation to audio hardware: microphone
// capture for the voice monitor and speaker playback for replies. Real devices
// need the portaudio build tag; without it the microphone is unavailable and
// the speaker only waits out the reply's duration.
package device

import (
	"errors"
	"fmt"
	"time"

	"github.com/lexiqai/voicechat/internal/audio"
)

// ErrUnavailable is returned by devices compiled without portaudio support.
var ErrUnavailable = errors.New("audio device not available: rebuild with -tags portaudio")

// decodeReply turns a synthesized WAV reply into mono samples.
func decodeReply(data []byte, mimeType string) ([]float32, int, error) {
	if mimeType != "" && mimeType != audio.MIMETypeWAV && mimeType != "audio/x-wav" {
		return nil, 0, fmt.Errorf("unsupported reply format %q", mimeType)
	}
	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, 0, fmt.Errorf("decoding reply: %w", err)
	}
	return samples, rate, nil
}

// PlaybackDuration reports how long a WAV reply plays for.
func PlaybackDuration(data []byte, mimeType string) (time.Duration, error) {
	samples, rate, err := decodeReply(data, mimeType)
	if err != nil {
		return 0, err
	}
	if rate <= 0 {
		return 0, fmt.Errorf("invalid sample rate %d", rate)
	}
	return time.Duration(len(samples)) * time.Second / time.Duration(rate), nil
}
