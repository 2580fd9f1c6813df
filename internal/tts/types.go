// Package tts holds the text-to-speech provider used by the synthesis stage.
package tts

import "errors"

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("no text to synthesize")

// OutputFormat describes the audio container requested from the provider.
type OutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// DefaultOutputFormat is 24kHz float WAV, which the client speaker plays directly.
func DefaultOutputFormat() OutputFormat {
	return OutputFormat{Container: "wav", Encoding: "pcm_f32le", SampleRate: 24000}
}
