// Package stt holds the speech-to-text providers used by the transcription
// stage. Each adapter turns one complete recording into text and guards its
// upstream with a circuit breaker.
package stt

import (
	"errors"
	"strings"
)

// ErrEmptyAudio is returned when there is nothing to transcribe.
var ErrEmptyAudio = errors.New("no audio to transcribe")

// joinTranscripts concatenates per-segment transcripts into one utterance.
func joinTranscripts(parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b.String()
}
