// Package pipeline implements both ends of the speech pipeline: the Service
// that turns one utterance into a reply through transcription, completion and
// synthesis, its HTTP surface, and the Client the voice client calls it with.
package pipeline

// Multipart fields and headers of POST /api/transcribe.
const (
	RoutePath = "/api/transcribe"

	FieldAudio      = "audio"
	FieldHistory    = "messageHistory"
	FieldTTSEnabled = "ttsEnabled"

	HeaderSkipAudio  = "X-Skip-Audio"
	HeaderTranscript = "X-Transcript"
	HeaderResponse   = "X-Response"

	uploadFilename = "speech.wav"
)

// textBody is the JSON reply when no audio is returned.
type textBody struct {
	Transcript string  `json:"transcript"`
	Response   string  `json:"response"`
	AudioURL   *string `json:"audioUrl"`
	Error      string  `json:"error,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}
