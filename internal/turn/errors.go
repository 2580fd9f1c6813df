package turn

// Kind classifies why a turn failed.
type Kind string

const (
	InvalidInput     Kind = "invalid_input"
	InvalidRequest   Kind = "invalid_request"
	InitError        Kind = "init_error"
	NoSpeechDetected Kind = "no_speech_detected"
	UpstreamError    Kind = "upstream_error"
	SynthesisError   Kind = "synthesis_error"
	NetworkError     Kind = "network_error"
)

// Client facing messages, matching what the HTTP surface returns.
const (
	MsgInvalidRequest  = "Invalid request data"
	MsgNoSpeech        = "No speech detected in audio"
	MsgSynthesisFailed = "TTS generation failed"
)
