package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/audio"
	"github.com/lexiqai/voicechat/internal/turn"
)

// Client sends utterances to the pipeline service. Each Send is exactly one
// HTTP round trip; failures are reported, never retried.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a client for the /api/transcribe endpoint at endpoint.
func NewClient(endpoint string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "pipeline_client").Logger(),
	}
}

// Send ships req and maps the reply onto a turn.Response.
func (c *Client) Send(ctx context.Context, req turn.Request) turn.Response {
	body, contentType, err := encodeRequest(req)
	if err != nil {
		return turn.Fail(turn.InvalidInput, "encode request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return turn.Fail(turn.NetworkError, "create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	if req.SkipAudio {
		httpReq.Header.Set(HeaderSkipAudio, "true")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Msg("Pipeline request failed")
		return turn.Fail(turn.NetworkError, "send request: %v", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return turn.Fail(turn.NetworkError, "read response: %v", err)
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(payload)).
		Int64("latency_ms", time.Since(start).Milliseconds()).
		Msg("Pipeline responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		if json.Unmarshal(payload, &eb) == nil && eb.Error != "" {
			return turn.Failure{Kind: turn.NetworkError, Message: eb.Error}
		}
		return turn.Fail(turn.NetworkError, "pipeline returned status %d", resp.StatusCode)
	}

	mediaType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(mediaType, "audio/") {
		transcript := decodeHeader(resp.Header.Get(HeaderTranscript))
		reply := decodeHeader(resp.Header.Get(HeaderResponse))
		if !complete(transcript, reply) {
			return turn.Fail(turn.NetworkError, errIncompleteResponse)
		}
		return turn.AudioReply{
			Transcript: transcript,
			ReplyText:  reply,
			Audio:      payload,
			MIMEType:   mediaType,
		}
	}

	var tb textBody
	if err := json.Unmarshal(payload, &tb); err != nil {
		return turn.Fail(turn.NetworkError, "decode response: %v", err)
	}
	if !complete(tb.Transcript, tb.Response) {
		return turn.Fail(turn.NetworkError, errIncompleteResponse)
	}
	return turn.TextReply{
		Transcript:      tb.Transcript,
		ReplyText:       tb.Response,
		SynthesisFailed: tb.Error != "",
	}
}

const errIncompleteResponse = "incomplete pipeline response"

// complete reports whether both sides of the exchange are present. A reply
// missing either would poison the history sent with every later turn.
func complete(transcript, reply string) bool {
	return strings.TrimSpace(transcript) != "" && strings.TrimSpace(reply) != ""
}

func encodeRequest(req turn.Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part := make(textproto.MIMEHeader)
	part.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldAudio, uploadFilename))
	mimeType := req.Audio.MIMEType
	if mimeType == "" {
		mimeType = audio.MIMETypeWAV
	}
	part.Set("Content-Type", mimeType)
	fw, err := w.CreatePart(part)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(req.Audio.Data); err != nil {
		return nil, "", err
	}

	if len(req.History) > 0 {
		history, err := json.Marshal(req.History)
		if err != nil {
			return nil, "", err
		}
		if err := w.WriteField(FieldHistory, string(history)); err != nil {
			return nil, "", err
		}
	}
	if err := w.WriteField(FieldTTSEnabled, strconv.FormatBool(req.TTSEnabled)); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func decodeHeader(v string) string {
	decoded, err := url.PathUnescape(v)
	if err != nil {
		return v
	}
	return decoded
}
