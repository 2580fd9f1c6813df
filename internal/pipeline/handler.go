package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/audio"
	"github.com/lexiqai/voicechat/internal/observability"
	"github.com/lexiqai/voicechat/internal/turn"
)

// Responder answers one pipeline request. *Service implements it.
type Responder interface {
	Handle(ctx context.Context, req turn.Request) turn.Response
}

// Handler exposes a Responder as POST /api/transcribe.
type Handler struct {
	svc           Responder
	maxAudioBytes int64
	logger        zerolog.Logger
}

// NewHandler creates the HTTP handler. maxAudioBytes <= 0 disables the size check.
func NewHandler(svc Responder, maxAudioBytes int64, logger zerolog.Logger) *Handler {
	return &Handler{
		svc:           svc,
		maxAudioBytes: maxAudioBytes,
		logger:        logger.With().Str("component", "http").Logger(),
	}
}

// Register mounts the route on e.
func (h *Handler) Register(e *echo.Echo) {
	e.POST(RoutePath, h.Transcribe)
}

// Transcribe parses the multipart request, runs the pipeline and writes the
// response in the shape the voice client expects.
func (h *Handler) Transcribe(c echo.Context) error {
	ctx := c.Request().Context()
	logger := observability.FromContext(ctx, h.logger)

	req, err := h.parseRequest(c)
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid transcribe request")
		return c.JSON(http.StatusBadRequest, errorBody{Error: turn.MsgInvalidRequest})
	}

	switch r := h.svc.Handle(ctx, req).(type) {
	case turn.AudioReply:
		header := c.Response().Header()
		header.Set(HeaderTranscript, url.PathEscape(r.Transcript))
		header.Set(HeaderResponse, url.PathEscape(r.ReplyText))
		header.Set(echo.HeaderContentLength, strconv.Itoa(len(r.Audio)))
		return c.Blob(http.StatusOK, r.MIMEType, r.Audio)

	case turn.TextReply:
		body := textBody{Transcript: r.Transcript, Response: r.ReplyText}
		if r.SynthesisFailed {
			body.Error = turn.MsgSynthesisFailed
		}
		return c.JSON(http.StatusOK, body)

	case turn.Failure:
		return c.JSON(StatusFor(r.Kind), errorBody{Error: r.Message})

	default:
		logger.Error().Msgf("Unexpected pipeline response %T", r)
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected pipeline response")
	}
}

var errMissingAudio = errors.New("missing audio file")

func (h *Handler) parseRequest(c echo.Context) (turn.Request, error) {
	fh, err := c.FormFile(FieldAudio)
	if err != nil {
		return turn.Request{}, errMissingAudio
	}
	if fh.Size == 0 {
		return turn.Request{}, errMissingAudio
	}
	if h.maxAudioBytes > 0 && fh.Size > h.maxAudioBytes {
		return turn.Request{}, errors.New("audio file too large")
	}

	f, err := fh.Open()
	if err != nil {
		return turn.Request{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return turn.Request{}, err
	}

	mimeType := fh.Header.Get(echo.HeaderContentType)
	if mimeType == "" || mimeType == echo.MIMEOctetStream {
		mimeType = audio.MIMETypeWAV
	}

	history, err := parseHistory(c.FormValue(FieldHistory))
	if err != nil {
		return turn.Request{}, err
	}

	return turn.Request{
		Audio:      audio.EncodedAudio{Data: data, MIMEType: mimeType},
		History:    history,
		TTSEnabled: parseTTSEnabled(c.FormValue(FieldTTSEnabled)),
		SkipAudio:  strings.EqualFold(c.Request().Header.Get(HeaderSkipAudio), "true"),
	}, nil
}

// parseHistory treats text that is not JSON as an empty history, but rejects
// JSON that does not match the message schema.
func parseHistory(raw string) ([]turn.Message, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, nil
	}

	history := make([]turn.Message, 0, len(items))
	for _, item := range items {
		var m turn.Message
		if err := json.Unmarshal(item, &m); err != nil {
			return nil, turn.ErrInvalidHistory
		}
		history = append(history, m)
	}
	if err := turn.ValidateHistory(history); err != nil {
		return nil, err
	}
	return history, nil
}

func parseTTSEnabled(raw string) bool {
	if raw == "" {
		return true
	}
	return raw == "true"
}

// StatusFor maps a failure kind to its HTTP status.
func StatusFor(kind turn.Kind) int {
	switch kind {
	case turn.InvalidRequest, turn.InvalidInput, turn.NoSpeechDetected:
		return http.StatusBadRequest
	case turn.UpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every echo error as {"error": message}.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
		}
		if code >= http.StatusInternalServerError {
			reqLogger := observability.FromContext(c.Request().Context(), logger)
			reqLogger.Error().Err(err).Int("status", code).Msg("Request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, errorBody{Error: msg})
		}
		if err != nil {
			logger.Error().Err(err).Msg("Failed to write error response")
		}
	}
}

// RequestLogger attaches a request scoped logger carrying the request id and
// logs one line per request.
func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = observability.NewCorrelationID()
			}
			reqLogger := logger.With().Str("request_id", id).Logger()
			req := c.Request()
			c.SetRequest(req.WithContext(observability.IntoContext(req.Context(), reqLogger)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			reqLogger.Info().
				Str("method", req.Method).
				Str("path", c.Path()).
				Int("status", c.Response().Status).
				Int64("bytes_out", c.Response().Size).
				Msg("Request handled")
			return nil
		}
	}
}

// NewServer builds the echo instance serving the pipeline.
func NewServer(h *Handler, bodyLimit string, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: observability.NewCorrelationID,
	}))
	e.Use(RequestLogger(logger))
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(bodyLimit))

	h.Register(e)
	return e
}
