// Package statefeed exposes the conversation to a UI: the current snapshot
// over HTTP and a websocket that streams every change and accepts controls.
package statefeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voicechat/internal/observability"
	"github.com/lexiqai/voicechat/internal/orchestrator"
)

// UI actions accepted on the websocket.
const (
	ActionToggleListening = "toggle_listening"
	ActionToggleMute      = "toggle_mute"
	ActionClear           = "clear"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
)

var upgrader = websocket.Upgrader{
	// The feed listens on a local address for a local UI.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Controller is the conversation the feed reports on and steers.
type Controller interface {
	Snapshot() orchestrator.Snapshot
	Subscribe() (<-chan orchestrator.Snapshot, func())
	ToggleListening()
	ToggleMute()
	ClearConversation()
}

// ClientMessage is sent by the UI.
type ClientMessage struct {
	Action string `json:"action"`
}

// ServerMessage is pushed to the UI. Type is "state" or "error".
type ServerMessage struct {
	Type     string                 `json:"type"`
	Snapshot *orchestrator.Snapshot `json:"snapshot,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Feed serves the state endpoints.
type Feed struct {
	ctrl   Controller
	logger zerolog.Logger
}

// New creates a feed over ctrl.
func New(ctrl Controller, logger zerolog.Logger) *Feed {
	return &Feed{
		ctrl:   ctrl,
		logger: logger.With().Str("component", "state_feed").Logger(),
	}
}

// Register mounts GET /state and GET /ws.
func (f *Feed) Register(e *echo.Echo) {
	e.GET("/state", f.State)
	e.GET("/ws", f.Stream)
}

// State returns the current snapshot.
func (f *Feed) State(c echo.Context) error {
	return c.JSON(http.StatusOK, f.ctrl.Snapshot())
}

// Stream upgrades to a websocket session.
func (f *Feed) Stream(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		f.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return nil
	}

	s := newSession(conn, f.ctrl, f.logger)
	s.run(c.Request().Context())
	return nil
}

// NewServer builds the echo instance serving the feed.
func NewServer(f *Feed, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	f.Register(e)
	return e
}

// session is one websocket connection.
type session struct {
	id     string
	conn   *websocket.Conn
	ctrl   Controller
	logger zerolog.Logger

	writeMu sync.Mutex
}

func newSession(conn *websocket.Conn, ctrl Controller, logger zerolog.Logger) *session {
	id := observability.NewCorrelationID()
	return &session{
		id:     id,
		conn:   conn,
		ctrl:   ctrl,
		logger: logger.With().Str("session_id", id).Logger(),
	}
}

func (s *session) run(ctx context.Context) {
	observability.FeedConnected()
	defer observability.FeedDisconnected()
	defer s.conn.Close()

	s.logger.Info().Msg("State feed client connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, unsubscribe := s.ctrl.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx, updates)
	}()

	s.readLoop()
	cancel()
	<-done

	s.logger.Info().Msg("State feed client disconnected")
}

func (s *session) readLoop() {
	s.conn.SetReadLimit(maxMessage)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to parse client message")
			s.send(ServerMessage{Type: "error", Error: "invalid message"})
			continue
		}
		if err := s.dispatch(msg.Action); err != nil {
			s.send(ServerMessage{Type: "error", Error: err.Error()})
		}
	}
}

func (s *session) dispatch(action string) error {
	s.logger.Debug().Str("action", action).Msg("UI action")
	switch action {
	case ActionToggleListening:
		s.ctrl.ToggleListening()
	case ActionToggleMute:
		s.ctrl.ToggleMute()
	case ActionClear:
		s.ctrl.ClearConversation()
	default:
		return errors.New("unknown action")
	}
	return nil
}

func (s *session) writeLoop(ctx context.Context, updates <-chan orchestrator.Snapshot) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.writeMu.Lock()
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			s.writeMu.Unlock()
			return
		case snap := <-updates:
			if err := s.send(ServerMessage{Type: "state", Snapshot: &snap}); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to push snapshot")
				s.conn.Close()
				return
			}
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				s.conn.Close()
				return
			}
		}
	}
}

func (s *session) send(msg ServerMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}
