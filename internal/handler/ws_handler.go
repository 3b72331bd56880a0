package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/freeexam/examdesk/internal/model"
	"github.com/freeexam/examdesk/internal/response"
	"github.com/freeexam/examdesk/internal/service"
	ws "github.com/freeexam/examdesk/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// EventSubscriber opens a subscription to one session's events.
type EventSubscriber interface {
	Subscribe(ctx context.Context, examID, userID string) *redis.PubSub
}

// WSHandler streams one exam session over a WebSocket.
type WSHandler struct {
	sessions ExamSessions
	events   EventSubscriber
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions ExamSessions, events EventSubscriber, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		events:   events,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) event(event ws.Event, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ws.WriteEvent(c.conn, event, data)
}

func (c *wsConn) raw(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ws.WriteRaw(c.conn, payload)
}

func (c *wsConn) fail(err error) error {
	_, code, msg := failureFor(err)
	if msg == "" {
		msg = response.GetMessage(code)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return ws.WriteError(c.conn, string(code), msg)
}

// ExamWebSocketStream godoc
// WS /ws/v1/student/exams/:exam_id/stream?token=...
// Sends the session state, then forwards tick, time_up, saved, save_failed
// and submitted events. Accepts select, preview, submit and ping actions.
// Closing the socket never ends the session.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsLog := h.log.With().
		Str("user_id", claims.UserID).
		Str("exam_id", examID).
		Logger()

	// Subscribe before reading state so no event between the two is lost.
	sub := h.events.Subscribe(ctx, examID, claims.UserID)
	defer sub.Close()

	view, err := h.sessions.Open(ctx, claims, examID)
	if err != nil {
		_ = conn.fail(err)
		return
	}
	if err := conn.event(ws.EventState, view); err != nil {
		return
	}

	wsLog.Info().Msg("Student connected")

	go h.forward(ctx, conn, sub, wsLog)

	for {
		data, err := ws.ReadMessage(raw)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = conn.fail(errInvalidFrame)
			continue
		}

		switch env.Action {
		case ws.ActionSelect:
			h.handleSelect(ctx, conn, claims, examID, data)
		case ws.ActionPreview:
			h.handlePreview(conn, claims, examID)
		case ws.ActionSubmit:
			h.handleSubmit(ctx, conn, claims, examID, wsLog)
		case ws.ActionPing:
			_ = conn.event(ws.EventPong, nil)
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			_ = conn.fail(errInvalidFrame)
		}
	}
}

// forward relays PubSub frames to the socket until ctx ends.
func (h *WSHandler) forward(ctx context.Context, conn *wsConn, sub *redis.PubSub, log zerolog.Logger) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.raw([]byte(msg.Payload)); err != nil {
				log.Debug().Err(err).Msg("Forward failed")
				return
			}
		}
	}
}

func (h *WSHandler) handleSelect(ctx context.Context, conn *wsConn, claims *service.Claims, examID string, data []byte) {
	var req ws.SelectRequest
	if err := json.Unmarshal(data, &req); err != nil || req.QuestionID == "" || req.OptionID == "" {
		_ = conn.fail(errInvalidFrame)
		return
	}

	stats, err := h.sessions.SelectAnswer(ctx, claims, examID, req.QuestionID, req.OptionID)
	if err != nil {
		_ = conn.fail(err)
		return
	}
	_ = conn.event(ws.EventStats, stats)
}

func (h *WSHandler) handlePreview(conn *wsConn, claims *service.Claims, examID string) {
	preview, err := h.sessions.PreviewSubmit(claims, examID)
	if err != nil {
		_ = conn.fail(err)
		return
	}
	_ = conn.event(ws.EventPreview, preview)
}

// handleSubmit runs a manual submit. The submitted event itself arrives over
// PubSub, so only failures are written here.
func (h *WSHandler) handleSubmit(ctx context.Context, conn *wsConn, claims *service.Claims, examID string, log zerolog.Logger) {
	result, err := h.sessions.Submit(ctx, claims, examID, model.TriggerManual)
	if err != nil {
		log.Warn().Err(err).Msg("Submit over stream failed")
		_ = conn.fail(err)
		return
	}
	if result.AlreadySubmitted {
		_ = conn.event(ws.EventSubmitted, result)
	}
}
