package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/fixline/fixline/internal/assign"
	"github.com/fixline/fixline/internal/auth"
	"github.com/fixline/fixline/internal/chat"
	"github.com/fixline/fixline/internal/identity"
	"github.com/fixline/fixline/internal/live"
	"github.com/fixline/fixline/internal/metrics"
	"github.com/fixline/fixline/internal/router"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsMaxFrameSize = 64 * 1024
)

// WSHandler upgrades authenticated requests to WebSocket connections and
// pumps inbound frames into the message router.
type WSHandler struct {
	registry *identity.Registry
	live     *live.Registry
	router   *router.Router
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(log *slog.Logger, registry *identity.Registry, liveReg *live.Registry, msgRouter *router.Router, m *metrics.Metrics) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		registry: registry,
		live:     liveReg,
		router:   msgRouter,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Token auth happens before the upgrade; origin checks add
			// nothing for non-browser staff clients.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: log.With(slog.String("handler", "ws")),
	}
}

func (h *WSHandler) Register(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// inboundFrame is one client-to-server WebSocket message.
type inboundFrame struct {
	Kind          string `json:"kind"`
	ChatID        string `json:"chat_id"`
	To            string `json:"to"`
	Content       string `json:"content"`
	Type          string `json:"type"`
	AttachmentRef string `json:"attachment_ref"`
	Ref           string `json:"ref"`
}

// wsConn adapts one websocket connection to the live.Handle contract.
// The write mutex serializes Deliver and Close against the read loop's
// control writes; gorilla connections allow one concurrent writer only.
type wsConn struct {
	conn   *websocket.Conn
	writeM sync.Mutex
}

func (w *wsConn) Deliver(frame live.OutboundFrame) error {
	w.writeM.Lock()
	defer w.writeM.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(frame)
}

func (w *wsConn) Close(reason live.CloseReason) error {
	w.writeM.Lock()
	defer w.writeM.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(reason))
	w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = w.conn.WriteMessage(websocket.CloseMessage, msg)
	return w.conn.Close()
}

// Serve authenticates, upgrades, registers the connection, and runs the
// read loop until the peer goes away or a newer connection supersedes
// this one.
func (h *WSHandler) Serve(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	user, err := h.registry.Get(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(wsMaxFrameSize)

	handle := &wsConn{conn: conn}
	ctx := context.Background()
	// The gauge tracks registered handles, so a connect that supersedes
	// one does not raise it and the superseded side's stale disconnect
	// does not lower it.
	superseded := h.live.Connect(ctx, user, handle)
	if h.metrics != nil && !superseded {
		h.metrics.LiveConnections.Inc()
	}
	defer func() {
		removed := h.live.Disconnect(ctx, user.ID, handle)
		if h.metrics != nil && removed {
			h.metrics.LiveConnections.Dec()
		}
	}()

	h.readLoop(ctx, conn, handle, user)
	return nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, handle *wsConn, user identity.User) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("read loop ended", slog.String("user_id", user.ID), slog.Any("error", err))
			}
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(handle, "", "bad_frame", "invalid frame")
			continue
		}
		switch frame.Kind {
		case "", "message":
			h.handleMessage(ctx, handle, user, frame)
		case "ping":
			_ = handle.Deliver(live.OutboundFrame{Kind: "pong"})
		default:
			h.sendError(handle, frame.Ref, "bad_frame", "unknown frame kind")
		}
	}
}

func (h *WSHandler) handleMessage(ctx context.Context, handle *wsConn, user identity.User, frame inboundFrame) {
	result, err := h.router.Send(ctx, router.Draft{
		From:          user,
		To:            frame.To,
		ChatID:        frame.ChatID,
		Content:       frame.Content,
		Type:          chat.MessageType(frame.Type),
		AttachmentRef: frame.AttachmentRef,
		Origin:        chat.OriginDirect,
	})
	if err != nil {
		h.sendError(handle, frame.Ref, errorCode(err), err.Error())
		return
	}
	_ = handle.Deliver(live.OutboundFrame{
		Kind:   "ack",
		ChatID: result.Chat.ID,
		Message: map[string]any{
			"ref":        frame.Ref,
			"message_id": result.Message.ID,
			"delivery":   string(result.Delivery),
		},
	})
}

func (h *WSHandler) sendError(handle *wsConn, ref, code, msg string) {
	frame := live.OutboundFrame{Kind: "error", Error: msg, Code: code}
	if ref != "" {
		frame.Message = map[string]any{"ref": ref}
	}
	if err := handle.Deliver(frame); err != nil {
		h.logger.Debug("error frame delivery failed", slog.Any("error", err))
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrChatNotFound):
		return "chat_not_found"
	case errors.Is(err, chat.ErrNotParticipant):
		return "forbidden"
	case errors.Is(err, assign.ErrNoActiveStaff):
		return "no_active_staff"
	case errors.Is(err, router.ErrNoDestination):
		return "no_destination"
	case errors.Is(err, identity.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, chat.ErrAttachmentRequired),
		errors.Is(err, chat.ErrInvalidMessageType),
		errors.Is(err, chat.ErrEmptyContent):
		return "invalid_message"
	default:
		return "internal"
	}
}
