package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fixline/fixline/internal/auth"
	"github.com/fixline/fixline/internal/chat"
	"github.com/fixline/fixline/internal/identity"
	"github.com/fixline/fixline/internal/live"
)

// ChatsHandler serves chat listings, history, and the staff-side chat
// actions. Message sends go through the WebSocket and webhook paths.
type ChatsHandler struct {
	registry *identity.Registry
	chats    *chat.Service
	live     *live.Registry
	logger   *slog.Logger
}

func NewChatsHandler(log *slog.Logger, registry *identity.Registry, chats *chat.Service, liveReg *live.Registry) *ChatsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChatsHandler{
		registry: registry,
		chats:    chats,
		live:     liveReg,
		logger:   log.With(slog.String("handler", "chats")),
	}
}

func (h *ChatsHandler) Register(e *echo.Echo) {
	g := e.Group("/chats")
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/messages", h.History)
	g.POST("/:id/read", h.MarkRead)
	g.POST("/:id/close", h.Close)

	e.GET("/staff/active", h.ActiveStaff)
}

type chatResponse struct {
	ID          string    `json:"id"`
	StaffID     string    `json:"staff_id"`
	CustomerID  string    `json:"customer_id"`
	Status      string    `json:"status"`
	Source      string    `json:"source,omitempty"`
	LastMessage string    `json:"last_message"`
	UnreadCount int       `json:"unread_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toChatResponse(c chat.Chat) chatResponse {
	return chatResponse{
		ID:          c.ID,
		StaffID:     c.StaffID,
		CustomerID:  c.CustomerID,
		Status:      string(c.Status),
		Source:      c.Source,
		LastMessage: c.LastMessage,
		UnreadCount: c.UnreadCount,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

type messageResponse struct {
	ID            string    `json:"id"`
	ChatID        string    `json:"chat_id"`
	FromUser      string    `json:"from_user"`
	ToUser        string    `json:"to_user"`
	Content       string    `json:"content"`
	Type          string    `json:"type"`
	AttachmentRef string    `json:"attachment_ref,omitempty"`
	Origin        string    `json:"origin"`
	CreatedAt     time.Time `json:"created_at"`
}

func toMessageResponse(m chat.Message) messageResponse {
	return messageResponse{
		ID:            m.ID,
		ChatID:        m.ChatID,
		FromUser:      m.FromUser,
		ToUser:        m.ToUser,
		Content:       m.Content,
		Type:          string(m.Type),
		AttachmentRef: m.AttachmentRef,
		Origin:        string(m.Origin),
		CreatedAt:     m.CreatedAt,
	}
}

func (h *ChatsHandler) currentUser(c echo.Context) (identity.User, error) {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return identity.User{}, err
	}
	user, err := h.registry.Get(c.Request().Context(), userID)
	if err != nil {
		return identity.User{}, httpError(err)
	}
	return user, nil
}

// List returns the caller's chats, most recently updated first.
func (h *ChatsHandler) List(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	chats, err := h.chats.List(c.Request().Context(), user)
	if err != nil {
		return httpError(err)
	}
	items := make([]chatResponse, 0, len(chats))
	for _, ch := range chats {
		items = append(items, toChatResponse(ch))
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// Get returns one chat if the caller participates in it.
func (h *ChatsHandler) Get(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	ch, err := h.chats.Get(c.Request().Context(), c.Param("id"), user)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toChatResponse(ch))
}

// History returns a page of the chat log in insertion order.
func (h *ChatsHandler) History(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	msgs, err := h.chats.History(c.Request().Context(), c.Param("id"), user, limit, offset)
	if err != nil {
		return httpError(err)
	}
	items := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, toMessageResponse(m))
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// MarkRead zeroes the unread counter for the staff participant.
func (h *ChatsHandler) MarkRead(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	if err := h.chats.MarkRead(c.Request().Context(), c.Param("id"), user); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Close moves the chat to closed.
func (h *ChatsHandler) Close(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	if err := h.chats.Close(c.Request().Context(), c.Param("id"), user); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type activeStaffMember struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// ActiveStaff lists staff with a live connection, in connection order.
func (h *ChatsHandler) ActiveStaff(c echo.Context) error {
	ctx := c.Request().Context()
	items := make([]activeStaffMember, 0)
	for _, id := range h.live.ActiveStaff() {
		member := activeStaffMember{UserID: id}
		if user, err := h.lookup(ctx, id); err == nil {
			member.DisplayName = user.DisplayName
			member.Role = string(user.Role)
		}
		items = append(items, member)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *ChatsHandler) lookup(ctx context.Context, id string) (identity.User, error) {
	return h.registry.Get(ctx, id)
}
