package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/fixline/fixline/internal/assign"
	"github.com/fixline/fixline/internal/bridge/telegram"
	"github.com/fixline/fixline/internal/chat"
	"github.com/fixline/fixline/internal/identity"
	"github.com/fixline/fixline/internal/media"
	"github.com/fixline/fixline/internal/metrics"
	"github.com/fixline/fixline/internal/router"
)

// TelegramHandler receives webhook updates from the bot platform and
// feeds them into the router as bridge-origin messages.
type TelegramHandler struct {
	registry *identity.Registry
	adapter  *telegram.Adapter
	media    *media.Store
	router   *router.Router
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewTelegramHandler(log *slog.Logger, registry *identity.Registry, adapter *telegram.Adapter, mediaStore *media.Store, msgRouter *router.Router, m *metrics.Metrics) *TelegramHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TelegramHandler{
		registry: registry,
		adapter:  adapter,
		media:    mediaStore,
		router:   msgRouter,
		metrics:  m,
		logger:   log.With(slog.String("handler", "telegram")),
	}
}

func (h *TelegramHandler) Register(e *echo.Echo) {
	e.POST("/telegram/webhook", h.Webhook)
}

// Webhook processes one update. It always answers 200 for well-formed
// updates the service chooses not to act on, so the platform does not
// retry them forever.
func (h *TelegramHandler) Webhook(c echo.Context) error {
	var update tgbotapi.Update
	if err := c.Bind(&update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid update payload")
	}
	event, ok := telegram.ParseUpdate(update)
	if !ok {
		return c.NoContent(http.StatusOK)
	}
	ctx := c.Request().Context()

	customer, err := h.registry.EnsureCustomer(ctx, event.SenderID, event.DisplayName)
	if err != nil {
		h.count("error")
		h.logger.Error("ensure customer failed", slog.String("sender_id", event.SenderID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "customer resolution failed")
	}

	draft := router.Draft{
		From:    customer,
		Content: event.Text,
		Type:    chat.TypeText,
		Origin:  chat.OriginBridge,
	}
	if event.Media != nil {
		locator, err := h.storeMedia(c, event.Media)
		if err != nil {
			// Keep the text part flowing; the media is reported lost.
			h.logger.Warn("inbound media dropped",
				slog.String("file_id", event.Media.FileID),
				slog.Any("error", err),
			)
			h.count("media_dropped")
		} else {
			draft.Type = event.Media.Type
			draft.AttachmentRef = locator
		}
	}
	if draft.Type == chat.TypeText && draft.Content == "" {
		return c.NoContent(http.StatusOK)
	}

	result, err := h.router.Send(ctx, draft)
	if err != nil {
		if errors.Is(err, assign.ErrNoActiveStaff) {
			// Answering non-200 would make the platform redeliver the
			// same update; the customer retries when staff is around.
			h.count("no_staff")
			h.logger.Warn("update dropped, no active staff", slog.String("customer_id", customer.ID))
			return c.NoContent(http.StatusOK)
		}
		if permanentSendError(err) {
			// Redelivery cannot make this update routable. Acknowledge it
			// so the platform stops retrying, and reserve 5xx for
			// transient failures a retry can actually heal.
			h.count("dropped")
			h.logger.Warn("update dropped, unroutable", slog.String("customer_id", customer.ID), slog.Any("error", err))
			return c.NoContent(http.StatusOK)
		}
		h.count("error")
		h.logger.Error("webhook routing failed", slog.String("customer_id", customer.ID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "routing failed")
	}

	h.count("routed")
	h.logger.Info("webhook routed",
		slog.String("chat_id", result.Chat.ID),
		slog.String("message_id", result.Message.ID),
		slog.String("delivery", string(result.Delivery)),
	)
	return c.NoContent(http.StatusOK)
}

// permanentSendError reports whether a Send failure is one a redelivered
// copy of the same update would hit again.
func permanentSendError(err error) bool {
	return errors.Is(err, router.ErrNoDestination) ||
		errors.Is(err, chat.ErrNotParticipant) ||
		errors.Is(err, chat.ErrSameSide) ||
		errors.Is(err, chat.ErrInvalidMessageType) ||
		errors.Is(err, chat.ErrAttachmentRequired) ||
		errors.Is(err, chat.ErrEmptyContent)
}

func (h *TelegramHandler) storeMedia(c echo.Context, ref *telegram.MediaRef) (string, error) {
	ctx := c.Request().Context()
	data, err := h.adapter.FetchAttachment(ctx, ref.FileID, h.media.MaxBytes())
	if err != nil {
		return "", err
	}
	return h.media.Save(ctx, data, ref.Name, ref.Type)
}

func (h *TelegramHandler) count(result string) {
	if h.metrics != nil {
		h.metrics.BridgeInbound.WithLabelValues(result).Inc()
	}
}
