// Package telegram implements the bridge adapter for the Telegram Bot
// API: outbound media-aware delivery with a degraded text fallback, and
// inbound webhook update parsing.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fixline/fixline/internal/bridge"
	"github.com/fixline/fixline/internal/chat"
	"github.com/fixline/fixline/internal/config"
)

const degradedSuffix = " (attachment could not be delivered)"

// apiClient is the slice of tgbotapi.BotAPI the adapter uses, extracted
// so tests can substitute a fake provider.
type apiClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetWebhookInfo() (tgbotapi.WebhookInfo, error)
}

// AttachmentReader loads stored attachment bytes by locator.
type AttachmentReader interface {
	Read(ctx context.Context, locator string) ([]byte, error)
}

// Adapter bridges outbound messages to Telegram. All provider failures
// terminate inside Deliver; the router only ever sees an Outcome.
type Adapter struct {
	api    apiClient
	media  AttachmentReader
	logger *slog.Logger
}

// New connects to the Telegram Bot API. The HTTP client timeout bounds
// every bridge call so a stalled provider cannot hold a delivery
// goroutine indefinitely.
func New(log *slog.Logger, cfg config.TelegramConfig, media AttachmentReader) (*Adapter, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	client := &http.Client{Timeout: cfg.SendTimeoutDuration()}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return newAdapter(log, bot, media), nil
}

func newAdapter(log *slog.Logger, api apiClient, media AttachmentReader) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		api:    api,
		media:  media,
		logger: log.With(slog.String("adapter", "telegram")),
	}
}

var _ bridge.Bridge = (*Adapter)(nil)

// Deliver sends the message to the Telegram peer. On any failure of the
// typed send it retries exactly once with a degraded text-only send; if
// that also fails the outcome is OutcomeFailed and the caller moves on.
func (a *Adapter) Deliver(ctx context.Context, peerID string, msg chat.Message) bridge.Outcome {
	chatID, err := strconv.ParseInt(strings.TrimSpace(peerID), 10, 64)
	if err != nil {
		a.logger.Error("invalid telegram peer id", slog.String("peer_id", peerID))
		return bridge.OutcomeFailed
	}

	payload, err := a.buildSend(ctx, chatID, msg)
	if err == nil {
		_, err = a.api.Send(payload)
		if err == nil {
			return bridge.OutcomeDelivered
		}
	}
	a.logger.Warn("telegram send failed, degrading to text",
		slog.String("chat_id", msg.ChatID),
		slog.String("message_type", string(msg.Type)),
		slog.Any("error", err),
	)

	fallback := tgbotapi.NewMessage(chatID, msg.Content+degradedSuffix)
	if _, err := a.api.Send(fallback); err != nil {
		a.logger.Error("telegram fallback send failed",
			slog.String("chat_id", msg.ChatID),
			slog.Any("error", err),
		)
		return bridge.OutcomeFailed
	}
	return bridge.OutcomeDegraded
}

// buildSend maps the message type to the platform send operation. The
// switch is exhaustive over chat.MessageType; an unknown type is a
// programming error upstream and surfaces as a build failure here.
func (a *Adapter) buildSend(ctx context.Context, chatID int64, msg chat.Message) (tgbotapi.Chattable, error) {
	if msg.Type == chat.TypeText {
		return tgbotapi.NewMessage(chatID, msg.Content), nil
	}

	file, err := a.loadAttachment(ctx, msg.AttachmentRef)
	if err != nil {
		return nil, err
	}
	caption := msg.Content

	switch msg.Type {
	case chat.TypeImage:
		photo := tgbotapi.NewPhoto(chatID, file)
		photo.Caption = caption
		return photo, nil
	case chat.TypeAudio:
		audio := tgbotapi.NewAudio(chatID, file)
		audio.Caption = caption
		return audio, nil
	case chat.TypeVoice:
		voice := tgbotapi.NewVoice(chatID, file)
		voice.Caption = caption
		return voice, nil
	case chat.TypeVideo:
		video := tgbotapi.NewVideo(chatID, file)
		video.Caption = caption
		return video, nil
	case chat.TypeFile:
		document := tgbotapi.NewDocument(chatID, file)
		document.Caption = caption
		return document, nil
	default:
		return nil, fmt.Errorf("%w: %s", chat.ErrInvalidMessageType, msg.Type)
	}
}

func (a *Adapter) loadAttachment(ctx context.Context, locator string) (tgbotapi.RequestFileData, error) {
	if a.media == nil {
		return nil, fmt.Errorf("attachment store not configured")
	}
	data, err := a.media.Read(ctx, locator)
	if err != nil {
		return nil, fmt.Errorf("read attachment %s: %w", locator, err)
	}
	return tgbotapi.FileBytes{Name: path.Base(locator), Bytes: data}, nil
}

// FetchAttachment downloads a Telegram file by file id, bounded by
// maxBytes. Used by the webhook path before handing media to the
// attachment store.
func (a *Adapter) FetchAttachment(ctx context.Context, fileID string, maxBytes int64) ([]byte, error) {
	url, err := a.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve telegram file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download attachment status: %d", resp.StatusCode)
	}
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("attachment exceeds %d bytes", maxBytes)
	}
	return readAllLimited(resp.Body, maxBytes)
}

// SetWebhook deletes any previous webhook registration and installs the
// configured URL, returning the resulting webhook info.
func (a *Adapter) SetWebhook(url string) (tgbotapi.WebhookInfo, error) {
	if strings.TrimSpace(url) == "" {
		return tgbotapi.WebhookInfo{}, fmt.Errorf("webhook url is required")
	}
	if _, err := a.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return tgbotapi.WebhookInfo{}, fmt.Errorf("delete webhook: %w", err)
	}
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return tgbotapi.WebhookInfo{}, fmt.Errorf("build webhook config: %w", err)
	}
	if _, err := a.api.Request(wh); err != nil {
		return tgbotapi.WebhookInfo{}, fmt.Errorf("set webhook: %w", err)
	}
	return a.api.GetWebhookInfo()
}
