package telegram

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fixline/fixline/internal/chat"
)

// MediaRef describes the single media item of an inbound update, to be
// downloaded and stored before the message enters the router.
type MediaRef struct {
	FileID string
	Type   chat.MessageType
	Name   string
	Mime   string
}

// InboundEvent is a webhook update reduced to what the router needs.
type InboundEvent struct {
	SenderID    string
	DisplayName string
	Text        string
	Media       *MediaRef
}

// ParseUpdate extracts the sender, text, and at most one media reference
// from a webhook update. The second return value is false for update
// kinds the service ignores (edits, membership changes, empty payloads).
func ParseUpdate(update tgbotapi.Update) (InboundEvent, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return InboundEvent{}, false
	}

	event := InboundEvent{
		SenderID:    strconv.FormatInt(msg.From.ID, 10),
		DisplayName: senderName(msg.From),
		Text:        strings.TrimSpace(msg.Text),
	}
	if event.Text == "" {
		event.Text = strings.TrimSpace(msg.Caption)
	}
	event.Media = pickMedia(msg)
	if event.Text == "" && event.Media == nil {
		return InboundEvent{}, false
	}
	return event, true
}

// pickMedia returns the first media item by fixed precedence. Telegram
// sends at most one per message in practice.
func pickMedia(msg *tgbotapi.Message) *MediaRef {
	if len(msg.Photo) > 0 {
		photo := bestPhoto(msg.Photo)
		return &MediaRef{FileID: photo.FileID, Type: chat.TypeImage, Name: "photo.jpg", Mime: "image/jpeg"}
	}
	if msg.Voice != nil {
		return &MediaRef{FileID: msg.Voice.FileID, Type: chat.TypeVoice, Name: "voice.ogg", Mime: msg.Voice.MimeType}
	}
	if msg.Audio != nil {
		return &MediaRef{FileID: msg.Audio.FileID, Type: chat.TypeAudio, Name: fallbackName(msg.Audio.FileName, "audio.mp3"), Mime: msg.Audio.MimeType}
	}
	if msg.Video != nil {
		return &MediaRef{FileID: msg.Video.FileID, Type: chat.TypeVideo, Name: fallbackName(msg.Video.FileName, "video.mp4"), Mime: msg.Video.MimeType}
	}
	if msg.Document != nil {
		return &MediaRef{FileID: msg.Document.FileID, Type: chat.TypeFile, Name: fallbackName(msg.Document.FileName, "file.bin"), Mime: msg.Document.MimeType}
	}
	return nil
}

func fallbackName(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}

func bestPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}

func senderName(from *tgbotapi.User) string {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	if name == "" {
		name = strings.TrimSpace(from.UserName)
	}
	return name
}

func readAllLimited(reader io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(reader)
	}
	limited := &io.LimitedReader{R: reader, N: maxBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("attachment exceeds %d bytes", maxBytes)
	}
	return data, nil
}
