package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixline/fixline/internal/chat"
)

func TestParseUpdateText(t *testing.T) {
	event, ok := ParseUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 1001, FirstName: "Dana", LastName: "Reyes"},
		Text: "  my car won't start  ",
	}})
	require.True(t, ok)
	assert.Equal(t, "1001", event.SenderID)
	assert.Equal(t, "Dana Reyes", event.DisplayName)
	assert.Equal(t, "my car won't start", event.Text)
	assert.Nil(t, event.Media)
}

func TestParseUpdateSkipsNonMessages(t *testing.T) {
	_, ok := ParseUpdate(tgbotapi.Update{})
	assert.False(t, ok)

	_, ok = ParseUpdate(tgbotapi.Update{Message: &tgbotapi.Message{}})
	assert.False(t, ok)

	// A message with neither text nor media carries nothing to route.
	_, ok = ParseUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 1001},
	}})
	assert.False(t, ok)
}

func TestParseUpdatePhotoPicksLargest(t *testing.T) {
	event, ok := ParseUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From:    &tgbotapi.User{ID: 1001, FirstName: "Dana"},
		Caption: "the dent",
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 90, Height: 90},
			{FileID: "large", Width: 1280, Height: 960},
			{FileID: "medium", Width: 320, Height: 240},
		},
	}})
	require.True(t, ok)
	require.NotNil(t, event.Media)
	assert.Equal(t, "large", event.Media.FileID)
	assert.Equal(t, chat.TypeImage, event.Media.Type)
	assert.Equal(t, "the dent", event.Text)
}

func TestParseUpdateDocumentFallbackName(t *testing.T) {
	event, ok := ParseUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 1001, FirstName: "Dana"},
		Document: &tgbotapi.Document{FileID: "doc-1"},
	}})
	require.True(t, ok)
	require.NotNil(t, event.Media)
	assert.Equal(t, chat.TypeFile, event.Media.Type)
	// No filename from the platform; a stable default keeps the
	// attachment storable.
	assert.Equal(t, "file.bin", event.Media.Name)
}

func TestParseUpdateVoice(t *testing.T) {
	event, ok := ParseUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From:  &tgbotapi.User{ID: 1001, FirstName: "Dana"},
		Voice: &tgbotapi.Voice{FileID: "voice-1"},
	}})
	require.True(t, ok)
	require.NotNil(t, event.Media)
	assert.Equal(t, chat.TypeVoice, event.Media.Type)
	assert.Equal(t, "voice-1", event.Media.FileID)
}
