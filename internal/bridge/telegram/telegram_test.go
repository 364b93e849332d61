package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixline/fixline/internal/bridge"
	"github.com/fixline/fixline/internal/chat"
)

type fakeAPI struct {
	sent    []tgbotapi.Chattable
	sendErr func(c tgbotapi.Chattable) error

	requests []tgbotapi.Chattable
	reqErr   error
	whInfo   tgbotapi.WebhookInfo
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.sendErr != nil {
		if err := f.sendErr(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	if f.reqErr != nil {
		return nil, f.reqErr
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeAPI) GetWebhookInfo() (tgbotapi.WebhookInfo, error) {
	return f.whInfo, nil
}

type fakeReader struct {
	data map[string][]byte
}

func (f *fakeReader) Read(_ context.Context, locator string) ([]byte, error) {
	data, ok := f.data[locator]
	if !ok {
		return nil, errors.New("attachment missing")
	}
	return data, nil
}

func TestDeliverText(t *testing.T) {
	api := &fakeAPI{}
	a := newAdapter(nil, api, nil)

	outcome := a.Deliver(context.Background(), "1001", chat.Message{Content: "hello", Type: chat.TypeText})
	assert.Equal(t, bridge.OutcomeDelivered, outcome)

	require.Len(t, api.sent, 1)
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, int64(1001), msg.ChatID)
}

func TestDeliverPhotoWithCaption(t *testing.T) {
	api := &fakeAPI{}
	reader := &fakeReader{data: map[string][]byte{"image/ab/abc.jpg": []byte("jpeg")}}
	a := newAdapter(nil, api, reader)

	outcome := a.Deliver(context.Background(), "1001", chat.Message{
		Content:       "the worn pad",
		Type:          chat.TypeImage,
		AttachmentRef: "image/ab/abc.jpg",
	})
	assert.Equal(t, bridge.OutcomeDelivered, outcome)

	require.Len(t, api.sent, 1)
	photo, ok := api.sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, "the worn pad", photo.Caption)
}

func TestDeliverDegradesToTextOnMediaFailure(t *testing.T) {
	api := &fakeAPI{}
	// The attachment cannot be loaded, so the typed send never happens
	// and the fallback text goes out instead.
	a := newAdapter(nil, api, &fakeReader{})

	outcome := a.Deliver(context.Background(), "1001", chat.Message{
		Content:       "the worn pad",
		Type:          chat.TypeImage,
		AttachmentRef: "image/ab/missing.jpg",
	})
	assert.Equal(t, bridge.OutcomeDegraded, outcome)

	require.Len(t, api.sent, 1)
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(msg.Text, degradedSuffix))
	assert.True(t, strings.HasPrefix(msg.Text, "the worn pad"))
}

func TestDeliverFailedWhenFallbackFails(t *testing.T) {
	api := &fakeAPI{sendErr: func(tgbotapi.Chattable) error {
		return errors.New("bad gateway")
	}}
	a := newAdapter(nil, api, nil)

	outcome := a.Deliver(context.Background(), "1001", chat.Message{Content: "hello", Type: chat.TypeText})
	assert.Equal(t, bridge.OutcomeFailed, outcome)
	assert.Empty(t, api.sent)
}

func TestDeliverInvalidPeerID(t *testing.T) {
	a := newAdapter(nil, &fakeAPI{}, nil)
	outcome := a.Deliver(context.Background(), "not-a-number", chat.Message{Content: "x", Type: chat.TypeText})
	assert.Equal(t, bridge.OutcomeFailed, outcome)
}

func TestSetWebhookDeletesThenSets(t *testing.T) {
	api := &fakeAPI{whInfo: tgbotapi.WebhookInfo{URL: "https://fix.example/telegram/webhook"}}
	a := newAdapter(nil, api, nil)

	info, err := a.SetWebhook("https://fix.example/telegram/webhook")
	require.NoError(t, err)
	assert.Equal(t, "https://fix.example/telegram/webhook", info.URL)

	require.Len(t, api.requests, 2)
	_, isDelete := api.requests[0].(tgbotapi.DeleteWebhookConfig)
	assert.True(t, isDelete)
	_, isSet := api.requests[1].(tgbotapi.WebhookConfig)
	assert.True(t, isSet)
}
