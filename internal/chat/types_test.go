package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextStatus(t *testing.T) {
	cases := []struct {
		name          string
		current       Status
		staffAuthored bool
		want          Status
	}{
		{"pending stays pending on customer message", StatusPending, false, StatusPending},
		{"pending activates on staff message", StatusPending, true, StatusActive},
		{"active stays active", StatusActive, false, StatusActive},
		{"closed reopens on customer message", StatusClosed, false, StatusActive},
		{"closed reopens on staff message", StatusClosed, true, StatusActive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextStatus(tc.current, tc.staffAuthored))
		})
	}
}

func TestParseMessageType(t *testing.T) {
	mt, err := ParseMessageType("")
	assert.NoError(t, err)
	assert.Equal(t, TypeText, mt)

	mt, err = ParseMessageType("  IMAGE ")
	assert.NoError(t, err)
	assert.Equal(t, TypeImage, mt)

	_, err = ParseMessageType("sticker")
	assert.ErrorIs(t, err, ErrInvalidMessageType)
}

func TestMessageValidate(t *testing.T) {
	ok := Message{Content: "hi", Type: TypeText}
	assert.NoError(t, ok.Validate())

	noAttachment := Message{Content: "[image]", Type: TypeImage}
	assert.ErrorIs(t, noAttachment.Validate(), ErrAttachmentRequired)

	withAttachment := Message{Content: "[image]", Type: TypeImage, AttachmentRef: "image/ab/abc.jpg"}
	assert.NoError(t, withAttachment.Validate())

	empty := Message{Content: "  ", Type: TypeText}
	assert.ErrorIs(t, empty.Validate(), ErrEmptyContent)
}

func TestChatParticipants(t *testing.T) {
	c := Chat{StaffID: "s1", CustomerID: "c1"}

	assert.True(t, c.HasParticipant("s1"))
	assert.True(t, c.HasParticipant("c1"))
	assert.False(t, c.HasParticipant("x"))
	assert.False(t, c.HasParticipant(""))

	other, ok := c.OtherParticipant("s1")
	assert.True(t, ok)
	assert.Equal(t, "c1", other)

	_, ok = c.OtherParticipant("x")
	assert.False(t, ok)
}
