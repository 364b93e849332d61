package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrChatNotFound is returned when no chat matches the lookup.
	ErrChatNotFound = errors.New("chat not found")
	// ErrNotParticipant is returned when a user acts on a chat they are
	// not a side of.
	ErrNotParticipant = errors.New("user is not a participant of this chat")
	// ErrInvalidMessageType is returned for an unknown message type string.
	ErrInvalidMessageType = errors.New("invalid message type")
	// ErrAttachmentRequired is returned when a non-text message carries no
	// attachment reference.
	ErrAttachmentRequired = errors.New("attachment reference is required for this message type")
	// ErrEmptyContent is returned when a text message has no content.
	ErrEmptyContent = errors.New("message content is required")
)

// Status is the chat lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
)

// NextStatus applies the chat state machine for a newly appended message.
// A pending chat activates on the first staff-authored message; a closed
// chat reopens on any activity.
func NextStatus(current Status, staffAuthored bool) Status {
	switch current {
	case StatusPending:
		if staffAuthored {
			return StatusActive
		}
		return StatusPending
	case StatusClosed:
		return StatusActive
	default:
		return current
	}
}

// MessageType names the payload kind of a message.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeAudio MessageType = "audio"
	TypeVideo MessageType = "video"
	TypeVoice MessageType = "voice"
	TypeFile  MessageType = "file"
)

// ParseMessageType validates a raw message type string. An empty string
// defaults to text.
func ParseMessageType(raw string) (MessageType, error) {
	mt := MessageType(strings.ToLower(strings.TrimSpace(raw)))
	switch mt {
	case "":
		return TypeText, nil
	case TypeText, TypeImage, TypeAudio, TypeVideo, TypeVoice, TypeFile:
		return mt, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidMessageType, raw)
	}
}

// Placeholder returns the caption placeholder used when a media message
// arrives without text.
func (t MessageType) Placeholder() string {
	switch t {
	case TypeImage:
		return "[image]"
	case TypeAudio:
		return "[audio]"
	case TypeVideo:
		return "[video]"
	case TypeVoice:
		return "[voice message]"
	case TypeFile:
		return "[file]"
	default:
		return ""
	}
}

// Origin marks which transport produced a message.
type Origin string

const (
	OriginDirect Origin = "direct"
	OriginBridge Origin = "bridge"
)

// Chat is the conversation aggregate between one staff member and one
// customer. Exactly one chat exists per pair.
type Chat struct {
	ID          string
	StaffID     string
	CustomerID  string
	Status      Status
	Priority    int
	Source      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastMessage string
	UnreadCount int
}

// HasParticipant reports whether the user id is one side of the chat.
func (c Chat) HasParticipant(userID string) bool {
	return userID != "" && (userID == c.StaffID || userID == c.CustomerID)
}

// OtherParticipant returns the counterpart of the given participant.
func (c Chat) OtherParticipant(userID string) (string, bool) {
	switch userID {
	case c.StaffID:
		return c.CustomerID, true
	case c.CustomerID:
		return c.StaffID, true
	default:
		return "", false
	}
}

// Message is an immutable, append-only chat entry.
type Message struct {
	ID            string
	ChatID        string
	FromUser      string
	ToUser        string
	Content       string
	CreatedAt     time.Time
	Type          MessageType
	AttachmentRef string
	Origin        Origin
}

// Validate enforces the message invariants before persistence.
func (m Message) Validate() error {
	if _, err := ParseMessageType(string(m.Type)); err != nil {
		return err
	}
	if m.Type != TypeText && strings.TrimSpace(m.AttachmentRef) == "" {
		return fmt.Errorf("%w: %s", ErrAttachmentRequired, m.Type)
	}
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyContent
	}
	return nil
}
