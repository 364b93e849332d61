package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fixline/fixline/internal/identity"
)

// Store is the persistence surface for chat queries and the mutations that
// are not message side effects (mark-read, close).
type Store interface {
	GetChatByID(ctx context.Context, id string) (Chat, error)
	ListChatsForUser(ctx context.Context, userID string, staffSide bool) ([]Chat, error)
	ListMessages(ctx context.Context, chatID string, limit, offset int) ([]Message, error)
	ResetUnread(ctx context.Context, chatID string) error
	SetChatStatus(ctx context.Context, chatID string, status Status) error
}

// Service exposes chat queries, mark-read, and close to the transport
// layer. Message appends go through the router instead.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a chat service.
func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "chat")),
	}
}

// Get returns the chat if the user participates in it.
func (s *Service) Get(ctx context.Context, chatID string, user identity.User) (Chat, error) {
	c, err := s.store.GetChatByID(ctx, chatID)
	if err != nil {
		return Chat{}, err
	}
	if !c.HasParticipant(user.ID) {
		return Chat{}, ErrNotParticipant
	}
	return c, nil
}

// List returns the user's chats, most recently updated first.
func (s *Service) List(ctx context.Context, user identity.User) ([]Chat, error) {
	return s.store.ListChatsForUser(ctx, user.ID, user.Role.IsStaff())
}

// History returns a page of the chat's message log in insertion order.
func (s *Service) History(ctx context.Context, chatID string, user identity.User, limit, offset int) ([]Message, error) {
	if _, err := s.Get(ctx, chatID, user); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListMessages(ctx, chatID, limit, offset)
}

// MarkRead resets the unread counter. Only the staff participant may mark
// a chat read; the counter tracks messages awaiting staff attention.
func (s *Service) MarkRead(ctx context.Context, chatID string, user identity.User) error {
	c, err := s.store.GetChatByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !user.Role.IsStaff() || c.StaffID != user.ID {
		return ErrNotParticipant
	}
	if err := s.store.ResetUnread(ctx, chatID); err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

// Close moves the chat to closed. Only the staff participant may close.
// A later message into the chat reopens it.
func (s *Service) Close(ctx context.Context, chatID string, user identity.User) error {
	c, err := s.store.GetChatByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !user.Role.IsStaff() || c.StaffID != user.ID {
		return ErrNotParticipant
	}
	if err := s.store.SetChatStatus(ctx, chatID, StatusClosed); err != nil {
		return fmt.Errorf("close chat: %w", err)
	}
	s.logger.Info("chat closed", slog.String("chat_id", chatID), slog.String("staff_id", user.ID))
	return nil
}
