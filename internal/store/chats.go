package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fixline/fixline/internal/chat"
)

const chatColumns = `id, staff_id, customer_id, status, priority, source,
	created_at, updated_at, last_message, unread_count`

func scanChat(row pgx.Row) (chat.Chat, error) {
	var c chat.Chat
	err := row.Scan(&c.ID, &c.StaffID, &c.CustomerID, &c.Status, &c.Priority, &c.Source,
		&c.CreatedAt, &c.UpdatedAt, &c.LastMessage, &c.UnreadCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Chat{}, chat.ErrChatNotFound
	}
	if err != nil {
		return chat.Chat{}, fmt.Errorf("scan chat: %w", err)
	}
	return c, nil
}

// InsertChatIfAbsent creates the chat for the pair unless one exists.
// ON CONFLICT DO NOTHING on the pair constraint makes concurrent
// creators converge on a single row; losers read back the winner's.
func (s *Store) InsertChatIfAbsent(ctx context.Context, c chat.Chat) (chat.Chat, bool, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO chats (id, staff_id, customer_id, status, priority, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT ON CONSTRAINT chats_pair_key DO NOTHING
		RETURNING `+chatColumns,
		c.ID, c.StaffID, c.CustomerID, c.Status, c.Priority, c.Source, now,
	)
	created, err := scanChat(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, chat.ErrChatNotFound) {
		return chat.Chat{}, false, err
	}

	existing, err := scanChat(s.pool.QueryRow(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE staff_id = $1 AND customer_id = $2`,
		c.StaffID, c.CustomerID,
	))
	if err != nil {
		return chat.Chat{}, false, err
	}
	return existing, false, nil
}

// GetChatByID returns the chat with the given id.
func (s *Store) GetChatByID(ctx context.Context, id string) (chat.Chat, error) {
	return scanChat(s.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1`, id))
}

// GetChatByCustomer returns the customer's most recently active chat.
func (s *Store) GetChatByCustomer(ctx context.Context, customerID string) (chat.Chat, error) {
	return scanChat(s.pool.QueryRow(ctx, `
		SELECT `+chatColumns+` FROM chats
		WHERE customer_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`, customerID))
}

// ListChatsForUser returns the user's chats, most recently updated first.
func (s *Store) ListChatsForUser(ctx context.Context, userID string, staffSide bool) ([]chat.Chat, error) {
	column := "customer_id"
	if staffSide {
		column = "staff_id"
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+chatColumns+` FROM chats
		WHERE `+column+` = $1
		ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []chat.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// ResetUnread zeroes the unread counter.
func (s *Store) ResetUnread(ctx context.Context, chatID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET unread_count = 0 WHERE id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrChatNotFound
	}
	return nil
}

// SetChatStatus moves the chat to the given status.
func (s *Store) SetChatStatus(ctx context.Context, chatID string, status chat.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET status = $2, updated_at = $3 WHERE id = $1`,
		chatID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set chat status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrChatNotFound
	}
	return nil
}
