package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fixline/fixline/internal/chat"
	"github.com/fixline/fixline/internal/router"
)

const messageColumns = `id, chat_id, from_user, to_user, content,
	message_type, COALESCE(attachment_ref, ''), origin, created_at`

func scanMessage(row pgx.Row) (chat.Message, error) {
	var m chat.Message
	err := row.Scan(&m.ID, &m.ChatID, &m.FromUser, &m.ToUser, &m.Content,
		&m.Type, &m.AttachmentRef, &m.Origin, &m.CreatedAt)
	if err != nil {
		return chat.Message{}, fmt.Errorf("scan message: %w", err)
	}
	return m, nil
}

// AppendMessage inserts the message and applies the chat aggregate update
// in one transaction, so a crash can never leave a message without its
// unread and last-message bookkeeping.
func (s *Store) AppendMessage(ctx context.Context, msg chat.Message, update router.AggregateUpdate) (chat.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return chat.Message{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	stored, err := scanMessage(tx.QueryRow(ctx, `
		INSERT INTO messages (id, chat_id, from_user, to_user, content, message_type, attachment_ref, origin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
		RETURNING `+messageColumns,
		msg.ID, msg.ChatID, msg.FromUser, msg.ToUser, msg.Content,
		msg.Type, msg.AttachmentRef, msg.Origin, msg.CreatedAt,
	))
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}

	increment := 0
	if update.IncrementUnread {
		increment = 1
	}
	tag, err := tx.Exec(ctx, `
		UPDATE chats
		SET status = $2, last_message = $3, unread_count = unread_count + $4, updated_at = $5
		WHERE id = $1`,
		update.ChatID, update.Status, update.LastMessage, increment, update.UpdatedAt,
	)
	if err != nil {
		return chat.Message{}, fmt.Errorf("update chat aggregate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.Message{}, chat.ErrChatNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return chat.Message{}, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// ListMessages returns a page of the chat's log in insertion order. The
// serial sequence column breaks created-at ties, so readers always see
// the same order writers committed in.
func (s *Store) ListMessages(ctx context.Context, chatID string, limit, offset int) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE chat_id = $1
		ORDER BY seq
		LIMIT $2 OFFSET $3`, chatID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}
