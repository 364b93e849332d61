package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fixline/fixline/internal/db"
	"github.com/fixline/fixline/internal/identity"
)

const userColumns = `id, role, display_name,
	COALESCE(username, ''), COALESCE(api_key, ''), COALESCE(phone, ''), COALESCE(telegram_id, ''),
	online, COALESCE(last_active, 'epoch'::timestamptz), created_at`

// credentialColumns whitelists the lookup columns so a credential kind
// can never reach the query text unchecked.
var credentialColumns = map[identity.CredentialKind]string{
	identity.CredentialAPIKey:   "api_key",
	identity.CredentialPhone:    "phone",
	identity.CredentialTelegram: "telegram_id",
	identity.CredentialUsername: "username",
}

func scanUser(row pgx.Row) (identity.User, error) {
	var u identity.User
	err := row.Scan(&u.ID, &u.Role, &u.DisplayName,
		&u.Username, &u.APIKey, &u.Phone, &u.TelegramID,
		&u.Online, &u.LastActive, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.User{}, identity.ErrUserNotFound
	}
	if err != nil {
		return identity.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// CreateUser inserts the user, assigning an id when none is set. The
// partial unique indexes on the credential columns make this the final
// arbiter against duplicate bindings under concurrency.
func (s *Store) CreateUser(ctx context.Context, user identity.User) (identity.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, role, display_name, username, api_key, phone, telegram_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
		RETURNING `+userColumns,
		user.ID, user.Role, user.DisplayName, user.Username, user.APIKey, user.Phone, user.TelegramID,
	)
	created, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return identity.User{}, identity.ErrDuplicateIdentity
		}
		return identity.User{}, err
	}
	return created, nil
}

// GetUserByID returns the user with the given id.
func (s *Store) GetUserByID(ctx context.Context, id string) (identity.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByCredential returns the user bound to the credential value.
func (s *Store) GetUserByCredential(ctx context.Context, kind identity.CredentialKind, value string) (identity.User, error) {
	column, ok := credentialColumns[kind]
	if !ok {
		return identity.User{}, fmt.Errorf("unknown credential kind: %s", kind)
	}
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value)
	return scanUser(row)
}

// SetOnline flips the presence flag and stamps last activity.
func (s *Store) SetOnline(ctx context.Context, userID string, online bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET online = $2, last_active = $3 WHERE id = $1`,
		userID, online, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// ListOnlineUserIDs returns the ids currently flagged online.
func (s *Store) ListOnlineUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM users WHERE online = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("list online users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetPassword stores the bcrypt digest for password logins.
func (s *Store) SetPassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`,
		userID, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// GetPasswordHash returns the stored digest, empty when no password is
// set for the user.
func (s *Store) GetPasswordHash(ctx context.Context, userID string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(password_hash, '') FROM users WHERE id = $1`, userID,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", identity.ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get password hash: %w", err)
	}
	return hash, nil
}
