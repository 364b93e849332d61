package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrDuplicateIdentity is returned when a credential value is already
	// bound to a different user.
	ErrDuplicateIdentity = errors.New("credential already bound to another user")
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
)

// Store is the persistence surface the registry needs.
type Store interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByCredential(ctx context.Context, kind CredentialKind, value string) (User, error)
}

// Registry resolves verified credentials to durable User records and
// guards against duplicate credential bindings.
type Registry struct {
	store  Store
	logger *slog.Logger
}

// NewRegistry creates an identity registry backed by the given store.
func NewRegistry(log *slog.Logger, store Store) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		store:  store,
		logger: log.With(slog.String("service", "identity")),
	}
}

// HashAPIKey derives the stored digest for an api key so the raw secret
// never reaches the database.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// Register creates a new user. It fails with ErrDuplicateIdentity if any
// supplied credential already resolves to a different user.
func (r *Registry) Register(ctx context.Context, user User) (User, error) {
	if !user.Role.Valid() {
		return User{}, fmt.Errorf("invalid role: %s", user.Role)
	}
	if len(user.Credentials()) == 0 {
		return User{}, fmt.Errorf("at least one credential is required")
	}
	for kind, value := range user.Credentials() {
		existing, err := r.store.GetUserByCredential(ctx, kind, value)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				continue
			}
			return User{}, fmt.Errorf("check credential %s: %w", kind, err)
		}
		if existing.ID != user.ID {
			return User{}, fmt.Errorf("%w: %s", ErrDuplicateIdentity, kind)
		}
	}

	created, err := r.store.CreateUser(ctx, user)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	r.logger.Info("user registered",
		slog.String("user_id", created.ID),
		slog.String("role", string(created.Role)),
	)
	return created, nil
}

// Resolve looks up a user by credential. It is a pure lookup with no side
// effects and is safe to call on every inbound request.
func (r *Registry) Resolve(ctx context.Context, kind CredentialKind, value string) (User, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return User{}, ErrUserNotFound
	}
	if kind == CredentialAPIKey {
		value = HashAPIKey(value)
	}
	return r.store.GetUserByCredential(ctx, kind, value)
}

// Get returns the user with the given id.
func (r *Registry) Get(ctx context.Context, id string) (User, error) {
	return r.store.GetUserByID(ctx, id)
}

// EnsureCustomer resolves a customer by external platform id, creating the
// record implicitly on first contact.
func (r *Registry) EnsureCustomer(ctx context.Context, telegramID, displayName string) (User, error) {
	telegramID = strings.TrimSpace(telegramID)
	if telegramID == "" {
		return User{}, fmt.Errorf("telegram id is required")
	}
	user, err := r.store.GetUserByCredential(ctx, CredentialTelegram, telegramID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, fmt.Errorf("resolve customer: %w", err)
	}

	created, err := r.store.CreateUser(ctx, User{
		Role:        RoleCustomer,
		DisplayName: strings.TrimSpace(displayName),
		TelegramID:  telegramID,
	})
	if err != nil {
		// A concurrent webhook call may have created the record first.
		if errors.Is(err, ErrDuplicateIdentity) {
			return r.store.GetUserByCredential(ctx, CredentialTelegram, telegramID)
		}
		return User{}, fmt.Errorf("create customer: %w", err)
	}
	r.logger.Info("customer created on first contact", slog.String("user_id", created.ID))
	return created, nil
}
