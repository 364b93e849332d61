package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fixline/fixline/internal/identity"
)

// ErrSameSide is returned when both participants are staff or both are
// customers; a chat always pairs one of each.
var ErrSameSide = errors.New("chat requires one staff and one customer participant")

// ResolverStore is the persistence surface the resolver needs. The insert
// must be atomic on the (staff, customer) pair so that concurrent creators
// for the same pair converge on one row.
type ResolverStore interface {
	// InsertChatIfAbsent inserts the chat unless one already exists for
	// the pair. It returns the canonical row and whether this call
	// created it.
	InsertChatIfAbsent(ctx context.Context, c Chat) (Chat, bool, error)
}

// Resolver finds or creates the canonical chat for a (staff, customer)
// pair. Creation is idempotent under concurrency: losers of the insert
// race receive the winner's row.
type Resolver struct {
	store  ResolverStore
	logger *slog.Logger
}

// NewResolver creates a chat resolver.
func NewResolver(log *slog.Logger, store ResolverStore) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:  store,
		logger: log.With(slog.String("service", "chat_resolver")),
	}
}

// GetOrCreate resolves the chat for the two users, classifying staff and
// customer by role rather than by argument order.
func (r *Resolver) GetOrCreate(ctx context.Context, a, b identity.User, source string) (Chat, error) {
	staff, customer, err := classify(a, b)
	if err != nil {
		return Chat{}, err
	}
	resolved, created, err := r.store.InsertChatIfAbsent(ctx, Chat{
		StaffID:    staff.ID,
		CustomerID: customer.ID,
		Status:     StatusPending,
		Source:     source,
	})
	if err != nil {
		return Chat{}, fmt.Errorf("resolve chat: %w", err)
	}
	if created {
		r.logger.Info("chat created",
			slog.String("chat_id", resolved.ID),
			slog.String("staff_id", staff.ID),
			slog.String("customer_id", customer.ID),
		)
	}
	return resolved, nil
}

func classify(a, b identity.User) (staff, customer identity.User, err error) {
	switch {
	case a.Role.IsStaff() && b.Role == identity.RoleCustomer:
		return a, b, nil
	case b.Role.IsStaff() && a.Role == identity.RoleCustomer:
		return b, a, nil
	default:
		return identity.User{}, identity.User{}, ErrSameSide
	}
}
