// Package router orchestrates message sends: destination resolution,
// staff assignment, durable persistence, aggregate updates, and delivery
// across the live, bridge, and store-and-forward paths.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fixline/fixline/internal/assign"
	"github.com/fixline/fixline/internal/bridge"
	"github.com/fixline/fixline/internal/chat"
	"github.com/fixline/fixline/internal/identity"
	"github.com/fixline/fixline/internal/live"
	"github.com/fixline/fixline/internal/metrics"
)

// ErrNoDestination is returned when a staff sender provides neither a
// chat id nor an explicit recipient.
var ErrNoDestination = errors.New("destination is required")

// Draft is a send request with an already-verified sender.
type Draft struct {
	From          identity.User
	To            string
	ChatID        string
	Content       string
	Type          chat.MessageType
	AttachmentRef string
	Origin        chat.Origin
}

// DeliveryOutcome is how the message finally reached (or awaits) its
// recipient. Persistence has already succeeded whenever an outcome is
// produced.
type DeliveryOutcome string

const (
	DeliveryLive     DeliveryOutcome = "live"
	DeliveryBridged  DeliveryOutcome = "bridged"
	DeliveryDegraded DeliveryOutcome = "degraded"
	DeliveryStored   DeliveryOutcome = "stored"
)

// Result reports the persisted message, its chat, and the delivery path.
type Result struct {
	Message  chat.Message
	Chat     chat.Chat
	Delivery DeliveryOutcome
}

// AggregateUpdate is the chat mutation applied atomically with a message
// insert.
type AggregateUpdate struct {
	ChatID          string
	Status          chat.Status
	LastMessage     string
	IncrementUnread bool
	UpdatedAt       time.Time
}

// Store is the persistence surface the router needs. AppendMessage must
// apply the insert and the aggregate update in one transaction.
type Store interface {
	GetChatByID(ctx context.Context, id string) (chat.Chat, error)
	GetChatByCustomer(ctx context.Context, customerID string) (chat.Chat, error)
	AppendMessage(ctx context.Context, msg chat.Message, update AggregateUpdate) (chat.Message, error)
}

// UserDirectory resolves user records by id.
type UserDirectory interface {
	Get(ctx context.Context, id string) (identity.User, error)
}

// ChatResolver finds or creates the canonical chat for a pair.
type ChatResolver interface {
	GetOrCreate(ctx context.Context, a, b identity.User, source string) (chat.Chat, error)
}

// LiveRegistry looks up the live handle for a recipient.
type LiveRegistry interface {
	Get(userID string) (live.Handle, bool)
}

// Router routes messages between participants. Sends targeting the same
// chat are serialized with a per-chat lock so concurrent aggregate
// updates cannot interleave; different chats never block each other.
type Router struct {
	store    Store
	users    UserDirectory
	resolver ChatResolver
	picker   assign.Strategy
	live     LiveRegistry
	bridge   bridge.Bridge
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu        sync.Mutex
	chatLocks map[string]*sync.Mutex
}

// New creates a message router.
func New(log *slog.Logger, store Store, users UserDirectory, resolver ChatResolver, picker assign.Strategy, liveReg LiveRegistry, bridgeAdapter bridge.Bridge, m *metrics.Metrics) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		store:     store,
		users:     users,
		resolver:  resolver,
		picker:    picker,
		live:      liveReg,
		bridge:    bridgeAdapter,
		metrics:   m,
		logger:    log.With(slog.String("service", "router")),
		chatLocks: map[string]*sync.Mutex{},
	}
}

// Send validates, persists, and delivers the draft. Persistence always
// completes before delivery is attempted; a delivery failure never rolls
// the message back.
func (r *Router) Send(ctx context.Context, draft Draft) (Result, error) {
	msgType, err := chat.ParseMessageType(string(draft.Type))
	if err != nil {
		return Result{}, err
	}
	content := strings.TrimSpace(draft.Content)
	if content == "" && msgType != chat.TypeText {
		content = msgType.Placeholder()
	}
	origin := draft.Origin
	if origin == "" {
		origin = chat.OriginDirect
	}
	candidate := chat.Message{
		FromUser:      draft.From.ID,
		Content:       content,
		Type:          msgType,
		AttachmentRef: strings.TrimSpace(draft.AttachmentRef),
		Origin:        origin,
	}
	// Reject malformed messages before any persistence or assignment.
	if err := candidate.Validate(); err != nil {
		return Result{}, err
	}

	conversation, destUser, err := r.resolveDestination(ctx, draft)
	if err != nil {
		return Result{}, err
	}

	msg, updated, err := r.persist(ctx, conversation.ID, candidate, destUser.ID)
	if err != nil {
		if r.metrics != nil {
			r.metrics.Errors.WithLabelValues("persist").Inc()
		}
		return Result{}, err
	}

	outcome := r.deliver(ctx, destUser, msg)
	if r.metrics != nil {
		r.metrics.MessagesRouted.WithLabelValues(string(msg.Origin), string(msg.Type)).Inc()
		r.metrics.DeliveryOutcomes.WithLabelValues(string(outcome)).Inc()
	}
	r.logger.Info("message routed",
		slog.String("chat_id", msg.ChatID),
		slog.String("message_id", msg.ID),
		slog.String("delivery", string(outcome)),
	)
	return Result{Message: msg, Chat: updated, Delivery: outcome}, nil
}

// resolveDestination applies the precedence chain: explicit chat, then
// explicit recipient, then staff assignment for a customer's first
// contact. The returned chat id may be empty when the chat does not
// exist yet; persist resolves it.
func (r *Router) resolveDestination(ctx context.Context, draft Draft) (chat.Chat, identity.User, error) {
	from := draft.From

	if chatID := strings.TrimSpace(draft.ChatID); chatID != "" {
		conversation, err := r.store.GetChatByID(ctx, chatID)
		if err != nil {
			return chat.Chat{}, identity.User{}, err
		}
		otherID, ok := conversation.OtherParticipant(from.ID)
		if !ok {
			return chat.Chat{}, identity.User{}, chat.ErrNotParticipant
		}
		destUser, err := r.users.Get(ctx, otherID)
		if err != nil {
			return chat.Chat{}, identity.User{}, err
		}
		return conversation, destUser, nil
	}

	destID := strings.TrimSpace(draft.To)
	if destID == "" {
		if from.Role != identity.RoleCustomer {
			return chat.Chat{}, identity.User{}, ErrNoDestination
		}
		existing, err := r.store.GetChatByCustomer(ctx, from.ID)
		switch {
		case err == nil:
			destUser, err := r.users.Get(ctx, existing.StaffID)
			if err != nil {
				return chat.Chat{}, identity.User{}, err
			}
			return existing, destUser, nil
		case errors.Is(err, chat.ErrChatNotFound):
			// First contact: assign before any chat row exists. An
			// assignment failure must leave no trace.
			destID, err = r.picker.PickStaff(ctx)
			if err != nil {
				return chat.Chat{}, identity.User{}, err
			}
		default:
			return chat.Chat{}, identity.User{}, fmt.Errorf("lookup customer chat: %w", err)
		}
	}

	destUser, err := r.users.Get(ctx, destID)
	if err != nil {
		return chat.Chat{}, identity.User{}, err
	}
	conversation, err := r.resolver.GetOrCreate(ctx, from, destUser, sourceForOrigin(draft.Origin))
	if err != nil {
		return chat.Chat{}, identity.User{}, err
	}
	return conversation, destUser, nil
}

// persist appends the message and updates the chat aggregate under the
// per-chat lock. The chat row is re-read inside the lock so the status
// transition and unread increment are computed against current state.
func (r *Router) persist(ctx context.Context, chatID string, candidate chat.Message, destID string) (chat.Message, chat.Chat, error) {
	lock := r.lockFor(chatID)
	lock.Lock()
	defer lock.Unlock()

	current, err := r.store.GetChatByID(ctx, chatID)
	if err != nil {
		return chat.Message{}, chat.Chat{}, err
	}

	now := time.Now().UTC()
	staffAuthored := candidate.FromUser == current.StaffID
	msg := candidate
	msg.ID = uuid.NewString()
	msg.ChatID = current.ID
	msg.ToUser = destID
	msg.CreatedAt = now

	update := AggregateUpdate{
		ChatID:          current.ID,
		Status:          chat.NextStatus(current.Status, staffAuthored),
		LastMessage:     msg.Content,
		IncrementUnread: candidate.FromUser == current.CustomerID,
		UpdatedAt:       now,
	}
	stored, err := r.store.AppendMessage(ctx, msg, update)
	if err != nil {
		return chat.Message{}, chat.Chat{}, fmt.Errorf("append message: %w", err)
	}

	current.Status = update.Status
	current.LastMessage = update.LastMessage
	current.UpdatedAt = update.UpdatedAt
	if update.IncrementUnread {
		current.UnreadCount++
	}
	return stored, current, nil
}

// deliver pushes the message to the recipient. Outcomes never unwind
// persistence: a recipient with no live handle and no bridge binding
// simply picks the message up on the next history fetch.
func (r *Router) deliver(ctx context.Context, dest identity.User, msg chat.Message) DeliveryOutcome {
	if handle, ok := r.live.Get(dest.ID); ok {
		frame := live.OutboundFrame{Kind: "message", ChatID: msg.ChatID, Message: msg}
		if err := handle.Deliver(frame); err == nil {
			return DeliveryLive
		} else {
			r.logger.Warn("live delivery failed, message stays stored",
				slog.String("user_id", dest.ID),
				slog.Any("error", err),
			)
			return DeliveryStored
		}
	}

	if r.bridge != nil && strings.TrimSpace(dest.TelegramID) != "" {
		switch r.bridge.Deliver(ctx, dest.TelegramID, msg) {
		case bridge.OutcomeDelivered:
			return DeliveryBridged
		default:
			return DeliveryDegraded
		}
	}

	return DeliveryStored
}

func (r *Router) lockFor(chatID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.chatLocks[chatID]
	if !ok {
		l = &sync.Mutex{}
		r.chatLocks[chatID] = l
	}
	return l
}

func sourceForOrigin(origin chat.Origin) string {
	if origin == chat.OriginBridge {
		return "telegram"
	}
	return "web"
}
