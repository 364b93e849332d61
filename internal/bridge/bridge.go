// Package bridge defines the outbound adapter contract for the external
// bot messaging platform.
package bridge

import (
	"context"

	"github.com/fixline/fixline/internal/chat"
)

// Outcome is the terminal result of a bridge delivery attempt. The
// adapter absorbs provider failures; it never propagates an error to the
// router, because the message is already durably recorded by then.
type Outcome string

const (
	// OutcomeDelivered means the message reached the platform in its
	// original form.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeDegraded means the media send failed and a text-only
	// fallback was delivered instead.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeFailed means both the original send and the fallback
	// failed. The message stays persisted for history fetch.
	OutcomeFailed Outcome = "failed_recorded"
)

// Bridge delivers an outbound message to the peer identified by its
// platform id.
type Bridge interface {
	Deliver(ctx context.Context, peerID string, msg chat.Message) Outcome
}
