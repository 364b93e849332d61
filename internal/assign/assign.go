// Package assign selects a staff member for an unassigned inbound
// conversation. The policy is deliberately pluggable; FirstConnected is
// the default and simplest strategy.
package assign

import (
	"context"
	"errors"
)

// ErrNoActiveStaff is returned when no staff member is currently
// connected. Callers must not create a chat or persist the message as
// assigned in that case.
var ErrNoActiveStaff = errors.New("no active staff available")

// StaffLister exposes the connected staff identities in policy order.
type StaffLister interface {
	ActiveStaff() []string
}

// Strategy picks one staff identity for a new conversation.
type Strategy interface {
	PickStaff(ctx context.Context) (string, error)
}

// FirstConnected assigns the staff member who connected earliest.
type FirstConnected struct {
	live StaffLister
}

// NewFirstConnected creates the default assignment strategy.
func NewFirstConnected(live StaffLister) *FirstConnected {
	return &FirstConnected{live: live}
}

// PickStaff returns the head of the active staff list.
func (s *FirstConnected) PickStaff(ctx context.Context) (string, error) {
	staff := s.live.ActiveStaff()
	if len(staff) == 0 {
		return "", ErrNoActiveStaff
	}
	return staff[0], nil
}
