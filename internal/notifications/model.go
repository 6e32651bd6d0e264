package notifications

import (
	"time"

	"github.com/angelmondragon/velora-notify/pkg/enums"
	"github.com/shopspring/decimal"
)

// Action is a single suggested follow-up carried on a notification. The
// engine never executes it, only hands it back to the caller on invocation.
type Action struct {
	Label  string `json:"label"`
	Target string `json:"target"`
}

// Offer carries the pass-through details of a time-boxed dispatch alert.
// The engine never inspects these beyond forwarding them to the caller.
type Offer struct {
	DistanceKm     decimal.Decimal `json:"distanceKm"`
	EstimatedPrice decimal.Decimal `json:"estimatedPrice"`
}

// Notification is the canonical, durable record of a domain event relevant
// to the user. Display strings are opaque to the engine.
type Notification struct {
	ID        string            `json:"id"`
	Category  enums.Category    `json:"category"`
	Priority  enums.Priority    `json:"priority"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"createdAt"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty"`
	ReadAt    *time.Time        `json:"readAt,omitempty"`
	Action    *Action           `json:"action,omitempty"`
	Offer     *Offer            `json:"offer,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// IsRead reports whether the notification has been marked read.
func (n *Notification) IsRead() bool {
	return n != nil && n.ReadAt != nil
}

// IsOffer reports whether the notification is time-boxed. Offers become
// unacceptable once their deadline passes.
func (n *Notification) IsOffer() bool {
	return n != nil && n.ExpiresAt != nil
}

// ExpiredAt reports whether the offer deadline has passed at the given
// instant. Notifications without a deadline never expire.
func (n *Notification) ExpiredAt(now time.Time) bool {
	return n.IsOffer() && now.After(*n.ExpiresAt)
}

func (n *Notification) clone() *Notification {
	if n == nil {
		return nil
	}
	out := *n
	if n.ExpiresAt != nil {
		expires := *n.ExpiresAt
		out.ExpiresAt = &expires
	}
	if n.ReadAt != nil {
		read := *n.ReadAt
		out.ReadAt = &read
	}
	if n.Action != nil {
		action := *n.Action
		out.Action = &action
	}
	if n.Offer != nil {
		offer := *n.Offer
		out.Offer = &offer
	}
	if n.Metadata != nil {
		meta := make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			meta[k] = v
		}
		out.Metadata = meta
	}
	return &out
}
