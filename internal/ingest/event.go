package ingest

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DomainEvent is the wire shape every source delivers: a status transition
// on some entity plus a source-specific payload. Delivery is at-least-once
// and unordered across sources.
type DomainEvent struct {
	EventID        string          `json:"eventId" validate:"required"`
	EntityID       string          `json:"entityId" validate:"required"`
	PreviousStatus string          `json:"previousStatus"`
	NewStatus      string          `json:"newStatus" validate:"required"`
	Timestamp      time.Time       `json:"timestamp" validate:"required"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

type offerPayload struct {
	ExpiresAt      time.Time       `json:"expiresAt"`
	DistanceKm     decimal.Decimal `json:"distanceKm"`
	EstimatedPrice decimal.Decimal `json:"estimatedPrice"`
}

type chatPayload struct {
	SenderName string `json:"senderName"`
	Preview    string `json:"preview"`
}

type paymentPayload struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type orderPayload struct {
	VendorName string `json:"vendorName"`
}
