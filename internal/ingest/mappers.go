package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/velora-notify/internal/notifications"
	"github.com/angelmondragon/velora-notify/pkg/enums"
	pkgerrors "github.com/angelmondragon/velora-notify/pkg/errors"
)

// Mapper normalizes one source's events into the canonical notification
// shape. Unrecognized statuses are errors; the adapter logs and drops them
// without disturbing other events.
type Mapper func(evt DomainEvent) (*notifications.Notification, error)

// Mappers returns the per-source mapping tables keyed by source name.
func Mappers() map[string]Mapper {
	return map[string]Mapper{
		"bookings":    mapBookingEvent,
		"orders":      mapOrderEvent,
		"payments":    mapPaymentEvent,
		"wallet":      mapWalletEvent,
		"chat":        mapChatEvent,
		"marketplace": mapMarketplaceEvent,
	}
}

func base(evt DomainEvent, category enums.Category, priority enums.Priority, title, message string) *notifications.Notification {
	return &notifications.Notification{
		ID:        evt.EventID,
		Category:  category,
		Priority:  priority,
		Title:     title,
		Message:   message,
		CreatedAt: evt.Timestamp,
		Metadata:  map[string]string{"entityId": evt.EntityID},
	}
}

func mapBookingEvent(evt DomainEvent) (*notifications.Notification, error) {
	switch evt.NewStatus {
	case "offer_dispatched":
		var payload offerPayload
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding offer payload")
		}
		if payload.ExpiresAt.IsZero() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer missing deadline")
		}
		n := base(evt, enums.CategoryTransport, enums.PriorityUrgent,
			"New ride request",
			fmt.Sprintf("Pickup %s km away, estimated %s.", payload.DistanceKm, payload.EstimatedPrice))
		expires := payload.ExpiresAt
		n.ExpiresAt = &expires
		n.Offer = &notifications.Offer{
			DistanceKm:     payload.DistanceKm,
			EstimatedPrice: payload.EstimatedPrice,
		}
		n.Action = &notifications.Action{Label: "Accept", Target: "/bookings/" + evt.EntityID}
		return n, nil
	case "driver_assigned":
		return base(evt, enums.CategoryTransport, enums.PriorityHigh,
			"Driver on the way",
			"Your driver has been assigned and is heading to the pickup point."), nil
	case "driver_arrived":
		return base(evt, enums.CategoryTransport, enums.PriorityUrgent,
			"Driver arrived",
			"Your driver is waiting at the pickup point."), nil
	case "completed":
		return base(evt, enums.CategoryTransport, enums.PriorityNormal,
			"Trip completed",
			"Thanks for riding with us. Rate your trip in the app."), nil
	case "cancelled":
		return base(evt, enums.CategoryTransport, enums.PriorityNormal,
			"Trip cancelled",
			"Your trip was cancelled."), nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unrecognized booking status %q", evt.NewStatus))
	}
}

func mapOrderEvent(evt DomainEvent) (*notifications.Notification, error) {
	var payload orderPayload
	if len(evt.Payload) > 0 {
		_ = json.Unmarshal(evt.Payload, &payload)
	}
	vendor := payload.VendorName
	if vendor == "" {
		vendor = "the vendor"
	}

	switch evt.NewStatus {
	case "confirmed":
		return base(evt, enums.CategoryDelivery, enums.PriorityNormal,
			"Order confirmed",
			fmt.Sprintf("%s accepted your order and is preparing it.", vendor)), nil
	case "picked_up":
		return base(evt, enums.CategoryDelivery, enums.PriorityNormal,
			"Order picked up",
			"A courier picked up your order."), nil
	case "arriving":
		return base(evt, enums.CategoryDelivery, enums.PriorityHigh,
			"Order arriving",
			"Your courier is almost there. Meet them at the door."), nil
	case "delivered":
		return base(evt, enums.CategoryDelivery, enums.PriorityNormal,
			"Order delivered",
			"Enjoy! Your order has been delivered."), nil
	case "cancelled":
		return base(evt, enums.CategoryDelivery, enums.PriorityHigh,
			"Order cancelled",
			fmt.Sprintf("Your order from %s was cancelled.", vendor)), nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unrecognized order status %q", evt.NewStatus))
	}
}

func mapPaymentEvent(evt DomainEvent) (*notifications.Notification, error) {
	var payload paymentPayload
	if len(evt.Payload) > 0 {
		_ = json.Unmarshal(evt.Payload, &payload)
	}
	amount := formatAmount(payload)

	switch evt.NewStatus {
	case "captured":
		return base(evt, enums.CategoryPayment, enums.PriorityNormal,
			"Payment successful",
			fmt.Sprintf("Your payment of %s went through.", amount)), nil
	case "failed":
		return base(evt, enums.CategoryPayment, enums.PriorityUrgent,
			"Payment failed",
			fmt.Sprintf("We could not process your payment of %s. Update your payment method.", amount)), nil
	case "refunded":
		return base(evt, enums.CategoryPayment, enums.PriorityNormal,
			"Refund issued",
			fmt.Sprintf("%s is on its way back to you.", amount)), nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unrecognized payment status %q", evt.NewStatus))
	}
}

func mapWalletEvent(evt DomainEvent) (*notifications.Notification, error) {
	var payload paymentPayload
	if len(evt.Payload) > 0 {
		_ = json.Unmarshal(evt.Payload, &payload)
	}
	amount := formatAmount(payload)

	switch evt.NewStatus {
	case "credited":
		return base(evt, enums.CategoryPayment, enums.PriorityNormal,
			"Wallet topped up",
			fmt.Sprintf("%s was added to your wallet.", amount)), nil
	case "debited":
		return base(evt, enums.CategoryPayment, enums.PriorityLow,
			"Wallet charged",
			fmt.Sprintf("%s was deducted from your wallet.", amount)), nil
	case "low_balance":
		return base(evt, enums.CategoryPayment, enums.PriorityHigh,
			"Low wallet balance",
			"Your wallet balance is running low. Top up to keep riding."), nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unrecognized wallet status %q", evt.NewStatus))
	}
}

func mapChatEvent(evt DomainEvent) (*notifications.Notification, error) {
	switch evt.NewStatus {
	case "message_received":
		var payload chatPayload
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding chat payload")
		}
		if payload.SenderName == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "chat message missing sender")
		}
		n := base(evt, enums.CategoryChat, enums.PriorityHigh, payload.SenderName, payload.Preview)
		n.Action = &notifications.Action{Label: "Reply", Target: "/chats/" + evt.EntityID}
		return n, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unrecognized chat status %q", evt.NewStatus))
	}
}

func mapMarketplaceEvent(evt DomainEvent) (*notifications.Notification, error) {
	switch evt.NewStatus {
	case "listing_approved":
		return base(evt, enums.CategoryMarketplace, enums.PriorityNormal,
			"Listing approved",
			"Your listing passed review and is now live."), nil
	case "listing_rejected":
		return base(evt, enums.CategoryMarketplace, enums.PriorityHigh,
			"Listing rejected",
			"Your listing did not pass review. See the details in your seller dashboard."), nil
	case "item_sold":
		return base(evt, enums.CategoryMarketplace, enums.PriorityHigh,
			"Item sold",
			"Congratulations, your item just sold."), nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unrecognized marketplace status %q", evt.NewStatus))
	}
}

func formatAmount(payload paymentPayload) string {
	if payload.Currency == "" {
		return payload.Amount.StringFixed(2)
	}
	return fmt.Sprintf("%s %s", payload.Amount.StringFixed(2), payload.Currency)
}
