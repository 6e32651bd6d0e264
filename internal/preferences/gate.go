package preferences

import (
	"time"

	"github.com/angelmondragon/velora-notify/internal/notifications"
	"github.com/angelmondragon/velora-notify/pkg/enums"
)

// RejectReason explains why the gate refused toast admission. Reasons are
// mutually exclusive: the first matching rule wins and later rules are not
// evaluated.
type RejectReason string

const (
	ReasonNone         RejectReason = ""
	ReasonDisabled     RejectReason = "notifications_disabled"
	ReasonCategoryOff  RejectReason = "category_disabled"
	ReasonPriorityOnly RejectReason = "priority_only"
	ReasonQuietHours   RejectReason = "quiet_hours"
)

// Admit decides whether a notification may become a visible toast. The rule
// order is policy, not an accident: master switch, then category toggle, then
// priority-only mode, then quiet hours. Storage is never affected.
func Admit(n *notifications.Notification, prefs Preferences, now time.Time) (bool, RejectReason) {
	if !prefs.Enabled {
		return false, ReasonDisabled
	}
	if !prefs.CategoryOn(n.Category) {
		return false, ReasonCategoryOff
	}
	if prefs.PriorityOnly && !n.Priority.AtLeast(enums.PriorityHigh) {
		return false, ReasonPriorityOnly
	}
	if prefs.QuietHours.Active(now) && n.Priority != enums.PriorityUrgent {
		return false, ReasonQuietHours
	}
	return true, ReasonNone
}
