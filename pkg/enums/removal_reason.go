package enums

// RemovalReason explains why a toast instance left the visible set.
type RemovalReason string

const (
	RemovalReasonTimeout   RemovalReason = "timeout"
	RemovalReasonDismissed RemovalReason = "dismissed"
	RemovalReasonExpired   RemovalReason = "expired"
	RemovalReasonAction    RemovalReason = "action"
)
