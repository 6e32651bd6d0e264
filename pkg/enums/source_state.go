package enums

// SourceState reflects the health of a single event subscription.
type SourceState string

const (
	SourceStateActive   SourceState = "active"
	SourceStateRetrying SourceState = "retrying"
	SourceStateDegraded SourceState = "degraded"
	SourceStateStopped  SourceState = "stopped"
)
