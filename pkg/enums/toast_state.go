package enums

// ToastState tracks a toast instance through its timed lifecycle.
type ToastState string

const (
	ToastStateQueued     ToastState = "queued"
	ToastStateCounting   ToastState = "counting"
	ToastStatePaused     ToastState = "paused"
	ToastStateDismissing ToastState = "dismissing"
	ToastStateExpired    ToastState = "expired"
	ToastStateRemoved    ToastState = "removed"
)

// Terminal reports whether the state ends the instance's lifecycle.
func (s ToastState) Terminal() bool {
	return s == ToastStateRemoved
}
