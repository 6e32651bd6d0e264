package toasts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/velora-notify/pkg/enums"
	pkgerrors "github.com/angelmondragon/velora-notify/pkg/errors"
	"github.com/angelmondragon/velora-notify/pkg/logger"
	"github.com/angelmondragon/velora-notify/pkg/metrics"
)

// Config tunes the shared countdown loop and dismissal gesture.
type Config struct {
	TickInterval     time.Duration
	DefaultDuration  time.Duration
	CriticalDuration time.Duration
	DismissThreshold float64

	// NowFn overrides the tick loop's clock. Nil means time.Now.
	NowFn func() time.Time
}

// Instance is a read-only snapshot of one live toast.
type Instance struct {
	NotificationID string           `json:"notificationId"`
	State          enums.ToastState `json:"state"`
	Slot           int              `json:"slot"`
	VisibleSince   time.Time        `json:"visibleSince"`
	RemainingMs    int64            `json:"remainingMs"`
}

// RemovalFunc observes every toast leaving the visible set. It is invoked
// exactly once per instance, outside the controller lock.
type RemovalFunc func(notificationID string, reason enums.RemovalReason)

type instance struct {
	notificationID string
	state          enums.ToastState
	slot           int
	visibleSince   time.Time
	remaining      time.Duration
	expiresAt      *time.Time
}

type removal struct {
	notificationID string
	reason         enums.RemovalReason
}

// Controller drives every live toast through its timed lifecycle on one
// shared tick, so cancellation is just removal from the tick set and
// per-instance timers cannot drift or leak.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	logg     *logger.Logger
	metrics  *metrics.EngineMetrics
	onRemove RemovalFunc
	live     map[string]*instance
}

// NewController wires the lifecycle controller.
func NewController(cfg Config, logg *logger.Logger, m *metrics.EngineMetrics, onRemove RemovalFunc) (*Controller, error) {
	if cfg.TickInterval <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tick interval must be positive")
	}
	if cfg.DefaultDuration < cfg.TickInterval || cfg.CriticalDuration < cfg.TickInterval {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "toast durations must cover at least one tick")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if cfg.NowFn == nil {
		cfg.NowFn = time.Now
	}
	return &Controller{
		cfg:      cfg,
		logg:     logg,
		metrics:  m,
		onRemove: onRemove,
		live:     map[string]*instance{},
	}, nil
}

// DurationFor returns the countdown a toast of the given priority receives.
// Urgent and high traffic uses the shorter critical duration.
func (c *Controller) DurationFor(priority enums.Priority) time.Duration {
	if priority.AtLeast(enums.PriorityHigh) {
		return c.cfg.CriticalDuration
	}
	return c.cfg.DefaultDuration
}

// Show admits a notification as a visible, counting toast. A notification
// may hold at most one live instance at a time.
func (c *Controller) Show(notificationID string, priority enums.Priority, expiresAt *time.Time, slot int, now time.Time) error {
	if notificationID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.live[notificationID]; exists {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "toast already live for notification")
	}

	c.live[notificationID] = &instance{
		notificationID: notificationID,
		state:          enums.ToastStateCounting,
		slot:           slot,
		visibleSince:   now,
		remaining:      c.DurationFor(priority),
		expiresAt:      expiresAt,
	}
	c.metrics.IncAdmitted()
	c.metrics.SetActiveTimers(len(c.live))
	return nil
}

// SetSlot updates a live toast's stacking position after a rescheduling pass.
func (c *Controller) SetSlot(notificationID string, slot int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst, ok := c.live[notificationID]; ok {
		inst.slot = slot
	}
}

// Tick advances every counting toast by one tick interval and enforces offer
// deadlines. Deadlines are checked independently of the countdown so a
// paused toast still expires on time.
func (c *Controller) Tick(now time.Time) {
	c.mu.Lock()
	var removals []removal
	for id, inst := range c.live {
		if inst.expiresAt != nil && now.After(*inst.expiresAt) {
			inst.state = enums.ToastStateExpired
			removals = append(removals, removal{id, enums.RemovalReasonExpired})
			continue
		}
		if inst.state != enums.ToastStateCounting {
			continue
		}
		inst.remaining -= c.cfg.TickInterval
		if inst.remaining <= 0 {
			removals = append(removals, removal{id, enums.RemovalReasonTimeout})
		}
	}
	for _, r := range removals {
		delete(c.live, r.notificationID)
	}
	c.metrics.SetActiveTimers(len(c.live))
	c.mu.Unlock()

	c.fire(removals)
}

// SetInteracting pauses the countdown while the user is touching the toast
// and resumes it, with remaining time intact, on release.
func (c *Controller) SetInteracting(notificationID string, interacting bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.live[notificationID]
	if !ok {
		return
	}
	switch {
	case interacting && inst.state == enums.ToastStateCounting:
		inst.state = enums.ToastStatePaused
	case !interacting && inst.state == enums.ToastStatePaused:
		inst.state = enums.ToastStateCounting
	}
}

// Dismiss removes the toast immediately on explicit close or action
// invocation. The countdown is torn down synchronously; no further ticks
// reach the instance. Dismissing an unknown id is a logged no-op.
func (c *Controller) Dismiss(notificationID string, reason enums.RemovalReason) {
	c.mu.Lock()
	inst, ok := c.live[notificationID]
	if !ok {
		c.mu.Unlock()
		c.logg.Warn(context.Background(), "dismiss of non-live toast ignored")
		return
	}
	inst.state = enums.ToastStateDismissing
	delete(c.live, notificationID)
	c.metrics.SetActiveTimers(len(c.live))
	c.mu.Unlock()

	c.fire([]removal{{notificationID, reason}})
}

// EndDrag resolves a dismissal gesture. Crossing the configured distance
// threshold dismisses the toast; anything short of it resumes the countdown
// unchanged. Returns whether the toast was dismissed.
func (c *Controller) EndDrag(notificationID string, distance float64) bool {
	if distance >= c.cfg.DismissThreshold {
		c.Dismiss(notificationID, enums.RemovalReasonDismissed)
		return true
	}
	c.SetInteracting(notificationID, false)
	return false
}

// Accept resolves an offer toast's primary action. Expiry is re-validated
// here because the countdown display and the deadline can race; a stale
// accept must lose.
func (c *Controller) Accept(notificationID string, now time.Time) error {
	c.mu.Lock()
	inst, ok := c.live[notificationID]
	if !ok {
		c.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeNotFound, "toast not live")
	}
	if inst.expiresAt != nil && now.After(*inst.expiresAt) {
		inst.state = enums.ToastStateExpired
		delete(c.live, notificationID)
		c.metrics.SetActiveTimers(len(c.live))
		c.mu.Unlock()
		c.fire([]removal{{notificationID, enums.RemovalReasonExpired}})
		return pkgerrors.New(pkgerrors.CodeExpired, "offer deadline passed")
	}
	inst.state = enums.ToastStateDismissing
	delete(c.live, notificationID)
	c.metrics.SetActiveTimers(len(c.live))
	c.mu.Unlock()

	c.fire([]removal{{notificationID, enums.RemovalReasonAction}})
	return nil
}

// Visible returns snapshots of all live toasts in slot order.
func (c *Controller) Visible() []Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Instance, 0, len(c.live))
	for _, inst := range c.live {
		out = append(out, Instance{
			NotificationID: inst.notificationID,
			State:          inst.state,
			Slot:           inst.slot,
			VisibleSince:   inst.visibleSince,
			RemainingMs:    inst.remaining.Milliseconds(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// VisibleIDs returns the live notification ids in slot order.
func (c *Controller) VisibleIDs() []string {
	visible := c.Visible()
	ids := make([]string, len(visible))
	for i := range visible {
		ids[i] = visible[i].NotificationID
	}
	return ids
}

// ActiveTimers reports the size of the tick set. Every exit transition
// removes its instance, so this returns to zero once all toasts are gone.
func (c *Controller) ActiveTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Run drives the shared tick until the context is canceled. The loop never
// blocks on I/O; all work happens in Tick.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Tick(c.cfg.NowFn())
		}
	}
}

func (c *Controller) fire(removals []removal) {
	for _, r := range removals {
		c.metrics.IncRemoved(string(r.reason))
		if c.onRemove != nil {
			c.onRemove(r.notificationID, r.reason)
		}
	}
}
