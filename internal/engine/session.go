package engine

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/velora-notify/internal/ingest"
	"github.com/angelmondragon/velora-notify/internal/notifications"
	"github.com/angelmondragon/velora-notify/internal/preferences"
	"github.com/angelmondragon/velora-notify/internal/scheduler"
	"github.com/angelmondragon/velora-notify/internal/toasts"
	"github.com/angelmondragon/velora-notify/pkg/config"
	"github.com/angelmondragon/velora-notify/pkg/enums"
	pkgerrors "github.com/angelmondragon/velora-notify/pkg/errors"
	"github.com/angelmondragon/velora-notify/pkg/logger"
	"github.com/angelmondragon/velora-notify/pkg/metrics"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
)

// PreferenceLoader supplies the user's saved presentation preferences.
type PreferenceLoader interface {
	Load(ctx context.Context, userID string) (preferences.Preferences, error)
}

// Deps collects the session's collaborators. Repo, Prefs, Metrics and
// Sources are optional; the session degrades to in-memory behavior without
// them.
type Deps struct {
	Config    config.EngineConfig
	Logger    *logger.Logger
	Metrics   *metrics.EngineMetrics
	Repo      notifications.Repository
	Prefs     PreferenceLoader
	ReadQueue *notifications.ReadQueue
	Sources   []ingest.Source
	Mappers   map[string]ingest.Mapper

	// NowFn overrides the clock in tests. Nil means time.Now.
	NowFn func() time.Time
}

// VisibleToast pairs a live toast instance with its notification content and
// the alert channels the user has enabled.
type VisibleToast struct {
	Toast        toasts.Instance            `json:"toast"`
	Notification notifications.Notification `json:"notification"`
	Sound        bool                       `json:"sound"`
	Vibration    bool                       `json:"vibration"`
}

// Session is one user's live notification engine: it seeds the store from
// durable history, ingests domain events from every configured source, gates
// them through preferences, schedules visible slots, and drives the toast
// lifecycle. All presentation queries read from it.
type Session struct {
	cfg        config.EngineConfig
	logg       *logger.Logger
	metrics    *metrics.EngineMetrics
	repo       notifications.Repository
	prefLoader PreferenceLoader
	readQueue  *notifications.ReadQueue
	sources    []ingest.Source
	nowFn      func() time.Time

	store      *notifications.Store
	controller *toasts.Controller
	adapter    *ingest.Adapter

	// planMu serializes scheduling passes end to end. The visible-set
	// snapshot and the admissions planned from it must not interleave, or
	// two concurrent ingests can both fill the same free slot.
	planMu sync.Mutex

	mu       sync.Mutex
	userID   uuid.UUID
	prefs    preferences.Preferences
	pending  map[string]struct{}
	overflow int
	started  bool

	changed chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSession wires a session from its collaborators. Start must be called
// before the session ingests or presents anything.
func NewSession(deps Deps) (*Session, error) {
	if deps.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if deps.Mappers == nil {
		deps.Mappers = ingest.Mappers()
	}
	if deps.NowFn == nil {
		deps.NowFn = time.Now
	}

	s := &Session{
		cfg:        deps.Config,
		logg:       deps.Logger,
		metrics:    deps.Metrics,
		repo:       deps.Repo,
		prefLoader: deps.Prefs,
		readQueue:  deps.ReadQueue,
		sources:    deps.Sources,
		nowFn:      deps.NowFn,
		store:      notifications.NewStore(),
		prefs:      preferences.Defaults(),
		pending:    map[string]struct{}{},
		changed:    make(chan struct{}, 1),
	}

	controller, err := toasts.NewController(toasts.Config{
		TickInterval:     deps.Config.TickInterval,
		DefaultDuration:  deps.Config.ToastDuration,
		CriticalDuration: deps.Config.CriticalDuration,
		DismissThreshold: deps.Config.DismissThreshold,
		NowFn:            deps.NowFn,
	}, deps.Logger, deps.Metrics, s.onToastRemoved)
	if err != nil {
		return nil, err
	}
	s.controller = controller

	adapter, err := ingest.NewAdapter(s.store, deps.Mappers, ingest.RetryConfig{
		Attempts: deps.Config.SourceRetryAttempts,
		Base:     deps.Config.SourceRetryBase,
		Cap:      deps.Config.SourceRetryCap,
	}, deps.Logger, deps.Metrics, s.onIngested)
	if err != nil {
		return nil, err
	}
	s.adapter = adapter

	return s, nil
}

// Start seeds the store from durable history, loads preferences, and begins
// live ingestion and the toast tick loop for the given user.
func (s *Session) Start(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeStateConflict, "session already started")
	}
	s.started = true
	s.userID = userID
	s.mu.Unlock()

	logCtx := s.logg.WithUserID(ctx, userID.String())

	if s.prefLoader != nil {
		prefs, err := s.prefLoader.Load(ctx, userID.String())
		if err != nil {
			// Preferences default open; a flaky preference store must not
			// silence the session.
			s.logg.Error(logCtx, "loading preferences, falling back to defaults", err)
			prefs = preferences.Defaults()
		}
		s.mu.Lock()
		s.prefs = prefs
		s.mu.Unlock()
	}

	if s.repo != nil && s.readQueue != nil {
		// Replay deferred read marks before fetching history so the seed
		// reflects reads from the previous session.
		applied, err := s.readQueue.Drain(ctx, userID.String(), func(mark notifications.ReadMark) error {
			if mark.All {
				_, err := s.repo.MarkAllRead(ctx, userID, mark.ReadAt)
				return err
			}
			return s.repo.MarkRead(ctx, userID, mark.NotificationID, mark.ReadAt)
		})
		if err != nil {
			s.logg.Warn(logCtx, "replaying deferred read marks stopped early: "+err.Error())
		}
		if applied > 0 {
			s.logg.Info(s.logg.WithField(logCtx, "applied", applied), "deferred read marks replayed")
		}
	}

	if s.repo != nil {
		history, err := s.repo.FetchRecent(ctx, userID, s.cfg.SeedLimit)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seeding notification history")
		}
		s.store.Seed(history)
		s.logg.Info(s.logg.WithField(logCtx, "seeded", len(history)), "notification history seeded")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.controller.Run(runCtx)
	}()

	s.adapter.Start(runCtx, s.sources)
	s.logg.Info(s.logg.WithField(logCtx, "sources", len(s.sources)), "session started")
	return nil
}

// Stop cancels ingestion and the tick loop and waits for both to exit.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.started || s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.adapter.Wait()
	s.wg.Wait()

	var err error
	for _, health := range s.adapter.Health() {
		if health.State == enums.SourceStateDegraded {
			err = multierr.Append(err, pkgerrors.New(pkgerrors.CodeDependency, "source degraded: "+health.LastError))
		}
	}
	return err
}

// Changed delivers a coalesced signal whenever the presentable state moved:
// an ingest, a removal, a read-state change, or a rescheduling pass.
func (s *Session) Changed() <-chan struct{} {
	return s.changed
}

func (s *Session) signal() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// onIngested runs on an ingestion goroutine after the store accepted a new
// notification. Admission is gated here, against current preferences.
func (s *Session) onIngested(n *notifications.Notification) {
	now := s.nowFn()

	s.mu.Lock()
	admitted, reason := preferences.Admit(n, s.prefs, now)
	if admitted {
		s.pending[n.ID] = struct{}{}
	}
	s.mu.Unlock()

	if !admitted {
		ctx := s.logg.WithNotificationID(context.Background(), n.ID)
		s.logg.Debug(s.logg.WithField(ctx, "reason", string(reason)), "toast suppressed by preferences")
		s.persistNew(n)
		s.signal()
		return
	}

	s.persistNew(n)
	s.reschedule()
	s.signal()
}

// onToastRemoved runs outside the controller lock after a toast left the
// visible set, freeing a slot for the next overflow candidate.
func (s *Session) onToastRemoved(notificationID string, reason enums.RemovalReason) {
	s.mu.Lock()
	delete(s.pending, notificationID)
	s.mu.Unlock()

	s.reschedule()
	s.signal()
}

// reschedule runs one planning pass: visible toasts keep their slots, the
// best pending candidates fill the rest, the remainder becomes the overflow
// count.
func (s *Session) reschedule() {
	s.planMu.Lock()
	defer s.planMu.Unlock()

	now := s.nowFn()
	visible := s.controller.VisibleIDs()

	s.mu.Lock()
	candidates := make([]scheduler.Candidate, 0, len(s.pending))
	for id := range s.pending {
		n, ok := s.store.Get(id)
		if !ok {
			delete(s.pending, id)
			continue
		}
		if n.ExpiredAt(now) {
			// Expired offers never surface; drop them while still queued.
			delete(s.pending, id)
			continue
		}
		candidates = append(candidates, scheduler.Candidate{
			ID:        n.ID,
			Priority:  n.Priority,
			CreatedAt: n.CreatedAt,
		})
	}

	plan := scheduler.Next(visible, candidates, s.cfg.MaxVisible)
	for _, id := range plan.Admitted {
		delete(s.pending, id)
	}
	s.overflow = plan.Overflow
	s.mu.Unlock()

	for _, id := range plan.Admitted {
		n, ok := s.store.Get(id)
		if !ok {
			continue
		}
		if err := s.controller.Show(id, n.Priority, n.ExpiresAt, plan.Slots[id], now); err != nil {
			ctx := s.logg.WithNotificationID(context.Background(), id)
			s.logg.Warn(ctx, "admitting toast failed: "+err.Error())
		}
	}
	for id, slot := range plan.Slots {
		s.controller.SetSlot(id, slot)
	}
	s.metrics.SetOverflow(plan.Overflow)
}

// persistNew writes a live-ingested notification to durable storage in the
// background. The in-memory store is authoritative; persistence failures are
// logged, never rolled back.
func (s *Session) persistNew(n *notifications.Notification) {
	if s.repo == nil {
		return
	}
	s.persistAsync("persisting notification", func(ctx context.Context) error {
		return s.repo.Create(ctx, s.currentUserID(), n)
	})
}

func (s *Session) persistAsync(what string, op func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := retry.WithMaxRetries(s.cfg.PersistRetryAttempts,
			retry.NewExponential(s.cfg.PersistRetryBase))
		err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
			if err := op(ctx); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			s.logg.Error(context.Background(), what+" failed after retries", err)
		}
	}()
}

func (s *Session) currentUserID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// MarkAsRead marks one notification read. The local store answers
// immediately; durable storage catches up in the background.
func (s *Session) MarkAsRead(ctx context.Context, notificationID string) bool {
	now := s.nowFn()
	changed := s.store.MarkRead(notificationID, now)
	if changed {
		s.persistReadMark(notifications.ReadMark{NotificationID: notificationID, ReadAt: now})
		s.signal()
	}
	return changed
}

// MarkAllAsRead marks every stored notification read in one step.
func (s *Session) MarkAllAsRead(ctx context.Context) int {
	now := s.nowFn()
	ids := s.store.MarkAllRead(now)
	if len(ids) > 0 {
		s.persistReadMark(notifications.ReadMark{All: true, ReadAt: now})
		s.signal()
	}
	return len(ids)
}

// persistReadMark reconciles one read-state mutation with durable storage.
// Exhausted retries defer the mark to the replay queue instead of rolling
// back the local store.
func (s *Session) persistReadMark(mark notifications.ReadMark) {
	if s.repo == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		userID := s.currentUserID()
		backoff := retry.WithMaxRetries(s.cfg.PersistRetryAttempts,
			retry.NewExponential(s.cfg.PersistRetryBase))
		err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
			var opErr error
			if mark.All {
				_, opErr = s.repo.MarkAllRead(ctx, userID, mark.ReadAt)
			} else {
				opErr = s.repo.MarkRead(ctx, userID, mark.NotificationID, mark.ReadAt)
			}
			if opErr != nil {
				return retry.RetryableError(opErr)
			}
			return nil
		})
		if err == nil {
			return
		}
		logCtx := s.logg.WithUserID(context.Background(), userID.String())
		s.logg.Error(logCtx, "persisting read state failed after retries", err)
		if s.readQueue != nil {
			if qErr := s.readQueue.Enqueue(context.Background(), userID.String(), mark); qErr != nil {
				s.logg.Error(logCtx, "deferring read mark for replay failed", qErr)
			}
		}
	}()
}

// AcceptOffer resolves an offer toast's primary action and returns the
// action to invoke. The deadline is re-validated at the moment of acceptance;
// a stale tap on an expired offer loses.
func (s *Session) AcceptOffer(ctx context.Context, notificationID string) (*notifications.Action, error) {
	now := s.nowFn()
	n, ok := s.store.Get(notificationID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	if !n.IsOffer() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification carries no deadline")
	}
	if err := s.controller.Accept(notificationID, now); err != nil {
		return nil, err
	}
	s.store.MarkRead(notificationID, now)
	return n.Action, nil
}

// Dismiss closes a visible toast by user choice. The notification stays in
// the store.
func (s *Session) Dismiss(notificationID string) {
	s.controller.Dismiss(notificationID, enums.RemovalReasonDismissed)
}

// SetInteracting pauses or resumes a toast's countdown during a touch.
func (s *Session) SetInteracting(notificationID string, interacting bool) {
	s.controller.SetInteracting(notificationID, interacting)
}

// EndDrag resolves a dismissal gesture and reports whether it dismissed.
func (s *Session) EndDrag(notificationID string, distance float64) bool {
	return s.controller.EndDrag(notificationID, distance)
}

// SetPreferences replaces the session's gating preferences. Already-visible
// toasts are left alone; the new rules apply from the next admission on.
func (s *Session) SetPreferences(prefs preferences.Preferences) {
	s.mu.Lock()
	s.prefs = prefs
	s.mu.Unlock()
	s.reschedule()
	s.signal()
}

// Preferences returns the gating preferences currently in effect.
func (s *Session) Preferences() preferences.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// VisibleToasts returns the current visible set in slot order, each paired
// with its content and the enabled alert channels.
func (s *Session) VisibleToasts() []VisibleToast {
	s.mu.Lock()
	sound := s.prefs.Sound
	vibration := s.prefs.Vibration
	s.mu.Unlock()

	instances := s.controller.Visible()
	out := make([]VisibleToast, 0, len(instances))
	for _, inst := range instances {
		n, ok := s.store.Get(inst.NotificationID)
		if !ok {
			continue
		}
		out = append(out, VisibleToast{
			Toast:        inst,
			Notification: *n,
			Sound:        sound,
			Vibration:    vibration,
		})
	}
	return out
}

// UnreadCount returns the badge count.
func (s *Session) UnreadCount() int {
	return s.store.UnreadCount()
}

// GroupedList returns the archived list bucketed by recency.
func (s *Session) GroupedList() []notifications.Group {
	return s.store.GroupedList(s.nowFn())
}

// List returns every stored notification, newest first.
func (s *Session) List() []notifications.Notification {
	return s.store.List()
}

// OverflowCount returns how many admitted candidates are waiting for a slot.
func (s *Session) OverflowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflow
}

// SourceHealth returns per-source ingestion diagnostics.
func (s *Session) SourceHealth() map[string]ingest.SourceHealth {
	return s.adapter.Health()
}
