package engine

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/velora-notify/internal/ingest"
	"github.com/angelmondragon/velora-notify/internal/notifications"
	"github.com/angelmondragon/velora-notify/internal/preferences"
	"github.com/angelmondragon/velora-notify/pkg/config"
	"github.com/angelmondragon/velora-notify/pkg/enums"
	pkgerrors "github.com/angelmondragon/velora-notify/pkg/errors"
	"github.com/angelmondragon/velora-notify/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu          sync.Mutex
	history     []notifications.Notification
	created     []string
	markedRead  []string
	markedAll   int
	fetchErr    error
	fetchRecent func(ctx context.Context, userID uuid.UUID, limit int) ([]notifications.Notification, error)
}

func (f *fakeRepo) FetchRecent(ctx context.Context, userID uuid.UUID, limit int) ([]notifications.Notification, error) {
	if f.fetchRecent != nil {
		return f.fetchRecent(ctx, userID, limit)
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.history, nil
}

func (f *fakeRepo) Create(ctx context.Context, userID uuid.UUID, n *notifications.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, n.ID)
	return nil
}

func (f *fakeRepo) MarkRead(ctx context.Context, userID uuid.UUID, notificationID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, notificationID)
	return nil
}

func (f *fakeRepo) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedAll++
	return 0, nil
}

func (f *fakeRepo) createdIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

type fakePrefs struct {
	prefs preferences.Preferences
	err   error
}

func (f *fakePrefs) Load(ctx context.Context, userID string) (preferences.Preferences, error) {
	return f.prefs, f.err
}

// staticSource delivers its fixed events in order, then stops cleanly.
type staticSource struct {
	name   string
	events [][]byte
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Run(ctx context.Context, deliver func(ctx context.Context, data []byte)) error {
	for _, data := range s.events {
		deliver(ctx, data)
	}
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MaxVisible:       3,
		TickInterval:     100 * time.Millisecond,
		ToastDuration:    time.Hour,
		CriticalDuration: time.Hour,
		DismissThreshold: 120,
		SeedLimit:        100,

		PersistRetryAttempts: 1,
		PersistRetryBase:     time.Millisecond,
		SourceRetryAttempts:  1,
		SourceRetryBase:      time.Millisecond,
		SourceRetryCap:       5 * time.Millisecond,
	}
}

// rawEvent mappers interpret the status string directly as a priority, which
// keeps scheduling tests independent of real source vocabularies.
func rawMapper(evt ingest.DomainEvent) (*notifications.Notification, error) {
	priority, err := enums.ParsePriority(evt.NewStatus)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parsing priority")
	}
	return &notifications.Notification{
		ID:        evt.EventID,
		Category:  enums.CategorySystem,
		Priority:  priority,
		Title:     evt.EventID,
		Message:   "raw",
		CreatedAt: evt.Timestamp,
	}, nil
}

func rawEvent(t *testing.T, id, priority string, ts time.Time) []byte {
	t.Helper()
	data, err := json.Marshal(ingest.DomainEvent{
		EventID:   id,
		EntityID:  id,
		NewStatus: priority,
		Timestamp: ts,
	})
	require.NoError(t, err)
	return data
}

func bookingOffer(t *testing.T, id string, ts, expiresAt time.Time) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"expiresAt":      expiresAt,
		"distanceKm":     "1.2",
		"estimatedPrice": "8.00",
	})
	require.NoError(t, err)
	data, err := json.Marshal(ingest.DomainEvent{
		EventID:   id,
		EntityID:  id,
		NewStatus: "offer_dispatched",
		Timestamp: ts,
		Payload:   payload,
	})
	require.NoError(t, err)
	return data
}

func newTestSession(t *testing.T, mutate func(*Deps)) (*Session, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	deps := Deps{
		Config: testEngineConfig(),
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Mappers: map[string]ingest.Mapper{
			"raw":      rawMapper,
			"bookings": ingest.Mappers()["bookings"],
		},
		NowFn: clock.Now,
	}
	if mutate != nil {
		mutate(&deps)
	}
	session, err := NewSession(deps)
	require.NoError(t, err)
	return session, clock
}

// startAndDrain starts the session and waits for every static source to
// finish delivering, so assertions see a settled state.
func startAndDrain(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Start(context.Background(), uuid.New()))
	require.NoError(t, s.Stop())
}

func TestSeededHistoryNeverToasts(t *testing.T) {
	read := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepo{history: []notifications.Notification{
		{ID: "h-1", Category: enums.CategoryDelivery, Priority: enums.PriorityNormal, Title: "old", Message: "m", CreatedAt: read, ReadAt: &read},
		{ID: "h-2", Category: enums.CategoryChat, Priority: enums.PriorityHigh, Title: "older", Message: "m", CreatedAt: read},
	}}
	s, _ := newTestSession(t, func(d *Deps) { d.Repo = repo })

	startAndDrain(t, s)

	require.Empty(t, s.VisibleToasts())
	require.Equal(t, 1, s.UnreadCount())
	require.Len(t, s.List(), 2)
}

func TestSeedFailureAbortsStart(t *testing.T) {
	repo := &fakeRepo{fetchErr: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	s, _ := newTestSession(t, func(d *Deps) { d.Repo = repo })

	err := s.Start(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestLiveEventBecomesVisibleToast(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s, _ := newTestSession(t, func(d *Deps) {
		d.Sources = []ingest.Source{&staticSource{name: "raw", events: [][]byte{
			rawEvent(t, "n-1", "normal", now),
		}}}
	})

	startAndDrain(t, s)

	visible := s.VisibleToasts()
	require.Len(t, visible, 1)
	require.Equal(t, "n-1", visible[0].Notification.ID)
	require.Equal(t, enums.ToastStateCounting, visible[0].Toast.State)
	require.True(t, visible[0].Sound)
	require.True(t, visible[0].Vibration)
	require.Equal(t, 1, s.UnreadCount())
}

func TestVisibleSetCappedWithOverflow(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	events := make([][]byte, 0, 6)
	for i, priority := range []string{"low", "urgent", "normal", "high", "normal", "normal"} {
		events = append(events, rawEvent(t, []string{"a", "b", "c", "d", "e", "f"}[i], priority, base.Add(time.Duration(i)*time.Second)))
	}
	s, _ := newTestSession(t, func(d *Deps) {
		d.Sources = []ingest.Source{&staticSource{name: "raw", events: events}}
	})

	startAndDrain(t, s)

	// early arrivals keep their slots; later, higher-priority traffic waits
	require.Len(t, s.VisibleToasts(), 3)
	require.Equal(t, 3, s.OverflowCount())
	require.Equal(t, 6, s.UnreadCount())
}

func TestDismissFreesSlotForOverflowCandidate(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	events := [][]byte{
		rawEvent(t, "a", "normal", base),
		rawEvent(t, "b", "normal", base.Add(time.Second)),
		rawEvent(t, "c", "normal", base.Add(2*time.Second)),
		rawEvent(t, "d", "urgent", base.Add(3*time.Second)),
	}
	s, _ := newTestSession(t, func(d *Deps) {
		d.Sources = []ingest.Source{&staticSource{name: "raw", events: events}}
	})

	startAndDrain(t, s)
	require.Equal(t, 1, s.OverflowCount())

	s.Dismiss("a")

	visible := s.VisibleToasts()
	require.Len(t, visible, 3)
	ids := make([]string, 0, 3)
	for _, v := range visible {
		ids = append(ids, v.Notification.ID)
	}
	require.Contains(t, ids, "d")
	require.Equal(t, 0, s.OverflowCount())
}

func TestDisabledPreferencesStoreButSuppress(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	prefs := preferences.Defaults()
	prefs.Enabled = false
	s, _ := newTestSession(t, func(d *Deps) {
		d.Prefs = &fakePrefs{prefs: prefs}
		d.Sources = []ingest.Source{&staticSource{name: "raw", events: [][]byte{
			rawEvent(t, "n-1", "urgent", now),
		}}}
	})

	startAndDrain(t, s)

	require.Empty(t, s.VisibleToasts())
	require.Equal(t, 1, s.UnreadCount())
	require.Len(t, s.List(), 1)
}

func TestPriorityOnlyModeFiltersBelowHigh(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	prefs := preferences.Defaults()
	prefs.PriorityOnly = true
	s, _ := newTestSession(t, func(d *Deps) {
		d.Prefs = &fakePrefs{prefs: prefs}
		d.Sources = []ingest.Source{&staticSource{name: "raw", events: [][]byte{
			rawEvent(t, "quiet", "normal", now),
			rawEvent(t, "loud", "urgent", now.Add(time.Second)),
		}}}
	})

	startAndDrain(t, s)

	visible := s.VisibleToasts()
	require.Len(t, visible, 1)
	require.Equal(t, "loud", visible[0].Notification.ID)
}

func TestQuietHoursSuppressAllButUrgent(t *testing.T) {
	night := time.Date(2026, 8, 30, 23, 30, 0, 0, time.UTC)
	prefs := preferences.Defaults()
	prefs.QuietHours = preferences.QuietHours{Enabled: true, Start: "22:00", End: "07:00"}
	s, _ := newTestSession(t, func(d *Deps) {
		d.Prefs = &fakePrefs{prefs: prefs}
		d.NowFn = func() time.Time { return night }
		d.Sources = []ingest.Source{&staticSource{name: "raw", events: [][]byte{
			rawEvent(t, "calm", "high", night),
			rawEvent(t, "alarm", "urgent", night.Add(time.Second)),
		}}}
	})

	startAndDrain(t, s)

	visible := s.VisibleToasts()
	require.Len(t, visible, 1)
	require.Equal(t, "alarm", visible[0].Notification.ID)
}

func TestPreferenceLoadFailureFallsBackToDefaults(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s, _ := newTestSession(t, func(d *Deps) {
		d.Prefs = &fakePrefs{err: pkgerrors.New(pkgerrors.CodeDependency, "redis down")}
		d.Sources = []ingest.Source{&staticSource{name: "raw", events: [][]byte{
			rawEvent(t, "n-1", "normal", now),
		}}}
	})

	startAndDrain(t, s)
	require.Len(t, s.VisibleToasts(), 1)
}

func TestMarkAsReadUpdatesBadgeAndPersists(t *testing.T) {
	read := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepo{history: []notifications.Notification{
		{ID: "h-1", Category: enums.CategoryDelivery, Priority: enums.PriorityNormal, Title: "t", Message: "m", CreatedAt: read},
	}}
	s, _ := newTestSession(t, func(d *Deps) { d.Repo = repo })
	require.NoError(t, s.Start(context.Background(), uuid.New()))

	require.True(t, s.MarkAsRead(context.Background(), "h-1"))
	require.False(t, s.MarkAsRead(context.Background(), "h-1"), "second mark is a no-op")
	require.Equal(t, 0, s.UnreadCount())

	require.NoError(t, s.Stop())
	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Equal(t, []string{"h-1"}, repo.markedRead)
}

func TestMarkAllAsReadReturnsChangedCount(t *testing.T) {
	created := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepo{history: []notifications.Notification{
		{ID: "h-1", Category: enums.CategoryDelivery, Priority: enums.PriorityNormal, Title: "t", Message: "m", CreatedAt: created},
		{ID: "h-2", Category: enums.CategoryChat, Priority: enums.PriorityNormal, Title: "t", Message: "m", CreatedAt: created},
	}}
	s, _ := newTestSession(t, func(d *Deps) { d.Repo = repo })
	require.NoError(t, s.Start(context.Background(), uuid.New()))

	require.Equal(t, 2, s.MarkAllAsRead(context.Background()))
	require.Equal(t, 0, s.MarkAllAsRead(context.Background()))
	require.Equal(t, 0, s.UnreadCount())

	require.NoError(t, s.Stop())
	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Equal(t, 1, repo.markedAll)
}

func TestLiveIngestPersistsInBackground(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{}
	s, _ := newTestSession(t, func(d *Deps) {
		d.Repo = repo
		d.Sources = []ingest.Source{&staticSource{name: "raw", events: [][]byte{
			rawEvent(t, "n-1", "normal", now),
		}}}
	})

	startAndDrain(t, s)
	require.Equal(t, []string{"n-1"}, repo.createdIDs())
}

func TestAcceptOfferWithinDeadline(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s, _ := newTestSession(t, func(d *Deps) {
		d.Sources = []ingest.Source{&staticSource{name: "bookings", events: [][]byte{
			bookingOffer(t, "offer-1", now, now.Add(30*time.Second)),
		}}}
	})

	startAndDrain(t, s)
	require.Len(t, s.VisibleToasts(), 1)

	action, err := s.AcceptOffer(context.Background(), "offer-1")
	require.NoError(t, err)
	require.Equal(t, "Accept", action.Label)
	require.Equal(t, "/bookings/offer-1", action.Target)

	require.Empty(t, s.VisibleToasts())
	require.Equal(t, 0, s.UnreadCount(), "acceptance marks the notification read")
}

func TestAcceptOfferRejectedAfterDeadline(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s, clock := newTestSession(t, func(d *Deps) {
		d.Sources = []ingest.Source{&staticSource{name: "bookings", events: [][]byte{
			bookingOffer(t, "offer-1", now, now.Add(30*time.Second)),
		}}}
	})

	startAndDrain(t, s)
	clock.Advance(31 * time.Second)

	_, err := s.AcceptOffer(context.Background(), "offer-1")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeExpired))
	require.Empty(t, s.VisibleToasts())
}

func TestAcceptOfferUnknownNotification(t *testing.T) {
	s, _ := newTestSession(t, nil)
	startAndDrain(t, s)

	_, err := s.AcceptOffer(context.Background(), "ghost")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDragGestureDelegation(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s, _ := newTestSession(t, func(d *Deps) {
		d.Sources = []ingest.Source{&staticSource{name: "raw", events: [][]byte{
			rawEvent(t, "n-1", "normal", now),
		}}}
	})
	startAndDrain(t, s)

	s.SetInteracting("n-1", true)
	require.False(t, s.EndDrag("n-1", 40))
	require.Len(t, s.VisibleToasts(), 1)

	require.True(t, s.EndDrag("n-1", 200))
	require.Empty(t, s.VisibleToasts())
}

func TestSetPreferencesAppliesToSubsequentAdmissions(t *testing.T) {
	s, _ := newTestSession(t, nil)
	startAndDrain(t, s)

	prefs := preferences.Defaults()
	prefs.Enabled = false
	s.SetPreferences(prefs)
	require.False(t, s.Preferences().Enabled)
}

func TestConcurrentIngestNeverExceedsVisibleCap(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	cfg := testEngineConfig()
	cfg.MaxVisible = 1

	for trial := 0; trial < 500; trial++ {
		s, _ := newTestSession(t, func(d *Deps) { d.Config = cfg })

		batch := make([]*notifications.Notification, 4)
		for i := range batch {
			batch[i] = &notifications.Notification{
				ID:        uuid.NewString(),
				Category:  enums.CategorySystem,
				Priority:  enums.PriorityNormal,
				Title:     "t",
				Message:   "m",
				CreatedAt: now.Add(time.Duration(i) * time.Second),
			}
			require.NoError(t, s.store.Insert(batch[i]))
		}

		var wg sync.WaitGroup
		for _, n := range batch {
			wg.Add(1)
			go func(n *notifications.Notification) {
				defer wg.Done()
				s.onIngested(n)
			}(n)
		}
		wg.Wait()

		visible := s.VisibleToasts()
		require.LessOrEqual(t, len(visible), 1, "trial %d admitted past the cap", trial)
		require.Equal(t, 3, s.OverflowCount())
	}
}

func TestStartTwiceRejected(t *testing.T) {
	s, _ := newTestSession(t, nil)
	require.NoError(t, s.Start(context.Background(), uuid.New()))
	err := s.Start(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.NoError(t, s.Stop())
}

func TestGroupedListBucketsByRecency(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{history: []notifications.Notification{
		{ID: "today", Category: enums.CategorySystem, Priority: enums.PriorityNormal, Title: "t", Message: "m", CreatedAt: now.Add(-time.Hour)},
		{ID: "yesterday", Category: enums.CategorySystem, Priority: enums.PriorityNormal, Title: "t", Message: "m", CreatedAt: now.Add(-26 * time.Hour)},
		{ID: "older", Category: enums.CategorySystem, Priority: enums.PriorityNormal, Title: "t", Message: "m", CreatedAt: now.Add(-30 * 24 * time.Hour)},
	}}
	s, _ := newTestSession(t, func(d *Deps) { d.Repo = repo })
	startAndDrain(t, s)

	groups := s.GroupedList()
	require.Len(t, groups, 3)
	require.Equal(t, notifications.BucketToday, groups[0].Bucket)
	require.Equal(t, "today", groups[0].Items[0].ID)
	require.Equal(t, notifications.BucketYesterday, groups[1].Bucket)
	require.Equal(t, notifications.BucketOlder, groups[2].Bucket)
}
