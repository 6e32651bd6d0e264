package notifications

import (
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/velora-notify/pkg/enums"
	pkgerrors "github.com/angelmondragon/velora-notify/pkg/errors"
	"github.com/stretchr/testify/require"
)

func testNotification(id string, createdAt time.Time) *Notification {
	return &Notification{
		ID:        id,
		Category:  enums.CategoryDelivery,
		Priority:  enums.PriorityNormal,
		Title:     "Order update",
		Message:   "Your order is on the way",
		CreatedAt: createdAt,
	}
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	store := NewStore()
	now := time.Now()

	require.NoError(t, store.Insert(testNotification("n-1", now)))
	err := store.Insert(testNotification("n-1", now.Add(time.Minute)))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicate))

	require.Equal(t, 1, store.Len())
	require.Equal(t, 1, store.UnreadCount())
}

func TestInsertRejectsMalformedNotifications(t *testing.T) {
	store := NewStore()
	now := time.Now()

	missingID := testNotification("", now)
	require.True(t, pkgerrors.IsCode(store.Insert(missingID), pkgerrors.CodeValidation))

	badCategory := testNotification("n-1", now)
	badCategory.Category = enums.Category("escrow")
	require.True(t, pkgerrors.IsCode(store.Insert(badCategory), pkgerrors.CodeValidation))

	badPriority := testNotification("n-2", now)
	badPriority.Priority = enums.Priority("critical")
	require.True(t, pkgerrors.IsCode(store.Insert(badPriority), pkgerrors.CodeValidation))

	noTimestamp := testNotification("n-3", time.Time{})
	require.True(t, pkgerrors.IsCode(store.Insert(noTimestamp), pkgerrors.CodeValidation))

	require.Equal(t, 0, store.Len())
}

func TestUnreadCountInvariantAcrossMutations(t *testing.T) {
	store := NewStore()
	now := time.Now()

	check := func() {
		t.Helper()
		unread := 0
		for _, n := range store.List() {
			if !n.IsRead() {
				unread++
			}
		}
		require.Equal(t, unread, store.UnreadCount())
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Insert(testNotification(fmt.Sprintf("n-%d", i), now.Add(time.Duration(i)*time.Second))))
		check()
	}

	store.MarkRead("n-2", now)
	check()
	store.MarkRead("n-2", now) // idempotent
	check()
	store.MarkRead("missing", now)
	check()

	store.MarkAllRead(now)
	check()
	require.Equal(t, 0, store.UnreadCount())

	require.NoError(t, store.Insert(testNotification("n-after", now.Add(time.Minute))))
	check()
	require.Equal(t, 1, store.UnreadCount())
}

func TestMarkReadIsIdempotent(t *testing.T) {
	store := NewStore()
	now := time.Now()
	require.NoError(t, store.Insert(testNotification("n-1", now)))

	require.True(t, store.MarkRead("n-1", now))
	require.False(t, store.MarkRead("n-1", now))
	require.False(t, store.MarkRead("does-not-exist", now))
	require.Equal(t, 0, store.UnreadCount())
}

func TestMarkAllReadReturnsChangedIDsOnly(t *testing.T) {
	store := NewStore()
	now := time.Now()
	require.NoError(t, store.Insert(testNotification("n-1", now)))
	require.NoError(t, store.Insert(testNotification("n-2", now)))
	store.MarkRead("n-1", now)

	changed := store.MarkAllRead(now)
	require.Equal(t, []string{"n-2"}, changed)

	require.Empty(t, store.MarkAllRead(now))
}

func TestSeedSkipsDuplicates(t *testing.T) {
	store := NewStore()
	now := time.Now()
	read := now.Add(-time.Hour)

	seed := []Notification{
		*testNotification("n-1", now.Add(-2*time.Hour)),
		*testNotification("n-1", now.Add(-2*time.Hour)),
		*testNotification("n-2", now.Add(-time.Hour)),
	}
	seed[2].ReadAt = &read

	store.Seed(seed)
	require.Equal(t, 2, store.Len())
	require.Equal(t, 1, store.UnreadCount())
}

func TestListNewestFirst(t *testing.T) {
	store := NewStore()
	base := time.Now()
	require.NoError(t, store.Insert(testNotification("old", base.Add(-time.Hour))))
	require.NoError(t, store.Insert(testNotification("new", base)))
	require.NoError(t, store.Insert(testNotification("mid", base.Add(-time.Minute))))

	list := store.List()
	require.Equal(t, "new", list[0].ID)
	require.Equal(t, "mid", list[1].ID)
	require.Equal(t, "old", list[2].ID)
}

func TestGroupedListBuckets(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(testNotification("today", now.Add(-time.Hour))))
	require.NoError(t, store.Insert(testNotification("yesterday", now.Add(-24*time.Hour))))
	require.NoError(t, store.Insert(testNotification("this-week", now.Add(-4*24*time.Hour))))
	require.NoError(t, store.Insert(testNotification("older", now.Add(-30*24*time.Hour))))

	groups := store.GroupedList(now)
	require.Len(t, groups, 4)
	require.Equal(t, BucketToday, groups[0].Bucket)
	require.Equal(t, "today", groups[0].Items[0].ID)
	require.Equal(t, BucketYesterday, groups[1].Bucket)
	require.Equal(t, BucketThisWeek, groups[2].Bucket)
	require.Equal(t, BucketOlder, groups[3].Bucket)
}

func TestGroupedListOmitsEmptyBuckets(t *testing.T) {
	store := NewStore()
	now := time.Now()
	require.NoError(t, store.Insert(testNotification("only", now)))

	groups := store.GroupedList(now)
	require.Len(t, groups, 1)
	require.Equal(t, BucketToday, groups[0].Bucket)
}

func TestGetReturnsCopy(t *testing.T) {
	store := NewStore()
	now := time.Now()
	original := testNotification("n-1", now)
	original.Metadata = map[string]string{"orderId": "o-1"}
	require.NoError(t, store.Insert(original))

	copy1, ok := store.Get("n-1")
	require.True(t, ok)
	copy1.Title = "mutated"
	copy1.Metadata["orderId"] = "hacked"

	copy2, _ := store.Get("n-1")
	require.Equal(t, "Order update", copy2.Title)
	require.Equal(t, "o-1", copy2.Metadata["orderId"])
}
