package notifications

import (
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/velora-notify/pkg/enums"
	pkgerrors "github.com/angelmondragon/velora-notify/pkg/errors"
)

// Bucket labels a recency group in the archived list.
type Bucket string

const (
	BucketToday     Bucket = "today"
	BucketYesterday Bucket = "yesterday"
	BucketThisWeek  Bucket = "this-week"
	BucketOlder     Bucket = "older"
)

var bucketOrder = []Bucket{BucketToday, BucketYesterday, BucketThisWeek, BucketOlder}

// Group is one recency bucket of the archived list, newest first within.
type Group struct {
	Bucket Bucket         `json:"bucket"`
	Items  []Notification `json:"items"`
}

// Store is the single source of truth for the session's notifications. All
// mutation is serialized behind one mutex so ingestion callbacks arriving on
// different goroutines preserve the single-writer guarantee.
type Store struct {
	mu     sync.Mutex
	byID   map[string]*Notification
	order  []string // insertion order, ids
	unread int
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{byID: map[string]*Notification{}}
}

// Insert adds a normalized notification. Re-inserting a present id is
// rejected with CodeDuplicate and leaves state untouched; structural problems
// are rejected with CodeValidation. Neither mutates the store.
func (s *Store) Insert(n *Notification) error {
	if n == nil || n.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	if !n.Category.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown category")
	}
	if !n.Priority.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown priority")
	}
	if n.CreatedAt.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "created timestamp required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[n.ID]; exists {
		return pkgerrors.New(pkgerrors.CodeDuplicate, "notification already ingested")
	}

	stored := n.clone()
	s.byID[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	if !stored.IsRead() {
		s.unread++
	}
	return nil
}

// Seed loads previously persisted notifications before live ingestion
// begins. Duplicates within the seed are skipped.
func (s *Store) Seed(items []Notification) {
	for i := range items {
		_ = s.Insert(&items[i])
	}
}

// Get returns a copy of the stored notification.
func (s *Store) Get(id string) (*Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return n.clone(), true
}

// MarkRead marks the notification read at the given instant. Marking an
// already-read or unknown notification is a no-op; the return value reports
// whether state changed.
func (s *Store) MarkRead(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok || n.IsRead() {
		return false
	}
	read := now
	n.ReadAt = &read
	s.unread--
	return true
}

// MarkAllRead marks every current notification read in one step and returns
// the ids that changed. Notifications inserted afterwards are unaffected.
func (s *Store) MarkAllRead(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := make([]string, 0, s.unread)
	for _, id := range s.order {
		n := s.byID[id]
		if n.IsRead() {
			continue
		}
		read := now
		n.ReadAt = &read
		changed = append(changed, id)
	}
	s.unread = 0
	return changed
}

// UnreadCount returns the number of notifications not yet marked read.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Len returns the number of stored notifications.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// List returns copies of all notifications, newest first.
func (s *Store) List() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Unread returns copies of all unread notifications, newest first.
func (s *Store) Unread() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.snapshotLocked()
	unread := all[:0]
	for i := range all {
		if !all[i].IsRead() {
			unread = append(unread, all[i])
		}
	}
	return unread
}

// GroupedList buckets all notifications by recency relative to now. Empty
// buckets are omitted; items stay newest first within each bucket.
func (s *Store) GroupedList(now time.Time) []Group {
	all := s.List()

	byBucket := map[Bucket][]Notification{}
	for i := range all {
		bucket := bucketFor(all[i].CreatedAt, now)
		byBucket[bucket] = append(byBucket[bucket], all[i])
	}

	groups := make([]Group, 0, len(byBucket))
	for _, bucket := range bucketOrder {
		if items, ok := byBucket[bucket]; ok {
			groups = append(groups, Group{Bucket: bucket, Items: items})
		}
	}
	return groups
}

// CountByCategory returns how many notifications each category holds.
func (s *Store) CountByCategory() map[enums.Category]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[enums.Category]int{}
	for _, n := range s.byID {
		counts[n.Category]++
	}
	return counts
}

func (s *Store) snapshotLocked() []Notification {
	out := make([]Notification, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id].clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func bucketFor(createdAt, now time.Time) Bucket {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch {
	case !createdAt.Before(dayStart):
		return BucketToday
	case !createdAt.Before(dayStart.AddDate(0, 0, -1)):
		return BucketYesterday
	case !createdAt.Before(dayStart.AddDate(0, 0, -6)):
		return BucketThisWeek
	default:
		return BucketOlder
	}
}
