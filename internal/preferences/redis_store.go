package preferences

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/velora-notify/pkg/enums"
	pkgerrors "github.com/angelmondragon/velora-notify/pkg/errors"
	"github.com/angelmondragon/velora-notify/pkg/redis"
)

type kv interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	PreferenceKey(userID string) string
}

// RedisStore loads and saves per-user preferences as JSON blobs in redis.
type RedisStore struct {
	client kv
}

// NewRedisStore wires the preference collaborator.
func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "redis client required")
	}
	return &RedisStore{client: client}, nil
}

func newRedisStoreWithKV(client kv) *RedisStore {
	return &RedisStore{client: client}
}

// Load returns the user's saved preferences, or defaults when none exist.
func (s *RedisStore) Load(ctx context.Context, userID string) (Preferences, error) {
	if userID == "" {
		return Preferences{}, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	raw, err := s.client.Get(ctx, s.client.PreferenceKey(userID))
	if err != nil {
		if redis.IsNil(err) {
			return Defaults(), nil
		}
		return Preferences{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading preferences")
	}

	var prefs Preferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		// A corrupt blob should not lock the user out of notifications.
		return Defaults(), nil
	}
	return prefs, nil
}

// Save persists the full preference document.
func (s *RedisStore) Save(ctx context.Context, userID string, prefs Preferences) error {
	if userID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	raw, err := json.Marshal(prefs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding preferences")
	}
	if err := s.client.Set(ctx, s.client.PreferenceKey(userID), string(raw), 0); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving preferences")
	}
	return nil
}

// SetEnabled flips the master switch and persists the document.
func (s *RedisStore) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	return s.update(ctx, userID, func(p *Preferences) {
		p.Enabled = enabled
	})
}

// SetPriorityOnly toggles priority-only mode and persists the document.
func (s *RedisStore) SetPriorityOnly(ctx context.Context, userID string, on bool) error {
	return s.update(ctx, userID, func(p *Preferences) {
		p.PriorityOnly = on
	})
}

// SetCategory toggles a single category and persists the document.
func (s *RedisStore) SetCategory(ctx context.Context, userID string, category enums.Category, enabled bool) error {
	if !category.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown category")
	}
	return s.update(ctx, userID, func(p *Preferences) {
		if p.CategoryEnabled == nil {
			p.CategoryEnabled = map[enums.Category]bool{}
		}
		p.CategoryEnabled[category] = enabled
	})
}

// SetQuietHours replaces the quiet-hours window and persists the document.
func (s *RedisStore) SetQuietHours(ctx context.Context, userID string, window QuietHours) error {
	if window.Enabled {
		if _, err := parseMinutes(window.Start); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "quiet hours start")
		}
		if _, err := parseMinutes(window.End); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "quiet hours end")
		}
	}
	return s.update(ctx, userID, func(p *Preferences) {
		p.QuietHours = window
	})
}

func (s *RedisStore) update(ctx context.Context, userID string, mutate func(*Preferences)) error {
	prefs, err := s.Load(ctx, userID)
	if err != nil {
		return err
	}
	mutate(&prefs)
	return s.Save(ctx, userID, prefs)
}
