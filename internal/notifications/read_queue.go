package notifications

import (
	"context"
	"encoding/json"
	"time"

	pkgerrors "github.com/angelmondragon/velora-notify/pkg/errors"
	"github.com/angelmondragon/velora-notify/pkg/redis"
)

type readQueueKV interface {
	RPush(ctx context.Context, key string, values ...any) error
	LPop(ctx context.Context, key string) (string, error)
	LLen(ctx context.Context, key string) (int64, error)
	ReadQueueKey(userID string) string
}

// ReadMark is one deferred read-state write. All marks every notification the
// user held at ReadAt; otherwise the mark targets a single id.
type ReadMark struct {
	NotificationID string    `json:"notificationId,omitempty"`
	All            bool      `json:"all,omitempty"`
	ReadAt         time.Time `json:"readAt"`
}

// ReadQueue is a write-behind buffer for read-state mutations that could not
// reach durable storage. Marks are replayed in order on the next session
// start, so the local store can stay authoritative without losing writes.
type ReadQueue struct {
	client readQueueKV
}

// NewReadQueue wires the queue on the shared redis client.
func NewReadQueue(client *redis.Client) (*ReadQueue, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "redis client required")
	}
	return &ReadQueue{client: client}, nil
}

func newReadQueueWithKV(client readQueueKV) *ReadQueue {
	return &ReadQueue{client: client}
}

// Enqueue appends one mark to the user's replay queue.
func (q *ReadQueue) Enqueue(ctx context.Context, userID string, mark ReadMark) error {
	if userID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	raw, err := json.Marshal(mark)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding read mark")
	}
	if err := q.client.RPush(ctx, q.client.ReadQueueKey(userID), string(raw)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queueing read mark")
	}
	return nil
}

// Drain pops queued marks in order and applies each. A failing apply pushes
// the mark back and stops, so nothing is lost across a flaky replay. Corrupt
// entries are discarded. Returns how many marks were applied.
func (q *ReadQueue) Drain(ctx context.Context, userID string, apply func(ReadMark) error) (int, error) {
	if userID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	key := q.client.ReadQueueKey(userID)
	applied := 0
	for {
		raw, err := q.client.LPop(ctx, key)
		if err != nil {
			if redis.IsNil(err) {
				return applied, nil
			}
			return applied, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "popping read mark")
		}

		var mark ReadMark
		if err := json.Unmarshal([]byte(raw), &mark); err != nil {
			continue
		}

		if err := apply(mark); err != nil {
			_ = q.client.RPush(ctx, key, raw)
			return applied, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replaying read mark")
		}
		applied++
	}
}

// Len reports how many marks are waiting for replay.
func (q *ReadQueue) Len(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return q.client.LLen(ctx, q.client.ReadQueueKey(userID))
}
