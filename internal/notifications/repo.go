package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/velora-notify/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the persistence collaborator: it seeds the session store on
// start and reconciles local read-state mutations with durable storage. The
// in-memory store stays authoritative for the session either way.
type Repository interface {
	FetchRecent(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error)
	Create(ctx context.Context, userID uuid.UUID, n *Notification) error
	MarkRead(ctx context.Context, userID uuid.UUID, notificationID string, now time.Time) error
	MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type notificationRecord struct {
	ID           string     `gorm:"primaryKey"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null"`
	Category     string     `gorm:"type:text;not null"`
	Priority     string     `gorm:"type:text;not null"`
	Title        string     `gorm:"type:text;not null"`
	Message      string     `gorm:"type:text;not null"`
	ActionLabel  *string    `gorm:"type:text"`
	ActionTarget *string    `gorm:"type:text"`
	Metadata     []byte     `gorm:"type:jsonb"`
	ExpiresAt    *time.Time `gorm:"type:timestamptz"`
	ReadAt       *time.Time `gorm:"type:timestamptz"`
	CreatedAt    time.Time  `gorm:"type:timestamptz;default:now()"`
}

func (notificationRecord) TableName() string {
	return "notifications"
}

func (r *repositoryImpl) FetchRecent(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	query := r.db.WithContext(ctx).
		Model(&notificationRecord{}).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []notificationRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	out := make([]Notification, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

func (r *repositoryImpl) Create(ctx context.Context, userID uuid.UUID, n *Notification) error {
	record, err := recordFromDomain(userID, n)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repositoryImpl) MarkRead(ctx context.Context, userID uuid.UUID, notificationID string, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&notificationRecord{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", notificationID, userID).
		UpdateColumn("read_at", now).Error
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&notificationRecord{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (rec *notificationRecord) toDomain() Notification {
	n := Notification{
		ID:        rec.ID,
		Title:     rec.Title,
		Message:   rec.Message,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
		ReadAt:    rec.ReadAt,
	}
	// Unknown enum values survive the round-trip; the store rejects them on
	// seed instead of silently rewriting history.
	n.Category = enums.Category(rec.Category)
	n.Priority = enums.Priority(rec.Priority)
	if rec.ActionLabel != nil && rec.ActionTarget != nil {
		n.Action = &Action{Label: *rec.ActionLabel, Target: *rec.ActionTarget}
	}
	if len(rec.Metadata) > 0 {
		meta := map[string]string{}
		if err := json.Unmarshal(rec.Metadata, &meta); err == nil && len(meta) > 0 {
			n.Metadata = meta
		}
	}
	return n
}

func recordFromDomain(userID uuid.UUID, n *Notification) (*notificationRecord, error) {
	record := &notificationRecord{
		ID:        n.ID,
		UserID:    userID,
		Category:  string(n.Category),
		Priority:  string(n.Priority),
		Title:     n.Title,
		Message:   n.Message,
		ExpiresAt: n.ExpiresAt,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
	if n.Action != nil {
		label, target := n.Action.Label, n.Action.Target
		record.ActionLabel, record.ActionTarget = &label, &target
	}
	if len(n.Metadata) > 0 {
		raw, err := json.Marshal(n.Metadata)
		if err != nil {
			return nil, err
		}
		record.Metadata = raw
	}
	return record, nil
}
