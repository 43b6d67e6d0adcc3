package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethoslog/internal/db"
	"github.com/ethoslog/internal/progress"
	"gorm.io/gorm"
)

// EventRepository 持久化 contract 事件记录，token 唯一
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(gdb *gorm.DB) *EventRepository {
	return &EventRepository{db: gdb}
}

var _ progress.EventRepository = (*EventRepository)(nil)

// FindByToken 不存在时返回 nil, nil
func (r *EventRepository) FindByToken(ctx context.Context, token string) (*progress.EventRecord, error) {
	var row db.ProgressEvent
	if err := Conn(ctx, r.db).Where("token = ?", token).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return toEventRecord(row), nil
}

func (r *EventRepository) Create(ctx context.Context, rec *progress.EventRecord) error {
	row := fromEventRecord(rec)
	if err := Conn(ctx, r.db).Create(&row).Error; err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// MarkReversed 只更新尚未冲正的事件，防止并发下重复冲正
func (r *EventRepository) MarkReversed(ctx context.Context, token, reversedBy string, at time.Time) error {
	res := Conn(ctx, r.db).Model(&db.ProgressEvent{}).
		Where("token = ? AND reversed_at IS NULL", token).
		Updates(map[string]any{"reversed_at": at.UTC(), "reversed_by": reversedBy})
	if res.Error != nil {
		return fmt.Errorf("mark event reversed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark event reversed: %s is missing or already reversed", token)
	}
	return nil
}

// FindForwardForTask 返回 since 之后该任务的正向事件，按时间倒序
func (r *EventRepository) FindForwardForTask(ctx context.Context, userID string, taskID uint, since time.Time) ([]progress.EventRecord, error) {
	var rows []db.ProgressEvent
	if err := Conn(ctx, r.db).
		Where("user_id = ? AND task_id = ? AND direction = ?", userID, taskID, string(progress.DirectionForward)).
		Where("occurred_at >= ?", since.UTC()).
		Order("occurred_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list task events: %w", err)
	}
	out := make([]progress.EventRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, *toEventRecord(row))
	}
	return out, nil
}

// ListByUser 返回用户最近的事件，limit<=0 时默认 50
func (r *EventRepository) ListByUser(ctx context.Context, userID string, limit int) ([]progress.EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []db.ProgressEvent
	if err := Conn(ctx, r.db).
		Where("user_id = ?", userID).
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]progress.EventRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, *toEventRecord(row))
	}
	return out, nil
}

// PurgeBefore 删除早于 cutoff 的事件记录，返回删除条数。
// 被删除的 token 不再去重，调用方应保证 cutoff 远早于任何可能的重试。
func (r *EventRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := Conn(ctx, r.db).Where("occurred_at < ?", cutoff.UTC()).Delete(&db.ProgressEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func toEventRecord(row db.ProgressEvent) *progress.EventRecord {
	rec := &progress.EventRecord{
		Token:         row.Token,
		UserID:        row.UserID,
		Source:        row.Source,
		Action:        progress.Action(row.Action),
		Direction:     progress.Direction(row.Direction),
		OccurredAt:    row.OccurredAt.UTC(),
		TaskID:        row.TaskID,
		Category:      progress.Category(row.Category),
		XPAwarded:     row.XPAwarded,
		LeveledUp:     row.LeveledUp,
		Level:         row.Level,
		Achievements:  row.Achievements,
		Metadata:      row.Metadata,
		OriginalToken: row.OriginalToken,
		ReversedBy:    row.ReversedBy,
	}
	if row.SubjectDate != nil {
		d := row.SubjectDate.UTC()
		rec.SubjectDate = &d
	}
	if row.ReversedAt != nil {
		at := row.ReversedAt.UTC()
		rec.ReversedAt = &at
	}
	return rec
}

func fromEventRecord(rec *progress.EventRecord) db.ProgressEvent {
	return db.ProgressEvent{
		Token:         rec.Token,
		UserID:        rec.UserID,
		Source:        rec.Source,
		Action:        string(rec.Action),
		Direction:     string(rec.Direction),
		OccurredAt:    rec.OccurredAt.UTC(),
		TaskID:        rec.TaskID,
		SubjectDate:   rec.SubjectDate,
		Category:      string(rec.Category),
		XPAwarded:     rec.XPAwarded,
		LeveledUp:     rec.LeveledUp,
		Level:         rec.Level,
		Achievements:  rec.Achievements,
		Metadata:      rec.Metadata,
		OriginalToken: rec.OriginalToken,
		ReversedAt:    rec.ReversedAt,
		ReversedBy:    rec.ReversedBy,
	}
}
