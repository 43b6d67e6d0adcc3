package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethoslog/internal/db"
	"gorm.io/gorm"
)

// WorkoutRepository 保存训练记录；XP 由协调器负责，这里只存展示数据
type WorkoutRepository struct {
	db *gorm.DB
}

func NewWorkoutRepository(gdb *gorm.DB) *WorkoutRepository {
	return &WorkoutRepository{db: gdb}
}

func (r *WorkoutRepository) Create(ctx context.Context, w *db.Workout) error {
	if err := Conn(ctx, r.db).Create(w).Error; err != nil {
		return fmt.Errorf("create workout: %w", err)
	}
	return nil
}

// Get 不存在或不属于该用户时返回 nil, nil
func (r *WorkoutRepository) Get(ctx context.Context, userID string, id uint) (*db.Workout, error) {
	var w db.Workout
	err := Conn(ctx, r.db).Where("id = ? AND user_id = ?", id, userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workout: %w", err)
	}
	return &w, nil
}

func (r *WorkoutRepository) FindByToken(ctx context.Context, token string) (*db.Workout, error) {
	var w db.Workout
	err := Conn(ctx, r.db).Where("token = ?", token).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find workout: %w", err)
	}
	return &w, nil
}

// List 按训练时间倒序，includeReversed 为 false 时跳过已撤销的记录
func (r *WorkoutRepository) List(ctx context.Context, userID string, includeReversed bool, limit int) ([]db.Workout, error) {
	if limit <= 0 {
		limit = 50
	}
	query := Conn(ctx, r.db).Where("user_id = ?", userID)
	if !includeReversed {
		query = query.Where("reversed_at IS NULL")
	}
	var rows []db.Workout
	if err := query.Order("performed_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list workouts: %w", err)
	}
	for i := range rows {
		rows[i].PerformedAt = rows[i].PerformedAt.UTC()
	}
	return rows, nil
}

func (r *WorkoutRepository) MarkReversed(ctx context.Context, id uint, at time.Time) error {
	res := Conn(ctx, r.db).Model(&db.Workout{}).
		Where("id = ? AND reversed_at IS NULL", id).
		Update("reversed_at", at.UTC())
	if res.Error != nil {
		return fmt.Errorf("mark workout reversed: %w", res.Error)
	}
	return nil
}

// MarkReversedByToken 按事件 token 标记训练记录；没有对应记录时不做任何事
func (r *WorkoutRepository) MarkReversedByToken(ctx context.Context, token string, at time.Time) error {
	res := Conn(ctx, r.db).Model(&db.Workout{}).
		Where("token = ? AND reversed_at IS NULL", token).
		Update("reversed_at", at.UTC())
	if res.Error != nil {
		return fmt.Errorf("mark workout reversed: %w", res.Error)
	}
	return nil
}
