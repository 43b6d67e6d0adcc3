package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethoslog/internal/db"
	"github.com/ethoslog/internal/progress"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskRepository 负责任务及其完成记录的持久化，所有查询都按 user_id 隔离
type TaskRepository struct {
	db *gorm.DB
}

// TaskFilter 描述任务列表过滤条件
type TaskFilter struct {
	Pattern  string
	Category string
	Search   string
}

func NewTaskRepository(gdb *gorm.DB) *TaskRepository {
	return &TaskRepository{db: gdb}
}

var _ progress.TaskRepository = (*TaskRepository)(nil)

// Get 根据 ID 获取任务；不存在或不属于该用户时返回 nil, nil
func (r *TaskRepository) Get(ctx context.Context, userID string, id uint) (*progress.Task, error) {
	var row db.Task
	err := Conn(ctx, r.db).
		Preload("Completions", func(q *gorm.DB) *gorm.DB { return q.Order("completed_on ASC") }).
		Where("id = ? AND user_id = ?", id, userID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return toTask(row), nil
}

// List 返回用户的任务，支持基本筛选
func (r *TaskRepository) List(ctx context.Context, userID string, filter TaskFilter) ([]progress.Task, error) {
	var rows []db.Task

	query := Conn(ctx, r.db).Model(&db.Task{}).
		Preload("Completions", func(q *gorm.DB) *gorm.DB { return q.Order("completed_on ASC") }).
		Where("user_id = ?", userID)

	if filter.Pattern != "" {
		query = query.Where("recurrence_pattern = ?", filter.Pattern)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Search != "" {
		like := fmt.Sprintf("%%%s%%", strings.TrimSpace(filter.Search))
		query = query.Where("name LIKE ? OR description LIKE ?", like, like)
	}

	if err := query.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]progress.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, *toTask(row))
	}
	return tasks, nil
}

// Create 新建任务并回填 ID 与 CreatedAt
func (r *TaskRepository) Create(ctx context.Context, task *progress.Task) error {
	row := fromTask(task)
	if err := Conn(ctx, r.db).Omit(clause.Associations).Create(&row).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	task.ID = row.ID
	task.CreatedAt = row.CreatedAt.UTC()
	return r.syncCompletions(Conn(ctx, r.db), task)
}

// Save 更新任务字段并同步完成记录
func (r *TaskRepository) Save(ctx context.Context, task *progress.Task) error {
	conn := Conn(ctx, r.db)

	row := fromTask(task)
	if err := conn.Model(&db.Task{Model: gorm.Model{ID: task.ID}}).
		Where("user_id = ?", task.UserID).
		Select("name", "description", "scheduled_time", "recurrence_pattern", "custom_days", "category",
			"current_streak", "best_streak", "last_completed_date", "completed").
		Updates(&row).Error; err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return r.syncCompletions(conn, task)
}

// Delete 软删除任务，完成记录保留以便审计
func (r *TaskRepository) Delete(ctx context.Context, userID string, id uint) (bool, error) {
	res := Conn(ctx, r.db).Where("id = ? AND user_id = ?", id, userID).Delete(&db.Task{})
	if res.Error != nil {
		return false, fmt.Errorf("delete task: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *TaskRepository) syncCompletions(conn *gorm.DB, task *progress.Task) error {
	if len(task.CompletionHistory) == 0 {
		if err := conn.Where("task_id = ?", task.ID).Delete(&db.TaskCompletion{}).Error; err != nil {
			return fmt.Errorf("clear task completions: %w", err)
		}
		return nil
	}

	if err := conn.Where("task_id = ? AND completed_on NOT IN ?", task.ID, task.CompletionHistory).
		Delete(&db.TaskCompletion{}).Error; err != nil {
		return fmt.Errorf("prune task completions: %w", err)
	}

	rows := make([]db.TaskCompletion, 0, len(task.CompletionHistory))
	for _, d := range task.CompletionHistory {
		rows = append(rows, db.TaskCompletion{TaskID: task.ID, CompletedOn: d})
	}
	if err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}, {Name: "completed_on"}},
		DoNothing: true,
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("upsert task completions: %w", err)
	}
	return nil
}

func toTask(row db.Task) *progress.Task {
	task := &progress.Task{
		ID:            row.ID,
		UserID:        row.UserID,
		Name:          row.Name,
		Description:   row.Description,
		ScheduledTime: row.ScheduledTime,
		Pattern:       progress.Pattern(row.RecurrencePattern),
		Category:      progress.Category(row.Category),
		CreatedAt:     row.CreatedAt.UTC(),
		CurrentStreak: row.CurrentStreak,
		BestStreak:    row.BestStreak,
	}
	for _, d := range row.CustomDays {
		task.CustomDays = append(task.CustomDays, time.Weekday(d))
	}
	for _, c := range row.Completions {
		task.CompletionHistory = append(task.CompletionHistory, c.CompletedOn.UTC())
	}
	progress.NormalizeHistory(task)
	return task
}

func fromTask(task *progress.Task) db.Task {
	progress.NormalizeHistory(task)
	return db.Task{
		Model:             gorm.Model{CreatedAt: task.CreatedAt.UTC()},
		UserID:            task.UserID,
		Name:              task.Name,
		Description:       task.Description,
		ScheduledTime:     task.ScheduledTime,
		RecurrencePattern: string(task.Pattern),
		CustomDays:        daysToInts(task.CustomDays),
		Category:          string(task.Category),
		CurrentStreak:     task.CurrentStreak,
		BestStreak:        task.BestStreak,
		LastCompletedDate: task.LastCompletedDate,
		Completed:         task.Completed,
	}
}

func daysToInts(days []time.Weekday) []int {
	out := make([]int, 0, len(days))
	for _, d := range days {
		out = append(out, int(d))
	}
	return out
}
