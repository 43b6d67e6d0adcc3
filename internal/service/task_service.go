package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethoslog/internal/progress"
	"github.com/ethoslog/internal/repository"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

var (
	// ErrTaskNotFound 在指定任务不存在时返回
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskInvalidRecurrence 当重复规则配置异常时返回
	ErrTaskInvalidRecurrence = errors.New("invalid task recurrence configuration")
	// ErrTaskNameRequired 任务名称为空
	ErrTaskNameRequired = errors.New("task name is required")
	// ErrInvalidDate 日期格式不是 2006-01-02
	ErrInvalidDate = errors.New("invalid date")
)

const dateLayout = "2006-01-02"

// TaskService 负责任务的增删改查与打卡
// 打卡/取消打卡不直接改表，而是构造 contract 交给协调器处理
type TaskService struct {
	stack  *Stack
	policy *bluemonday.Policy
}

// TaskInput 定义创建/更新任务时可配置字段
type TaskInput struct {
	Name          string
	Description   string
	ScheduledTime string
	Pattern       string
	CustomDays    []int
	Category      string
}

// NewTaskService 构造 TaskService
func NewTaskService(stack *Stack) *TaskService {
	return &TaskService{stack: stack, policy: bluemonday.StrictPolicy()}
}

// List 返回任务集合，连续天数按今天重新计算
func (s *TaskService) List(ctx context.Context, userID string, filter repository.TaskFilter) ([]progress.Task, error) {
	tasks, err := s.stack.Tasks.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	today := progress.Normalize(s.stack.Now())
	for i := range tasks {
		progress.RecomputeStreaks(&tasks[i], today)
	}
	return tasks, nil
}

// Get 根据 ID 获取任务
func (s *TaskService) Get(ctx context.Context, userID string, id uint) (*progress.Task, error) {
	task, err := s.stack.Tasks.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	progress.RecomputeStreaks(task, progress.Normalize(s.stack.Now()))
	return task, nil
}

// Create 新建任务
func (s *TaskService) Create(ctx context.Context, userID string, input TaskInput) (*progress.Task, error) {
	task := &progress.Task{UserID: userID, CreatedAt: s.stack.Now().UTC()}
	if err := s.apply(task, input); err != nil {
		return nil, err
	}
	if err := s.stack.Tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Update 更新任务，完成历史保留，连续天数按新规则重新计算
func (s *TaskService) Update(ctx context.Context, userID string, id uint, input TaskInput) (*progress.Task, error) {
	var task *progress.Task
	err := s.stack.locked(userID, func() error {
		existing, err := s.stack.Tasks.Get(ctx, userID, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrTaskNotFound
		}
		if err := s.apply(existing, input); err != nil {
			return err
		}
		progress.RecomputeStreaks(existing, progress.Normalize(s.stack.Now()))
		if err := s.stack.Tasks.Save(ctx, existing); err != nil {
			return err
		}
		task = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Delete 删除任务
func (s *TaskService) Delete(ctx context.Context, userID string, id uint) error {
	deleted, err := s.stack.Tasks.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrTaskNotFound
	}
	return nil
}

// Complete 提交 task_completed；token 为空时生成新的幂等 token
func (s *TaskService) Complete(ctx context.Context, userID string, id uint, date time.Time, token string) (*progress.Result, error) {
	if token == "" {
		token = uuid.NewString()
	}
	contract := progress.Contract{
		Token:     token,
		UserID:    userID,
		Source:    progress.SourceTasks,
		Action:    string(progress.ActionTaskCompleted),
		Timestamp: s.stack.Now().UTC(),
		Metadata: map[string]any{
			progress.MetaTaskID: id,
			progress.MetaDate:   date.Format(dateLayout),
		},
	}
	return s.submit(ctx, contract)
}

// Uncomplete 提交 reverse_task_completed；originalToken 为空时由协调器按任务与日期回溯
func (s *TaskService) Uncomplete(ctx context.Context, userID string, id uint, date time.Time, originalToken string) (*progress.Result, error) {
	contract := progress.Contract{
		Token:     uuid.NewString(),
		UserID:    userID,
		Source:    progress.SourceTasks,
		Action:    string(progress.ActionReverseTaskCompleted),
		Timestamp: s.stack.Now().UTC(),
		Metadata: map[string]any{
			progress.MetaTaskID: id,
			progress.MetaDate:   date.Format(dateLayout),
		},
	}
	if originalToken != "" {
		contract.Metadata[progress.MetaOriginalToken] = originalToken
	}
	return s.submit(ctx, contract)
}

func (s *TaskService) submit(ctx context.Context, contract progress.Contract) (*progress.Result, error) {
	var res *progress.Result
	err := s.stack.locked(contract.UserID, func() error {
		var err error
		res, err = s.stack.Coordinator.Apply(ctx, contract)
		return err
	})
	return res, err
}

func (s *TaskService) apply(task *progress.Task, input TaskInput) error {
	name := s.sanitize(input.Name)
	if name == "" {
		return ErrTaskNameRequired
	}

	pattern, err := progress.ParsePattern(input.Pattern)
	if err != nil {
		return fmt.Errorf("%w: unsupported pattern %s", ErrTaskInvalidRecurrence, input.Pattern)
	}
	category, err := progress.ParseCategory(input.Category)
	if err != nil {
		return fmt.Errorf("%w: unsupported category %s", ErrTaskInvalidRecurrence, input.Category)
	}

	scheduled := strings.TrimSpace(input.ScheduledTime)
	if scheduled != "" {
		if _, err := time.Parse("15:04", scheduled); err != nil {
			return fmt.Errorf("%w: scheduled time must be HH:MM", ErrTaskInvalidRecurrence)
		}
	}

	days := make([]time.Weekday, 0, len(input.CustomDays))
	for _, d := range input.CustomDays {
		days = append(days, time.Weekday(d))
	}

	candidate := *task
	candidate.Name = name
	candidate.Description = s.sanitize(input.Description)
	candidate.ScheduledTime = scheduled
	candidate.Pattern = pattern
	candidate.CustomDays = days
	candidate.Category = category
	if err := candidate.ValidateRule(); err != nil {
		return fmt.Errorf("%w: %v", ErrTaskInvalidRecurrence, err)
	}

	*task = candidate
	return nil
}

func (s *TaskService) sanitize(input string) string {
	return strings.TrimSpace(s.policy.Sanitize(strings.TrimSpace(input)))
}

// ParseDate 解析 2006-01-02，空字符串表示今天（UTC）
func ParseDate(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return progress.Normalize(now), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidDate, raw)
	}
	return t, nil
}
