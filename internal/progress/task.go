package progress

import (
	"slices"
	"time"
)

// Task 是打卡状态机操作的值类型
type Task struct {
	ID            uint
	UserID        string
	Name          string
	Description   string
	ScheduledTime string
	Pattern       Pattern
	CustomDays    []time.Weekday
	Category      Category
	CreatedAt     time.Time

	CompletionHistory []time.Time
	CurrentStreak     int
	BestStreak        int
	LastCompletedDate *time.Time
	Completed         bool
}

// ValidateRule 校验任务的重复规则
func (t Task) ValidateRule() error {
	if !t.Pattern.IsValid() {
		return validationError("invalid recurrence pattern %q", t.Pattern)
	}
	if t.Pattern == PatternCustom && len(t.CustomDays) == 0 {
		return validationError("custom recurrence requires at least one weekday")
	}
	if t.Pattern != PatternCustom && len(t.CustomDays) > 0 {
		return validationError("custom weekdays are only allowed with the custom pattern")
	}
	for _, wd := range t.CustomDays {
		if wd < time.Sunday || wd > time.Saturday {
			return validationError("invalid weekday index %d", wd)
		}
	}
	if t.Category != CategoryNone && !t.Category.IsValid() {
		return validationError("unknown category %q", t.Category)
	}
	return nil
}

// CompletedOn 判断 date 是否已打卡
func (t Task) CompletedOn(date time.Time) bool {
	day := Normalize(date)
	for _, d := range t.CompletionHistory {
		if Normalize(d).Equal(day) {
			return true
		}
	}
	return false
}

// Transition 描述一次打卡切换对任务的影响
type Transition struct {
	Changed           bool
	PreviousStreak    int
	PreviousBest      int
	PreviousCompleted *time.Time
}

// CompleteOn 标记 date 已完成，重复完成同一天不产生变化
func CompleteOn(task *Task, date, asOf time.Time) Transition {
	tr := snapshot(task)
	day := Normalize(date)
	if task.CompletedOn(day) {
		return tr
	}
	task.CompletionHistory = append(task.CompletionHistory, day)
	refresh(task, asOf)
	tr.Changed = true
	return tr
}

// UncompleteOn 从打卡历史中移除 date
func UncompleteOn(task *Task, date, asOf time.Time) Transition {
	tr := snapshot(task)
	day := Normalize(date)
	if !task.CompletedOn(day) {
		return tr
	}
	task.CompletionHistory = slices.DeleteFunc(task.CompletionHistory, func(d time.Time) bool {
		return Normalize(d).Equal(day)
	})
	refresh(task, asOf)
	tr.Changed = true
	return tr
}

// NormalizeHistory 把打卡日期去重、升序并去掉时间部分，再推导 LastCompletedDate 与 Completed。
// 仓储在保存前调用
func NormalizeHistory(task *Task) {
	seen := make(map[string]struct{}, len(task.CompletionHistory))
	out := make([]time.Time, 0, len(task.CompletionHistory))
	for _, d := range task.CompletionHistory {
		day := Normalize(d)
		k := dayKey(day)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, day)
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	task.CompletionHistory = out

	task.Completed = len(out) > 0
	if len(out) == 0 {
		task.LastCompletedDate = nil
		return
	}
	last := out[len(out)-1]
	task.LastCompletedDate = &last
}

func refresh(task *Task, asOf time.Time) {
	NormalizeHistory(task)
	RecomputeStreaks(task, asOf)
}

func snapshot(task *Task) Transition {
	tr := Transition{
		PreviousStreak: task.CurrentStreak,
		PreviousBest:   task.BestStreak,
	}
	if task.LastCompletedDate != nil {
		v := *task.LastCompletedDate
		tr.PreviousCompleted = &v
	}
	return tr
}
