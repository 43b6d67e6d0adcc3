package db

import (
	"time"

	"gorm.io/gorm"
)

// Task 定义了任务模型
// RecurrencePattern 取值 once/daily/weekdays/weekends/weekly/custom
// CustomDays 仅 custom 时使用，存储 0-6 的星期索引
// Streak 相关字段为冗余缓存，每次打卡后重新计算
type Task struct {
	gorm.Model
	UserID            string `gorm:"size:128;index"`
	Name              string
	Description       string
	ScheduledTime     string `gorm:"size:5"`
	RecurrencePattern string `gorm:"size:16"`
	CustomDays        []int  `gorm:"serializer:json"`
	Category          string `gorm:"size:16"`
	CurrentStreak     int
	BestStreak        int
	LastCompletedDate *time.Time
	Completed         bool

	Completions []TaskCompletion `gorm:"constraint:OnDelete:CASCADE"`
}

// TaskCompletion 记录任务完成日期
// Task + CompletedOn 采用唯一索引，保证同一天只记一次
type TaskCompletion struct {
	ID          uint      `gorm:"primaryKey"`
	TaskID      uint      `gorm:"index;index:idx_task_completion_unique,unique"`
	CompletedOn time.Time `gorm:"index:idx_task_completion_unique,unique"`
	CreatedAt   time.Time
}

// TableName 重写确保唯一索引作用到 task_id + completed_on
func (TaskCompletion) TableName() string {
	return "task_completions"
}
