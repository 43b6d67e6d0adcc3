package db

import "time"

// ProgressEvent 是每个 contract token 对应的幂等与审计记录
// Token 唯一；冲正记录通过 OriginalToken 指回原始事件
type ProgressEvent struct {
	ID            uint   `gorm:"primaryKey"`
	Token         string `gorm:"size:128;uniqueIndex"`
	UserID        string `gorm:"size:128;index:idx_progress_event_user_task"`
	Source        string `gorm:"size:64"`
	Action        string `gorm:"size:64"`
	Direction     string `gorm:"size:16"`
	OccurredAt    time.Time `gorm:"index"`
	TaskID        *uint     `gorm:"index:idx_progress_event_user_task"`
	SubjectDate   *time.Time
	Category      string `gorm:"size:16"`
	XPAwarded     int
	LeveledUp     bool
	Level         int
	Achievements  []string       `gorm:"serializer:json"`
	Metadata      map[string]any `gorm:"serializer:json"`
	OriginalToken string         `gorm:"size:128;index"`
	ReversedAt    *time.Time
	ReversedBy    string `gorm:"size:128"`
	CreatedAt     time.Time
}

// Workout 训练记录，Token 为对应 workout_completed contract 的 token
type Workout struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      string `gorm:"size:128;index"`
	Name        string
	Category    string `gorm:"size:16"`
	Sets        int
	BonusXP     int
	XPAwarded   int
	PerformedAt time.Time `gorm:"index"`
	Token       string    `gorm:"size:128;uniqueIndex"`
	ReversedAt  *time.Time
	CreatedAt   time.Time
}
