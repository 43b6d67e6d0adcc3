package db

import (
	"time"

	"gorm.io/gorm"
)

// UserProgress 每个用户一行，保存经验、等级与成就统计计数
// UserID 来自上游认证层，唯一索引保证懒创建时不会重复
type UserProgress struct {
	gorm.Model
	UserID            string `gorm:"size:128;uniqueIndex"`
	TotalXP           int
	Level             int
	LongestStreak     int
	TasksCompleted    int
	WorkoutsCompleted int

	Categories   []CategoryXP      `gorm:"constraint:OnDelete:CASCADE"`
	Transactions []XPTransaction   `gorm:"constraint:OnDelete:CASCADE"`
	Bodyweights  []BodyweightEntry `gorm:"constraint:OnDelete:CASCADE"`
	Achievements []UserAchievement `gorm:"constraint:OnDelete:CASCADE"`
}

// CategoryXP 记录单个训练类别的经验；(user_progress_id, category) 唯一
type CategoryXP struct {
	ID             uint   `gorm:"primaryKey"`
	UserProgressID uint   `gorm:"index:idx_category_xp_unique,unique"`
	Category       string `gorm:"size:16;index:idx_category_xp_unique,unique"`
	XP             int
	Level          int
	UpdatedAt      time.Time
}

// XPTransaction 经验流水，Amount 有符号；冲正写入负数，压缩写入 summary
type XPTransaction struct {
	ID             uint      `gorm:"primaryKey"`
	UserProgressID uint      `gorm:"index"`
	OccurredAt     time.Time `gorm:"index"`
	Amount         int
	Source         string `gorm:"size:64"`
	Category       string `gorm:"size:16"`
	Description    string
	CreatedAt      time.Time
}

// BodyweightEntry 体重记录，Unit 仅 kg/lb
type BodyweightEntry struct {
	ID             uint `gorm:"primaryKey"`
	UserProgressID uint `gorm:"index"`
	Value          float64
	Unit           string    `gorm:"size:4"`
	MeasuredOn     time.Time `gorm:"index"`
	CreatedAt      time.Time
}

const (
	AchievementClaimed = "claimed"
	AchievementPending = "pending"
)

// UserAchievement 成就状态，Status 为 claimed 或 pending
type UserAchievement struct {
	ID             uint   `gorm:"primaryKey"`
	UserProgressID uint   `gorm:"index:idx_user_achievement_unique,unique"`
	AchievementID  string `gorm:"size:64;index:idx_user_achievement_unique,unique"`
	Status         string `gorm:"size:16"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
