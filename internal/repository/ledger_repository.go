package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethoslog/internal/db"
	"github.com/ethoslog/internal/progress"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository 负责 progress.Ledger 与 user_progresses 及其子表之间的映射
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(gdb *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: gdb}
}

var _ progress.LedgerRepository = (*LedgerRepository)(nil)

// Get 加载用户账本；不存在时返回 nil, nil
func (r *LedgerRepository) Get(ctx context.Context, userID string) (*progress.Ledger, error) {
	var row db.UserProgress
	err := Conn(ctx, r.db).
		Preload("Categories").
		Preload("Transactions", func(q *gorm.DB) *gorm.DB { return q.Order("occurred_at ASC, id ASC") }).
		Preload("Bodyweights", func(q *gorm.DB) *gorm.DB { return q.Order("measured_on ASC, id ASC") }).
		Preload("Achievements", func(q *gorm.DB) *gorm.DB { return q.Order("id ASC") }).
		Where("user_id = ?", userID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ledger: %w", err)
	}
	return toLedger(row), nil
}

// Save 写回账本。新流水、新体重记录会回填 ID；成就按状态同步。
func (r *LedgerRepository) Save(ctx context.Context, l *progress.Ledger) error {
	conn := Conn(ctx, r.db)

	row := db.UserProgress{
		UserID:            l.UserID,
		TotalXP:           l.TotalXP,
		Level:             l.Level,
		LongestStreak:     l.LongestStreak,
		TasksCompleted:    l.TasksCompleted,
		WorkoutsCompleted: l.WorkoutsCompleted,
	}
	if l.ID == 0 {
		if err := conn.Omit(clause.Associations).Create(&row).Error; err != nil {
			return fmt.Errorf("create ledger: %w", err)
		}
		l.ID = row.ID
	} else {
		if err := conn.Model(&db.UserProgress{}).Where("id = ?", l.ID).Updates(map[string]any{
			"total_xp":           row.TotalXP,
			"level":              row.Level,
			"longest_streak":     row.LongestStreak,
			"tasks_completed":    row.TasksCompleted,
			"workouts_completed": row.WorkoutsCompleted,
		}).Error; err != nil {
			return fmt.Errorf("update ledger: %w", err)
		}
	}

	if err := r.saveCategories(conn, l); err != nil {
		return err
	}
	if err := r.appendTransactions(conn, l); err != nil {
		return err
	}
	if err := r.appendBodyweight(conn, l); err != nil {
		return err
	}
	return r.syncAchievements(conn, l)
}

// ReplaceHistory 用 l.History 整体替换流水，供历史压缩使用
func (r *LedgerRepository) ReplaceHistory(ctx context.Context, l *progress.Ledger) error {
	conn := Conn(ctx, r.db)
	if l.ID == 0 {
		return fmt.Errorf("replace history: ledger %s is not persisted", l.UserID)
	}
	if err := conn.Where("user_progress_id = ?", l.ID).Delete(&db.XPTransaction{}).Error; err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	for i := range l.History {
		l.History[i].ID = 0
	}
	return r.appendTransactions(conn, l)
}

// ListUserIDs 返回所有已有账本的用户，维护命令用来逐个处理
func (r *LedgerRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := Conn(ctx, r.db).Model(&db.UserProgress{}).Order("user_id ASC").Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list ledgers: %w", err)
	}
	return ids, nil
}

func (r *LedgerRepository) saveCategories(conn *gorm.DB, l *progress.Ledger) error {
	if len(l.Categories) == 0 {
		return nil
	}
	rows := make([]db.CategoryXP, 0, len(l.Categories))
	for _, c := range progress.Categories {
		cp, ok := l.Categories[c]
		if !ok {
			continue
		}
		rows = append(rows, db.CategoryXP{UserProgressID: l.ID, Category: string(c), XP: cp.XP, Level: cp.Level})
	}
	if err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_progress_id"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"xp", "level", "updated_at"}),
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("save category xp: %w", err)
	}
	return nil
}

func (r *LedgerRepository) appendTransactions(conn *gorm.DB, l *progress.Ledger) error {
	for i := range l.History {
		tx := &l.History[i]
		if tx.ID != 0 {
			continue
		}
		row := db.XPTransaction{
			UserProgressID: l.ID,
			OccurredAt:     tx.Date,
			Amount:         tx.Amount,
			Source:         tx.Source,
			Category:       string(tx.Category),
			Description:    tx.Description,
		}
		if err := conn.Create(&row).Error; err != nil {
			return fmt.Errorf("append xp transaction: %w", err)
		}
		tx.ID = row.ID
	}
	return nil
}

func (r *LedgerRepository) appendBodyweight(conn *gorm.DB, l *progress.Ledger) error {
	for i := range l.Bodyweight {
		entry := &l.Bodyweight[i]
		if entry.ID != 0 {
			continue
		}
		row := db.BodyweightEntry{
			UserProgressID: l.ID,
			Value:          entry.Value,
			Unit:           entry.Unit,
			MeasuredOn:     entry.Date,
		}
		if err := conn.Create(&row).Error; err != nil {
			return fmt.Errorf("append bodyweight: %w", err)
		}
		entry.ID = row.ID
	}
	return nil
}

// syncAchievements 成就只会从 pending 变为 claimed，claimed 不可撤销
func (r *LedgerRepository) syncAchievements(conn *gorm.DB, l *progress.Ledger) error {
	rows := make([]db.UserAchievement, 0, len(l.Achievements)+len(l.PendingAchievements))
	for _, id := range l.Achievements {
		rows = append(rows, db.UserAchievement{UserProgressID: l.ID, AchievementID: id, Status: db.AchievementClaimed})
	}
	for _, id := range l.PendingAchievements {
		rows = append(rows, db.UserAchievement{UserProgressID: l.ID, AchievementID: id, Status: db.AchievementPending})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_progress_id"}, {Name: "achievement_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("save achievements: %w", err)
	}
	return nil
}

func toLedger(row db.UserProgress) *progress.Ledger {
	l := progress.NewLedger(row.UserID)
	l.ID = row.ID
	l.TotalXP = row.TotalXP
	l.Level = row.Level
	l.LongestStreak = row.LongestStreak
	l.TasksCompleted = row.TasksCompleted
	l.WorkoutsCompleted = row.WorkoutsCompleted

	for _, c := range row.Categories {
		l.Categories[progress.Category(c.Category)] = progress.CategoryProgress{Level: c.Level, XP: c.XP}
	}
	for _, tx := range row.Transactions {
		l.History = append(l.History, progress.Transaction{
			ID:          tx.ID,
			Date:        tx.OccurredAt.UTC(),
			Amount:      tx.Amount,
			Source:      tx.Source,
			Category:    progress.Category(tx.Category),
			Description: tx.Description,
		})
	}
	for _, bw := range row.Bodyweights {
		l.Bodyweight = append(l.Bodyweight, progress.BodyweightEntry{
			ID:    bw.ID,
			Value: bw.Value,
			Unit:  bw.Unit,
			Date:  bw.MeasuredOn.UTC(),
		})
	}
	for _, a := range row.Achievements {
		switch a.Status {
		case db.AchievementClaimed:
			l.Achievements = append(l.Achievements, a.AchievementID)
		case db.AchievementPending:
			l.PendingAchievements = append(l.PendingAchievements, a.AchievementID)
		}
	}
	if l.Level < 1 {
		l.Level = 1
	}
	return l
}
