package progress

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// 账本内部写入的流水来源
const (
	SourceAchievement = "achievement"
	SourceSummary     = "summary"
)

// CategoryProgress 单个分类的 XP 与等级
type CategoryProgress struct {
	Level int
	XP    int
}

// Transaction 一笔带符号的 XP 流水
type Transaction struct {
	ID          uint
	Date        time.Time
	Amount      int
	Source      string
	Category    Category
	Description string
}

// 体重记录支持的单位
const (
	UnitKilograms = "kg"
	UnitPounds    = "lb"
)

type BodyweightEntry struct {
	ID    uint
	Value float64
	Unit  string
	Date  time.Time
}

// Ledger 是用户的进度聚合
type Ledger struct {
	ID     uint
	UserID string

	TotalXP    int
	Level      int
	Categories map[Category]CategoryProgress

	Bodyweight []BodyweightEntry
	History    []Transaction

	Achievements        []string
	PendingAchievements []string

	LongestStreak     int
	TasksCompleted    int
	WorkoutsCompleted int
}

// LevelChange 是每次 XP 变更的结果
type LevelChange struct {
	Amount        int
	LeveledUp     bool
	LeveledDown   bool
	PreviousLevel int
	NewLevel      int

	// Clamped 冲正数额超过账本余额时置位
	Clamped   bool
	Shortfall int
}

// NewLedger 返回新用户的初始账本
func NewLedger(userID string) *Ledger {
	l := &Ledger{
		UserID:     userID,
		Level:      1,
		Categories: make(map[Category]CategoryProgress, len(Categories)),
	}
	for _, c := range Categories {
		l.Categories[c] = CategoryProgress{Level: 1}
	}
	return l
}

// AddXP 增加正数 XP 并追加流水
func (l *Ledger) AddXP(amount int, source string, category Category, description string, at time.Time) (LevelChange, error) {
	if amount <= 0 {
		return LevelChange{}, validationError("xp amount must be positive, got %d", amount)
	}
	if category != CategoryNone && !category.IsValid() {
		return LevelChange{}, validationError("unknown category %q", category)
	}
	if strings.TrimSpace(source) == "" {
		return LevelChange{}, validationError("xp source is required")
	}

	change := LevelChange{Amount: amount, PreviousLevel: l.Level}
	l.TotalXP += amount
	l.adjustCategory(category, amount)
	l.History = append(l.History, Transaction{
		Date:        at.UTC(),
		Amount:      amount,
		Source:      source,
		Category:    category,
		Description: description,
	})
	l.Level = LevelForXP(l.TotalXP)

	change.NewLevel = l.Level
	change.LeveledUp = l.Level > change.PreviousLevel
	return change, nil
}

// ReverseXP 扣减 XP，总 XP 与分类 XP 最低为 0。
// 流水只记录实际扣减的数额，保证流水合计等于 TotalXP
func (l *Ledger) ReverseXP(amount int, source string, category Category, description string, at time.Time) (LevelChange, error) {
	if amount <= 0 {
		return LevelChange{}, validationError("reversal amount must be positive, got %d", amount)
	}
	if category != CategoryNone && !category.IsValid() {
		return LevelChange{}, validationError("unknown category %q", category)
	}

	change := LevelChange{PreviousLevel: l.Level}
	removed := amount
	if removed > l.TotalXP {
		change.Clamped = true
		change.Shortfall = removed - l.TotalXP
		removed = l.TotalXP
	}
	change.Amount = removed

	l.TotalXP -= removed
	l.adjustCategory(category, -amount)
	if removed > 0 {
		l.History = append(l.History, Transaction{
			Date:        at.UTC(),
			Amount:      -removed,
			Source:      source,
			Category:    category,
			Description: description,
		})
	}
	l.Level = LevelForXP(l.TotalXP)

	change.NewLevel = l.Level
	change.LeveledDown = l.Level < change.PreviousLevel
	return change, nil
}

func (l *Ledger) adjustCategory(category Category, delta int) {
	if category == CategoryNone {
		return
	}
	if l.Categories == nil {
		l.Categories = make(map[Category]CategoryProgress, len(Categories))
	}
	cp := l.Categories[category]
	cp.XP += delta
	if cp.XP < 0 {
		cp.XP = 0
	}
	cp.Level = CategoryLevelForXP(cp.XP)
	l.Categories[category] = cp
}

// CategoryLevel 返回分类等级，未记录过的分类为 1
func (l *Ledger) CategoryLevel(c Category) int {
	cp, ok := l.Categories[c]
	if !ok || cp.Level < 1 {
		return 1
	}
	return cp.Level
}

// NextLevelXP 下一级的累计 XP 门槛
func (l *Ledger) NextLevelXP() int {
	return XPForLevel(LevelForXP(l.TotalXP) + 1)
}

// XPToNextLevel 距离下一级还差的 XP
func (l *Ledger) XPToNextLevel() int {
	remaining := l.NextLevelXP() - l.TotalXP
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Recompute 按已存的 XP 重新推导所有等级
func (l *Ledger) Recompute() {
	if l.TotalXP < 0 {
		l.TotalXP = 0
	}
	l.Level = LevelForXP(l.TotalXP)
	if l.Categories == nil {
		l.Categories = make(map[Category]CategoryProgress, len(Categories))
	}
	for _, c := range Categories {
		cp := l.Categories[c]
		if cp.XP < 0 {
			cp.XP = 0
		}
		cp.Level = CategoryLevelForXP(cp.XP)
		l.Categories[c] = cp
	}
}

// HistorySum 流水合计
func (l *Ledger) HistorySum() int {
	sum := 0
	for _, tx := range l.History {
		sum += tx.Amount
	}
	return sum
}

// AddBodyweight 追加一条体重记录
func (l *Ledger) AddBodyweight(value float64, unit string, date time.Time) (BodyweightEntry, error) {
	if value <= 0 {
		return BodyweightEntry{}, validationError("bodyweight must be positive")
	}
	u := strings.TrimSpace(strings.ToLower(unit))
	if u != UnitKilograms && u != UnitPounds {
		return BodyweightEntry{}, validationError("unsupported weight unit %q", unit)
	}
	entry := BodyweightEntry{Value: value, Unit: u, Date: date.UTC()}
	l.Bodyweight = append(l.Bodyweight, entry)
	return entry, nil
}

// BodyweightNewestFirst 返回按时间倒序的副本
func (l *Ledger) BodyweightNewestFirst() []BodyweightEntry {
	out := slices.Clone(l.Bodyweight)
	slices.SortStableFunc(out, func(a, b BodyweightEntry) int { return b.Date.Compare(a.Date) })
	return out
}

// CompactHistory 把 cutoff 之前的流水合并为一条汇总，合计不变，返回合并的条数
func (l *Ledger) CompactHistory(cutoff time.Time) int {
	var keep []Transaction
	folded := 0
	sum := 0
	for _, tx := range l.History {
		if tx.Date.Before(cutoff) {
			folded++
			sum += tx.Amount
			continue
		}
		keep = append(keep, tx)
	}
	if folded <= 1 {
		return 0
	}

	history := make([]Transaction, 0, len(keep)+1)
	if sum != 0 {
		history = append(history, Transaction{
			Date:        cutoff.UTC(),
			Amount:      sum,
			Source:      SourceSummary,
			Description: fmt.Sprintf("summary of %d entries before %s", folded, cutoff.UTC().Format(dayKeyFormat)),
		})
	}
	l.History = append(history, keep...)
	return folded
}
