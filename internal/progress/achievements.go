package progress

import (
	"fmt"
	"slices"
	"time"
)

// Metric 是成就条件比较的账本字段
type Metric string

const (
	MetricTotalXP           Metric = "total_xp"
	MetricLevel             Metric = "level"
	MetricCategoryLevel     Metric = "category_level"
	MetricLongestStreak     Metric = "longest_streak"
	MetricTasksCompleted    Metric = "tasks_completed"
	MetricWorkoutsCompleted Metric = "workouts_completed"
	MetricBodyweightEntries Metric = "bodyweight_entries"
)

func (m Metric) IsValid() bool {
	switch m {
	case MetricTotalXP, MetricLevel, MetricCategoryLevel, MetricLongestStreak,
		MetricTasksCompleted, MetricWorkoutsCompleted, MetricBodyweightEntries:
		return true
	default:
		return false
	}
}

// Requirement 是某个账本指标的数值门槛
type Requirement struct {
	Metric    Metric
	Category  Category
	Threshold int
}

// Definition 是成就目录中的一项
type Definition struct {
	ID            string
	Title         string
	Description   string
	XPReward      int
	RequiresClaim bool
	Requirement   Requirement
}

// Validate 校验目录项
func (d Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("achievement id is required")
	}
	if d.XPReward < 0 {
		return fmt.Errorf("achievement %s: xp reward must not be negative", d.ID)
	}
	if !d.Requirement.Metric.IsValid() {
		return fmt.Errorf("achievement %s: unknown metric %q", d.ID, d.Requirement.Metric)
	}
	if d.Requirement.Metric == MetricCategoryLevel && !d.Requirement.Category.IsValid() {
		return fmt.Errorf("achievement %s: category_level needs a valid category", d.ID)
	}
	if d.Requirement.Threshold <= 0 {
		return fmt.Errorf("achievement %s: threshold must be positive", d.ID)
	}
	return nil
}

// Catalog 只读的成就目录
type Catalog struct {
	defs  []Definition
	index map[string]int
}

// NewCatalog 校验定义并拒绝重复 ID
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{defs: slices.Clone(defs), index: make(map[string]int, len(defs))}
	for i, d := range c.defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.index[d.ID]; dup {
			return nil, fmt.Errorf("duplicate achievement id %s", d.ID)
		}
		c.index[d.ID] = i
	}
	return c, nil
}

func (c *Catalog) Get(id string) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	i, ok := c.index[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

func (c *Catalog) All() []Definition {
	if c == nil {
		return nil
	}
	return slices.Clone(c.defs)
}

// Eligibility 是账本与成就条件的比较结果
type Eligibility struct {
	Eligible bool
	Current  int
	Reason   string
}

func metricValue(l *Ledger, r Requirement) int {
	switch r.Metric {
	case MetricTotalXP:
		return l.TotalXP
	case MetricLevel:
		return l.Level
	case MetricCategoryLevel:
		return l.CategoryLevel(r.Category)
	case MetricLongestStreak:
		return l.LongestStreak
	case MetricTasksCompleted:
		return l.TasksCompleted
	case MetricWorkoutsCompleted:
		return l.WorkoutsCompleted
	case MetricBodyweightEntries:
		return len(l.Bodyweight)
	default:
		return 0
	}
}

// CheckEligibility 用账本比较 def 的条件，不做 I/O
func CheckEligibility(l *Ledger, def Definition) Eligibility {
	cur := metricValue(l, def.Requirement)
	if cur >= def.Requirement.Threshold {
		return Eligibility{Eligible: true, Current: cur}
	}
	label := string(def.Requirement.Metric)
	if def.Requirement.Metric == MetricCategoryLevel {
		label = string(def.Requirement.Category) + " level"
	}
	return Eligibility{
		Current: cur,
		Reason:  fmt.Sprintf("%s is %d, needs %d", label, cur, def.Requirement.Threshold),
	}
}

// IsUnlocked 判断成就是否已领取
func IsUnlocked(l *Ledger, id string) bool {
	return slices.Contains(l.Achievements, id)
}

// IsPending 判断成就是否在等待手动领取
func IsPending(l *Ledger, id string) bool {
	return slices.Contains(l.PendingAchievements, id)
}

// AwardResult 汇总一次发放或领取
type AwardResult struct {
	Unlocked        []Definition
	AlreadyUnlocked []string
	NewlyPending    []string
	XPAwarded       int
	LeveledUp       bool
}

// AwardAchievements 领取每个成就并发放奖励，已领取的记入 AlreadyUnlocked，不再发放
func AwardAchievements(l *Ledger, defs []Definition, at time.Time) (AwardResult, error) {
	var res AwardResult
	for _, def := range defs {
		if IsUnlocked(l, def.ID) {
			res.AlreadyUnlocked = append(res.AlreadyUnlocked, def.ID)
			continue
		}
		l.Achievements = append(l.Achievements, def.ID)
		l.PendingAchievements = slices.DeleteFunc(l.PendingAchievements, func(id string) bool { return id == def.ID })
		res.Unlocked = append(res.Unlocked, def)

		if def.XPReward <= 0 {
			continue
		}
		change, err := l.AddXP(def.XPReward, SourceAchievement, CategoryNone, "achievement: "+def.Title, at)
		if err != nil {
			return res, err
		}
		res.XPAwarded += def.XPReward
		if change.LeveledUp {
			res.LeveledUp = true
		}
	}
	return res, nil
}

// Evaluate 找出账本新满足条件的成就：自动发放的立即领取，需要手动领取的进入待领取。
// 奖励 XP 可能解锁更多成就，因此重复评估直到没有变化，最多评估目录项数次
func Evaluate(l *Ledger, catalog *Catalog, at time.Time) (AwardResult, error) {
	var total AwardResult
	for range catalog.All() {
		var auto []Definition
		for _, def := range catalog.All() {
			if IsUnlocked(l, def.ID) || IsPending(l, def.ID) {
				continue
			}
			if !CheckEligibility(l, def).Eligible {
				continue
			}
			if def.RequiresClaim {
				l.PendingAchievements = append(l.PendingAchievements, def.ID)
				total.NewlyPending = append(total.NewlyPending, def.ID)
				continue
			}
			auto = append(auto, def)
		}
		if len(auto) == 0 {
			break
		}
		res, err := AwardAchievements(l, auto, at)
		if err != nil {
			return total, err
		}
		total.Unlocked = append(total.Unlocked, res.Unlocked...)
		total.XPAwarded += res.XPAwarded
		total.LeveledUp = total.LeveledUp || res.LeveledUp
	}
	return total, nil
}

// Claim 把待领取（或当前已满足条件）的成就转为已领取
func Claim(l *Ledger, def Definition, at time.Time) (AwardResult, error) {
	if IsUnlocked(l, def.ID) {
		return AwardResult{AlreadyUnlocked: []string{def.ID}}, nil
	}
	if !IsPending(l, def.ID) {
		if e := CheckEligibility(l, def); !e.Eligible {
			return AwardResult{}, validationError("achievement %s is not eligible: %s", def.ID, e.Reason)
		}
	}
	return AwardAchievements(l, []Definition{def}, at)
}
