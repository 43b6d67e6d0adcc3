package progress

import "time"

// StreakBonus 当前连续天数恰好达到 Streak 时发放额外 XP
type StreakBonus struct {
	Streak int
	XP     int
}

// Rules 是把 contract 换算成 XP 的规则表
type Rules struct {
	TaskBaseXP      int
	StreakBonuses   []StreakBonus
	WorkoutXPPerSet int
	// ReversalLookback 冲正未携带 token 时回溯查找原事件的时间窗口
	ReversalLookback time.Duration
}

func DefaultRules() Rules {
	return Rules{
		TaskBaseXP: 10,
		StreakBonuses: []StreakBonus{
			{Streak: 7, XP: 25},
			{Streak: 30, XP: 100},
			{Streak: 100, XP: 500},
		},
		WorkoutXPPerSet:  5,
		ReversalLookback: 7 * 24 * time.Hour,
	}
}

// TaskXP 返回一次打卡的基础 XP 和里程碑奖励，streak 为打卡后的连续天数
func (r Rules) TaskXP(streak int) (base, bonus int) {
	for _, b := range r.StreakBonuses {
		if streak == b.Streak {
			bonus += b.XP
		}
	}
	return r.TaskBaseXP, bonus
}

func (r Rules) WorkoutXP(sets int) int {
	return sets * r.WorkoutXPPerSet
}
