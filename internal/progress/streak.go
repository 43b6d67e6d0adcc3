package progress

import "time"

// MaxStreakScan 计算连续天数时最多回看的天数
const MaxStreakScan = 365

const dayKeyFormat = "2006-01-02"

func dayKey(t time.Time) string {
	return Normalize(t).Format(dayKeyFormat)
}

// Streak 从 asOf 往回数连续完成的到期日
func Streak(task Task, asOf time.Time) int {
	if len(task.CompletionHistory) == 0 {
		return 0
	}
	if task.Pattern == PatternOnce {
		return 1
	}

	done := make(map[string]struct{}, len(task.CompletionHistory))
	for _, d := range task.CompletionHistory {
		done[dayKey(d)] = struct{}{}
	}

	day := Normalize(asOf)
	streak := 0
	for i := 0; i < MaxStreakScan; i++ {
		_, completed := done[dayKey(day)]
		if task.Pattern == PatternDaily {
			if !completed {
				break
			}
			streak++
		} else if IsDue(task, day) {
			if !completed {
				break
			}
			streak++
		}
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// RecomputeStreaks 刷新 CurrentStreak，超过时抬高 BestStreak；BestStreak 不会下降
func RecomputeStreaks(task *Task, asOf time.Time) {
	task.CurrentStreak = Streak(*task, asOf)
	if task.CurrentStreak > task.BestStreak {
		task.BestStreak = task.CurrentStreak
	}
}
