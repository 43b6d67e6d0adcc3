package progress

import (
	"testing"
	"time"
)

func dates(ss ...string) []time.Time {
	out := make([]time.Time, 0, len(ss))
	for _, s := range ss {
		out = append(out, mustDay(s))
	}
	return out
}

func TestDailyStreakCountsBackFromAsOf(t *testing.T) {
	task := Task{
		Pattern:           PatternDaily,
		CreatedAt:         mustDay("2024-03-01"),
		CompletionHistory: dates("2024-03-08", "2024-03-09", "2024-03-10"),
	}
	if got := Streak(task, mustDay("2024-03-10")); got != 3 {
		t.Fatalf("expected streak 3, got %d", got)
	}
	// 今天还没打卡
	if got := Streak(task, mustDay("2024-03-11")); got != 0 {
		t.Fatalf("expected streak 0 on an unfinished day, got %d", got)
	}

	task.CompletionHistory = dates("2024-03-08", "2024-03-10")
	if got := Streak(task, mustDay("2024-03-10")); got != 1 {
		t.Fatalf("expected streak 1 after a gap, got %d", got)
	}
}

func TestWeeklyStreakSkipsNonDueDays(t *testing.T) {
	// 周一创建，每周一到期
	task := Task{
		Pattern:           PatternWeekly,
		CreatedAt:         mustDay("2024-01-01"),
		CompletionHistory: dates("2024-01-01", "2024-01-08", "2024-01-15"),
	}
	if got := Streak(task, mustDay("2024-01-17")); got != 3 {
		t.Fatalf("expected streak 3, got %d", got)
	}

	task.CompletionHistory = dates("2024-01-01", "2024-01-15")
	if got := Streak(task, mustDay("2024-01-15")); got != 1 {
		t.Fatalf("expected streak 1 after a missed week, got %d", got)
	}
}

func TestWeeklyStreakBreaksOnMissedDueDay(t *testing.T) {
	task := &Task{Pattern: PatternWeekly, CreatedAt: mustDay("2024-01-01")}
	for _, d := range []string{"2024-01-01", "2024-01-08", "2024-01-15"} {
		CompleteOn(task, mustDay(d), mustDay(d))
	}
	RecomputeStreaks(task, mustDay("2024-01-15"))
	if task.CurrentStreak != 3 || task.BestStreak != 3 {
		t.Fatalf("expected 3/3 on 2024-01-15, got %d/%d", task.CurrentStreak, task.BestStreak)
	}

	// 2024-01-22 到期但未打卡
	RecomputeStreaks(task, mustDay("2024-01-22"))
	if task.CurrentStreak != 0 {
		t.Fatalf("expected streak 0 after the missed week, got %d", task.CurrentStreak)
	}
	if task.BestStreak != 3 {
		t.Fatalf("expected best streak to stay 3, got %d", task.BestStreak)
	}
}

func TestWeekdayStreakBridgesWeekend(t *testing.T) {
	task := Task{
		Pattern:           PatternWeekdays,
		CreatedAt:         mustDay("2024-01-01"),
		CompletionHistory: dates("2024-01-04", "2024-01-05", "2024-01-08"),
	}
	if got := Streak(task, mustDay("2024-01-08")); got != 3 {
		t.Fatalf("expected streak 3 across the weekend, got %d", got)
	}
}

func TestOnceStreak(t *testing.T) {
	task := Task{Pattern: PatternOnce, CreatedAt: mustDay("2024-01-05")}
	if got := Streak(task, mustDay("2024-01-05")); got != 0 {
		t.Fatalf("expected streak 0, got %d", got)
	}
	task.CompletionHistory = dates("2024-01-05")
	if got := Streak(task, mustDay("2024-02-01")); got != 1 {
		t.Fatalf("expected streak 1 for a completed once task, got %d", got)
	}
}

func TestBestStreakNeverDrops(t *testing.T) {
	task := &Task{Pattern: PatternDaily, CreatedAt: mustDay("2024-03-01")}
	asOf := mustDay("2024-03-03")

	CompleteOn(task, mustDay("2024-03-01"), asOf)
	CompleteOn(task, mustDay("2024-03-02"), asOf)
	CompleteOn(task, mustDay("2024-03-03"), asOf)
	if task.CurrentStreak != 3 || task.BestStreak != 3 {
		t.Fatalf("expected 3/3, got %d/%d", task.CurrentStreak, task.BestStreak)
	}

	UncompleteOn(task, mustDay("2024-03-02"), asOf)
	if task.CurrentStreak != 1 || task.BestStreak != 3 {
		t.Fatalf("expected 1/3 after uncomplete, got %d/%d", task.CurrentStreak, task.BestStreak)
	}
}
