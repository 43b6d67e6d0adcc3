package progress

import (
	"slices"
	"testing"
	"time"
)

func TestCompleteOnIsIdempotentPerDate(t *testing.T) {
	task := &Task{Pattern: PatternDaily, CreatedAt: mustDay("2024-03-01")}
	asOf := mustDay("2024-03-05")

	tr := CompleteOn(task, time.Date(2024, 3, 5, 21, 15, 0, 0, time.UTC), asOf)
	if !tr.Changed || tr.PreviousStreak != 0 {
		t.Fatalf("unexpected first transition: %+v", tr)
	}
	if len(task.CompletionHistory) != 1 || !task.CompletionHistory[0].Equal(mustDay("2024-03-05")) {
		t.Fatalf("expected history with the stripped date, got %v", task.CompletionHistory)
	}

	tr = CompleteOn(task, mustDay("2024-03-05"), asOf)
	if tr.Changed {
		t.Fatalf("expected second completion to be a no-op")
	}
	if len(task.CompletionHistory) != 1 || !task.Completed || task.LastCompletedDate == nil {
		t.Fatalf("unexpected task after repeat completion: %+v", task)
	}
}

func TestUncompleteOnMissingDateIsNoop(t *testing.T) {
	task := &Task{Pattern: PatternDaily, CreatedAt: mustDay("2024-03-01")}
	if tr := UncompleteOn(task, mustDay("2024-03-02"), mustDay("2024-03-02")); tr.Changed {
		t.Fatalf("expected uncomplete of a missing date to be a no-op")
	}

	CompleteOn(task, mustDay("2024-03-02"), mustDay("2024-03-02"))
	tr := UncompleteOn(task, mustDay("2024-03-02"), mustDay("2024-03-02"))
	if !tr.Changed {
		t.Fatalf("expected uncomplete to change the task")
	}
	if task.Completed || task.LastCompletedDate != nil {
		t.Fatalf("expected task to be cleared, got %+v", task)
	}
}

func TestNormalizeHistorySortsAndDedupes(t *testing.T) {
	task := &Task{CompletionHistory: []time.Time{
		time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC),
		mustDay("2024-03-01"),
		time.Date(2024, 3, 3, 23, 0, 0, 0, time.UTC),
	}}
	NormalizeHistory(task)
	if want := dates("2024-03-01", "2024-03-03"); !slices.EqualFunc(task.CompletionHistory, want, time.Time.Equal) {
		t.Fatalf("expected %v, got %v", want, task.CompletionHistory)
	}
	if !task.LastCompletedDate.Equal(mustDay("2024-03-03")) {
		t.Fatalf("unexpected last completed date %v", task.LastCompletedDate)
	}
}
