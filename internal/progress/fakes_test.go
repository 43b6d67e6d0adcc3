package progress

import (
	"context"
	"maps"
	"slices"
	"sort"
	"time"
)

type memLedgers struct {
	byUser map[string]*Ledger
	saves  int
}

func newMemLedgers() *memLedgers {
	return &memLedgers{byUser: map[string]*Ledger{}}
}

func cloneLedger(l *Ledger) *Ledger {
	cp := *l
	cp.Categories = maps.Clone(l.Categories)
	cp.Bodyweight = slices.Clone(l.Bodyweight)
	cp.History = slices.Clone(l.History)
	cp.Achievements = slices.Clone(l.Achievements)
	cp.PendingAchievements = slices.Clone(l.PendingAchievements)
	return &cp
}

func (m *memLedgers) Get(_ context.Context, userID string) (*Ledger, error) {
	l, ok := m.byUser[userID]
	if !ok {
		return nil, nil
	}
	return cloneLedger(l), nil
}

func (m *memLedgers) Save(_ context.Context, l *Ledger) error {
	m.saves++
	m.byUser[l.UserID] = cloneLedger(l)
	return nil
}

type memTasks struct {
	byID map[uint]*Task
}

func newMemTasks(tasks ...Task) *memTasks {
	m := &memTasks{byID: map[uint]*Task{}}
	for i := range tasks {
		t := tasks[i]
		m.byID[t.ID] = &t
	}
	return m
}

func (m *memTasks) Get(_ context.Context, userID string, id uint) (*Task, error) {
	t, ok := m.byID[id]
	if !ok || t.UserID != userID {
		return nil, nil
	}
	cp := *t
	cp.CompletionHistory = slices.Clone(t.CompletionHistory)
	return &cp, nil
}

func (m *memTasks) Save(_ context.Context, t *Task) error {
	cp := *t
	cp.CompletionHistory = slices.Clone(t.CompletionHistory)
	m.byID[t.ID] = &cp
	return nil
}

type memEvents struct {
	byToken map[string]*EventRecord
}

func newMemEvents() *memEvents {
	return &memEvents{byToken: map[string]*EventRecord{}}
}

func (m *memEvents) FindByToken(_ context.Context, token string) (*EventRecord, error) {
	rec, ok := m.byToken[token]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memEvents) Create(_ context.Context, rec *EventRecord) error {
	cp := *rec
	m.byToken[rec.Token] = &cp
	return nil
}

func (m *memEvents) MarkReversed(_ context.Context, token, reversedBy string, at time.Time) error {
	rec := m.byToken[token]
	rec.ReversedAt = &at
	rec.ReversedBy = reversedBy
	return nil
}

func (m *memEvents) FindForwardForTask(_ context.Context, userID string, taskID uint, since time.Time) ([]EventRecord, error) {
	var out []EventRecord
	for _, rec := range m.byToken {
		if rec.UserID != userID || rec.Direction != DirectionForward || rec.TaskID == nil || *rec.TaskID != taskID {
			continue
		}
		if rec.OccurredAt.Before(since) {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out, nil
}

type countingRecorder struct {
	outcomes map[string]int
	granted  int
	clamps   int
	levelUps int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{outcomes: map[string]int{}}
}

func (r *countingRecorder) ContractProcessed(_ Action, outcome string) { r.outcomes[outcome]++ }
func (r *countingRecorder) XPGranted(_ string, amount int)            { r.granted += amount }
func (r *countingRecorder) Clamped()                                   { r.clamps++ }
func (r *countingRecorder) LevelUp()                                   { r.levelUps++ }

func mustDay(s string) time.Time {
	t, err := time.Parse(dayKeyFormat, s)
	if err != nil {
		panic(err)
	}
	return t
}
