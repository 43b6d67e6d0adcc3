package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/ethoslog/internal/progress"
	"github.com/google/uuid"
)

var (
	// ErrEventNotFound 指定 token 没有对应事件，或事件属于其他用户
	ErrEventNotFound = errors.New("event not found")
	// ErrAchievementNotFound 成就 id 不在目录中
	ErrAchievementNotFound = errors.New("achievement not found")
)

// 成就在用户视角下的状态
const (
	AchievementClaimed = "claimed"
	AchievementPending = "pending"
	AchievementLocked  = "locked"
)

// ProgressService 提供账本查询、体重记录、成就领取与通用 contract 提交
type ProgressService struct {
	stack *Stack
}

func NewProgressService(stack *Stack) *ProgressService {
	return &ProgressService{stack: stack}
}

// ProgressView 是进度页面的汇总数据
type ProgressView struct {
	UserID            string
	Level             int
	TotalXP           int
	NextLevelXP       int
	XPToNextLevel     int
	Categories        []CategoryView
	LatestBodyweight  *progress.BodyweightEntry
	LongestStreak     int
	TasksCompleted    int
	WorkoutsCompleted int
	Achievements      []string
	Pending           []string
}

type CategoryView struct {
	Category      progress.Category
	Level         int
	XP            int
	NextLevelXP   int
	XPToNextLevel int
}

// AchievementStatus 是目录条目加上用户的领取状态
type AchievementStatus struct {
	Definition  progress.Definition
	Status      string
	Eligibility progress.Eligibility
}

// Overview 返回用户进度汇总，第一次访问时创建空账本
func (s *ProgressService) Overview(ctx context.Context, userID string) (*ProgressView, error) {
	l, err := s.stack.Coordinator.Ledger(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := &ProgressView{
		UserID:            l.UserID,
		Level:             l.Level,
		TotalXP:           l.TotalXP,
		NextLevelXP:       l.NextLevelXP(),
		XPToNextLevel:     l.XPToNextLevel(),
		LongestStreak:     l.LongestStreak,
		TasksCompleted:    l.TasksCompleted,
		WorkoutsCompleted: l.WorkoutsCompleted,
		Achievements:      slices.Clone(l.Achievements),
		Pending:           slices.Clone(l.PendingAchievements),
	}
	for _, c := range progress.Categories {
		cp := l.Categories[c]
		level := l.CategoryLevel(c)
		next := progress.CategoryXPForLevel(level + 1)
		view.Categories = append(view.Categories, CategoryView{
			Category:      c,
			Level:         level,
			XP:            cp.XP,
			NextLevelXP:   next,
			XPToNextLevel: max(next-cp.XP, 0),
		})
	}
	if weights := l.BodyweightNewestFirst(); len(weights) > 0 {
		latest := weights[0]
		view.LatestBodyweight = &latest
	}
	return view, nil
}

// History 返回 XP 流水，最新的在前
func (s *ProgressService) History(ctx context.Context, userID string, limit int) ([]progress.Transaction, error) {
	l, err := s.stack.Coordinator.Ledger(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(l.History)
	slices.SortStableFunc(out, func(a, b progress.Transaction) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return int(b.ID) - int(a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Bodyweight 返回体重记录，最新的在前
func (s *ProgressService) Bodyweight(ctx context.Context, userID string) ([]progress.BodyweightEntry, error) {
	l, err := s.stack.Coordinator.Ledger(ctx, userID)
	if err != nil {
		return nil, err
	}
	return l.BodyweightNewestFirst(), nil
}

// LogBodyweight 记录体重，并检查因此解锁的成就
func (s *ProgressService) LogBodyweight(ctx context.Context, userID string, value float64, unit string, date time.Time) (progress.BodyweightEntry, progress.AwardResult, error) {
	var (
		entry progress.BodyweightEntry
		award progress.AwardResult
	)
	err := s.stack.locked(userID, func() error {
		return s.stack.Tx.RunInTx(ctx, func(ctx context.Context) error {
			l, err := s.stack.Coordinator.Ledger(ctx, userID)
			if err != nil {
				return err
			}
			entry, err = l.AddBodyweight(value, unit, date)
			if err != nil {
				return err
			}
			award, err = progress.Evaluate(l, s.stack.Coordinator.Catalog(), s.stack.Now())
			if err != nil {
				return err
			}
			return s.stack.Ledgers.Save(ctx, l)
		})
	})
	if err != nil {
		return progress.BodyweightEntry{}, progress.AwardResult{}, err
	}
	return entry, award, nil
}

// Achievements 列出目录中全部成就及用户当前状态
func (s *ProgressService) Achievements(ctx context.Context, userID string) ([]AchievementStatus, error) {
	l, err := s.stack.Coordinator.Ledger(ctx, userID)
	if err != nil {
		return nil, err
	}
	defs := s.stack.Coordinator.Catalog().All()
	out := make([]AchievementStatus, 0, len(defs))
	for _, def := range defs {
		status := AchievementLocked
		switch {
		case progress.IsUnlocked(l, def.ID):
			status = AchievementClaimed
		case progress.IsPending(l, def.ID):
			status = AchievementPending
		}
		out = append(out, AchievementStatus{
			Definition:  def,
			Status:      status,
			Eligibility: progress.CheckEligibility(l, def),
		})
	}
	return out, nil
}

// Claim 提交 achievement_claimed
func (s *ProgressService) Claim(ctx context.Context, userID, achievementID, token string) (*progress.Result, error) {
	achievementID = strings.TrimSpace(achievementID)
	if _, ok := s.stack.Coordinator.Catalog().Get(achievementID); !ok {
		return nil, ErrAchievementNotFound
	}
	if token == "" {
		token = uuid.NewString()
	}
	return s.Apply(ctx, progress.Contract{
		Token:     token,
		UserID:    userID,
		Source:    progress.SourceClaims,
		Action:    string(progress.ActionAchievementClaimed),
		Timestamp: s.stack.Now().UTC(),
		Metadata:  map[string]any{progress.MetaAchievementID: achievementID},
	})
}

// Apply 在用户锁内把 contract 交给协调器
func (s *ProgressService) Apply(ctx context.Context, contract progress.Contract) (*progress.Result, error) {
	if contract.Timestamp.IsZero() {
		contract.Timestamp = s.stack.Now().UTC()
	}
	var res *progress.Result
	err := s.stack.locked(contract.UserID, func() error {
		return s.stack.Tx.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			res, err = s.stack.Coordinator.Apply(ctx, contract)
			if err != nil {
				return err
			}
			// 训练事件被冲正后，训练记录同步标记为已撤销
			if action, _ := progress.ParseAction(contract.Action); action == progress.ActionReverseWorkoutCompleted && res.OriginalToken != "" {
				return s.stack.Workouts.MarkReversedByToken(ctx, res.OriginalToken, contract.Timestamp)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Reverse 撤销 originalToken 对应的正向事件
func (s *ProgressService) Reverse(ctx context.Context, userID, originalToken, reverseToken string) (*progress.Result, error) {
	rec, err := s.stack.Events.FindByToken(ctx, originalToken)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.UserID != userID {
		return nil, ErrEventNotFound
	}
	if reverseToken == "" {
		reverseToken = uuid.NewString()
	}
	meta := map[string]any{progress.MetaOriginalToken: originalToken}
	if rec.TaskID != nil {
		meta[progress.MetaTaskID] = *rec.TaskID
	}
	if rec.SubjectDate != nil {
		meta[progress.MetaDate] = rec.SubjectDate.Format(dateLayout)
	}
	return s.Apply(ctx, progress.Contract{
		Token:    reverseToken,
		UserID:   userID,
		Source:   rec.Source,
		Action:   string(rec.Action.Reverse()),
		Metadata: meta,
	})
}

// Events 返回最近的 contract 事件
func (s *ProgressService) Events(ctx context.Context, userID string, limit int) ([]progress.EventRecord, error) {
	return s.stack.Events.ListByUser(ctx, userID, limit)
}
