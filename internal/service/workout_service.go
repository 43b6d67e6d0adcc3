package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethoslog/internal/db"
	"github.com/ethoslog/internal/progress"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// ErrWorkoutNotFound 训练记录不存在或已撤销
var ErrWorkoutNotFound = errors.New("workout not found")

// WorkoutService 记录训练并通过 workout_completed contract 发放 XP
type WorkoutService struct {
	stack  *Stack
	policy *bluemonday.Policy
}

// WorkoutInput 是一次训练的录入数据
type WorkoutInput struct {
	Name        string
	Category    string
	Sets        int
	BonusXP     int
	PerformedAt time.Time
	Token       string
}

func NewWorkoutService(stack *Stack) *WorkoutService {
	return &WorkoutService{stack: stack, policy: bluemonday.StrictPolicy()}
}

// Log 保存训练记录；重复 token 返回已有记录与原结果
func (s *WorkoutService) Log(ctx context.Context, userID string, input WorkoutInput) (*db.Workout, *progress.Result, error) {
	token := strings.TrimSpace(input.Token)
	if token == "" {
		token = uuid.NewString()
	}
	performed := input.PerformedAt
	if performed.IsZero() {
		performed = s.stack.Now()
	}
	name := strings.TrimSpace(s.policy.Sanitize(strings.TrimSpace(input.Name)))

	contract := progress.Contract{
		Token:     token,
		UserID:    userID,
		Source:    progress.SourceWorkouts,
		Action:    string(progress.ActionWorkoutCompleted),
		Timestamp: s.stack.Now().UTC(),
		Metadata: map[string]any{
			progress.MetaCategory: input.Category,
			progress.MetaSets:     input.Sets,
			progress.MetaBonusXP:  input.BonusXP,
		},
	}
	if name != "" {
		contract.Metadata[progress.MetaDescription] = name
	}

	var (
		workout *db.Workout
		res     *progress.Result
	)
	err := s.stack.locked(userID, func() error {
		return s.stack.Tx.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			res, err = s.stack.Coordinator.Apply(ctx, contract)
			if err != nil {
				return err
			}
			if res.Duplicate {
				workout, err = s.stack.Workouts.FindByToken(ctx, token)
				return err
			}
			category, _ := progress.ParseCategory(input.Category)
			workout = &db.Workout{
				UserID:      userID,
				Name:        name,
				Category:    string(category),
				Sets:        input.Sets,
				BonusXP:     input.BonusXP,
				XPAwarded:   res.XPAwarded,
				PerformedAt: performed.UTC(),
				Token:       token,
			}
			return s.stack.Workouts.Create(ctx, workout)
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return workout, res, nil
}

// List 返回未撤销的训练记录
func (s *WorkoutService) List(ctx context.Context, userID string, limit int) ([]db.Workout, error) {
	return s.stack.Workouts.List(ctx, userID, false, limit)
}

// Delete 撤销训练：冲正对应事件并标记记录
func (s *WorkoutService) Delete(ctx context.Context, userID string, id uint) (*progress.Result, error) {
	var res *progress.Result
	err := s.stack.locked(userID, func() error {
		return s.stack.Tx.RunInTx(ctx, func(ctx context.Context) error {
			workout, err := s.stack.Workouts.Get(ctx, userID, id)
			if err != nil {
				return err
			}
			if workout == nil || workout.ReversedAt != nil {
				return ErrWorkoutNotFound
			}
			// 事件已被单独冲正时只补标记录
			rec, err := s.stack.Events.FindByToken(ctx, workout.Token)
			if err != nil {
				return err
			}
			if rec != nil && rec.Reversed() {
				res = &progress.Result{Success: true, AlreadyDone: true, OriginalToken: workout.Token, Message: "workout already reversed"}
				return s.stack.Workouts.MarkReversed(ctx, workout.ID, s.stack.Now())
			}
			res, err = s.stack.Coordinator.Apply(ctx, progress.Contract{
				Token:     uuid.NewString(),
				UserID:    userID,
				Source:    progress.SourceWorkouts,
				Action:    string(progress.ActionReverseWorkoutCompleted),
				Timestamp: s.stack.Now().UTC(),
				Metadata:  map[string]any{progress.MetaOriginalToken: workout.Token},
			})
			if err != nil {
				return err
			}
			return s.stack.Workouts.MarkReversed(ctx, workout.ID, s.stack.Now())
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
