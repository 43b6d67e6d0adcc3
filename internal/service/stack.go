package service

import (
	"log/slog"
	"time"

	"github.com/ethoslog/internal/progress"
	"github.com/ethoslog/internal/repository"
	"gorm.io/gorm"
)

// Stack 汇总进度相关的仓储、事务与协调器，供各 service 共享
type Stack struct {
	DB          *gorm.DB
	Ledgers     *repository.LedgerRepository
	Tasks       *repository.TaskRepository
	Events      *repository.EventRepository
	Workouts    *repository.WorkoutRepository
	Tx          *repository.TxManager
	Coordinator *progress.Coordinator
	Locks       *UserLocks
	Logger      *slog.Logger
	Now         func() time.Time
}

// StackOptions 配置协调器的可选依赖
type StackOptions struct {
	Rules    *progress.Rules
	Logger   *slog.Logger
	Recorder progress.Recorder
	Now      func() time.Time
}

// NewStack 基于 gdb 构造仓储与协调器
func NewStack(gdb *gorm.DB, catalog *progress.Catalog, opts StackOptions) *Stack {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Stack{
		DB:       gdb,
		Ledgers:  repository.NewLedgerRepository(gdb),
		Tasks:    repository.NewTaskRepository(gdb),
		Events:   repository.NewEventRepository(gdb),
		Workouts: repository.NewWorkoutRepository(gdb),
		Tx:       repository.NewTxManager(gdb),
		Locks:    NewUserLocks(),
		Logger:   logger,
		Now:      now,
	}

	coordOpts := []progress.Option{
		progress.WithTransactor(s.Tx),
		progress.WithLogger(logger),
		progress.WithClock(now),
		progress.WithRecorder(opts.Recorder),
	}
	if opts.Rules != nil {
		coordOpts = append(coordOpts, progress.WithRules(*opts.Rules))
	}
	s.Coordinator = progress.NewCoordinator(s.Ledgers, s.Tasks, s.Events, catalog, coordOpts...)
	return s
}

// locked 在用户锁内执行 fn，同一用户的写操作串行
func (s *Stack) locked(userID string, fn func() error) error {
	unlock := s.Locks.Lock(userID)
	defer unlock()
	return fn()
}
