package progress

import (
	"context"
	"time"
)

// Direction 区分事件日志中的正向奖励与冲正
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"
)

// EventRecord 是每个 contract token 落库一次的幂等与审计记录
type EventRecord struct {
	Token      string
	UserID     string
	Source     string
	Action     Action
	Direction  Direction
	OccurredAt time.Time

	TaskID      *uint
	SubjectDate *time.Time
	Category    Category

	XPAwarded    int
	LeveledUp    bool
	Level        int
	Achievements []string
	Metadata     map[string]any

	OriginalToken string
	ReversedAt    *time.Time
	ReversedBy    string
}

func (r *EventRecord) Reversed() bool {
	return r.ReversedAt != nil
}

// LedgerRepository 读写账本，用户尚无账本时 Get 返回 (nil, nil)
type LedgerRepository interface {
	Get(ctx context.Context, userID string) (*Ledger, error)
	Save(ctx context.Context, ledger *Ledger) error
}

// TaskRepository 按所属用户读写任务，不存在时 Get 返回 (nil, nil)
type TaskRepository interface {
	Get(ctx context.Context, userID string, id uint) (*Task, error)
	Save(ctx context.Context, task *Task) error
}

// EventRepository 持久化事件记录。FindByToken 不存在时返回 (nil, nil)，
// FindForwardForTask 按时间倒序返回
type EventRepository interface {
	FindByToken(ctx context.Context, token string) (*EventRecord, error)
	Create(ctx context.Context, rec *EventRecord) error
	MarkReversed(ctx context.Context, token, reversedBy string, at time.Time) error
	FindForwardForTask(ctx context.Context, userID string, taskID uint, since time.Time) ([]EventRecord, error)
}

// Transactor 执行 fn，fn 内使用该 ctx 的仓储调用一起提交或回滚
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type directTransactor struct{}

func (directTransactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Recorder 接收协调器处理结果，通常用于指标
type Recorder interface {
	ContractProcessed(action Action, outcome string)
	XPGranted(source string, amount int)
	Clamped()
	LevelUp()
}

type nopRecorder struct{}

func (nopRecorder) ContractProcessed(Action, string) {}
func (nopRecorder) XPGranted(string, int)            {}
func (nopRecorder) Clamped()                         {}
func (nopRecorder) LevelUp()                         {}
