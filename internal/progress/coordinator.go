package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	outcomeApplied   = "applied"
	outcomeDuplicate = "duplicate"
	outcomeNoop      = "noop"
	outcomeFallback  = "fallback"
	outcomeFailed    = "failed"

	// WarningNoOriginal 冲正找不到原事件、只更新了任务状态时附带的警告
	WarningNoOriginal = "no original event found"
)

// Result 是协调器处理一个 contract 后的结果
type Result struct {
	Success              bool
	XPAwarded            int
	LeveledUp            bool
	CurrentLevel         int
	AchievementsUnlocked []Definition
	AchievementXP        int

	Token         string
	OriginalToken string
	ReverseToken  string

	Duplicate   bool
	AlreadyDone bool
	Warning     string
	Message     string
}

// Coordinator 把各模块提交的 contract 转换为账本、任务和事件的变更
type Coordinator struct {
	ledgers LedgerRepository
	tasks   TaskRepository
	events  EventRepository
	tx      Transactor
	catalog *Catalog

	rules    Rules
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

type Option func(*Coordinator)

func WithRules(r Rules) Option {
	return func(c *Coordinator) { c.rules = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

func WithTransactor(t Transactor) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.tx = t
		}
	}
}

// WithClock 替换 time.Now，主要用于测试
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCoordinator(ledgers LedgerRepository, tasks TaskRepository, events EventRepository, catalog *Catalog, opts ...Option) *Coordinator {
	c := &Coordinator{
		ledgers:  ledgers,
		tasks:    tasks,
		events:   events,
		catalog:  catalog,
		tx:       directTransactor{},
		rules:    DefaultRules(),
		logger:   slog.Default(),
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Catalog() *Catalog {
	return c.catalog
}

// Apply 校验并处理一个 contract，其全部状态变更在同一事务中提交
func (c *Coordinator) Apply(ctx context.Context, contract Contract) (*Result, error) {
	action, err := contract.Validate()
	if err != nil {
		c.recorder.ContractProcessed(Action(contract.Action), outcomeFailed)
		c.logger.Warn("rejected progress contract", "token", contract.Token, "action", contract.Action, "error", err)
		return nil, err
	}

	var res *Result
	err = c.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if action.IsReverse() {
			res, err = c.reverse(ctx, action, contract)
		} else {
			res, err = c.forward(ctx, action, contract)
		}
		return err
	})
	if err != nil {
		err = classify(err)
		c.recorder.ContractProcessed(action, outcomeFailed)
		if CodeOf(err) == CodeInternal {
			c.logger.Error("progress contract failed", "token", contract.Token, "action", action, "user", contract.UserID, "error", err)
		} else {
			c.logger.Info("progress contract refused", "token", contract.Token, "action", action, "code", CodeOf(err), "error", err)
		}
		return nil, err
	}

	c.recorder.ContractProcessed(action, outcomeOf(res))
	c.logger.Debug("progress contract processed",
		"token", contract.Token,
		"action", action,
		"user", contract.UserID,
		"xp", res.XPAwarded,
		"level", res.CurrentLevel,
		"outcome", outcomeOf(res),
	)
	return res, nil
}

func outcomeOf(res *Result) string {
	switch {
	case res.Duplicate:
		return outcomeDuplicate
	case res.Warning != "":
		return outcomeFallback
	case res.AlreadyDone:
		return outcomeNoop
	default:
		return outcomeApplied
	}
}

// Ledger 返回用户账本，首次访问时创建
func (c *Coordinator) Ledger(ctx context.Context, userID string) (*Ledger, error) {
	if userID == "" {
		return nil, validationError("user id is required")
	}
	var l *Ledger
	err := c.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		l, err = c.loadLedger(ctx, userID)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	return l, nil
}

func (c *Coordinator) CheckEligibility(ctx context.Context, userID, achievementID string) (Eligibility, error) {
	def, ok := c.catalog.Get(achievementID)
	if !ok {
		return Eligibility{}, notFoundError("achievement %s not found", achievementID)
	}
	l, err := c.Ledger(ctx, userID)
	if err != nil {
		return Eligibility{}, err
	}
	return CheckEligibility(l, def), nil
}

func (c *Coordinator) IsUnlocked(ctx context.Context, userID, achievementID string) (bool, error) {
	if _, ok := c.catalog.Get(achievementID); !ok {
		return false, notFoundError("achievement %s not found", achievementID)
	}
	l, err := c.Ledger(ctx, userID)
	if err != nil {
		return false, err
	}
	return IsUnlocked(l, achievementID), nil
}

func (c *Coordinator) loadLedger(ctx context.Context, userID string) (*Ledger, error) {
	l, err := c.ledgers.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if l != nil {
		return l, nil
	}
	l = NewLedger(userID)
	if err := c.ledgers.Save(ctx, l); err != nil {
		// 并发的首次请求可能已经建好账本，唯一约束冲突后重读一次
		existing, getErr := c.ledgers.Get(ctx, userID)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create ledger: %w", err)
	}
	return l, nil
}

func (c *Coordinator) loadTask(ctx context.Context, userID string, id uint) (*Task, error) {
	task, err := c.tasks.Get(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if task == nil {
		return nil, notFoundError("task %d not found", id)
	}
	return task, nil
}

// asOf 取今天；打卡日期在未来时取该日期
func (c *Coordinator) asOf(date time.Time) time.Time {
	today := Normalize(c.now())
	if date.After(today) {
		return date
	}
	return today
}

// grant 是动作换算出的 XP，尚未写入账本
type grant struct {
	amount      int
	category    Category
	description string
	alreadyDone bool
	message     string
}

func (c *Coordinator) forward(ctx context.Context, action Action, contract Contract) (*Result, error) {
	existing, err := c.events.FindByToken(ctx, contract.Token)
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	if existing != nil {
		if existing.UserID != contract.UserID || existing.Direction != DirectionForward || existing.Action != action {
			return nil, validationError("token %s was already used by another contract", contract.Token)
		}
		return c.replay(existing), nil
	}

	ledger, err := c.loadLedger(ctx, contract.UserID)
	if err != nil {
		return nil, err
	}
	now := c.now().UTC()
	rec := &EventRecord{
		Token:      contract.Token,
		UserID:     contract.UserID,
		Source:     contract.Source,
		Action:     action,
		Direction:  DirectionForward,
		OccurredAt: contract.Timestamp.UTC(),
		Metadata:   map[string]any{},
	}

	var g grant
	var claimed AwardResult
	switch action {
	case ActionTaskCompleted:
		g, err = c.resolveTask(ctx, contract, ledger, rec)
	case ActionWorkoutCompleted:
		g, err = c.resolveWorkout(contract, ledger, rec)
	case ActionAchievementClaimed:
		g, claimed, err = c.resolveClaim(contract, ledger, rec, now)
	default:
		err = validationError("unsupported action %s", action)
	}
	if err != nil {
		return nil, err
	}
	if g.alreadyDone {
		return &Result{
			Success:      true,
			CurrentLevel: ledger.Level,
			Token:        contract.Token,
			AlreadyDone:  true,
			Message:      g.message,
		}, nil
	}

	leveledUp := claimed.LeveledUp
	if g.amount > 0 {
		change, err := ledger.AddXP(g.amount, contract.Source, g.category, g.description, now)
		if err != nil {
			return nil, err
		}
		leveledUp = leveledUp || change.LeveledUp
	}
	xp := g.amount
	if action == ActionAchievementClaimed {
		xp = claimed.XPAwarded
	}

	evaluated, err := Evaluate(ledger, c.catalog, now)
	if err != nil {
		return nil, fmt.Errorf("evaluate achievements: %w", err)
	}
	leveledUp = leveledUp || evaluated.LeveledUp
	unlocked := append(claimed.Unlocked, evaluated.Unlocked...)

	if err := c.ledgers.Save(ctx, ledger); err != nil {
		return nil, fmt.Errorf("save ledger: %w", err)
	}

	rec.XPAwarded = xp
	rec.LeveledUp = leveledUp
	rec.Level = ledger.Level
	for _, def := range unlocked {
		rec.Achievements = append(rec.Achievements, def.ID)
	}
	if evaluated.XPAwarded > 0 {
		rec.Metadata["achievementXp"] = evaluated.XPAwarded
	}
	if err := c.events.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("record event: %w", err)
	}

	if xp > 0 {
		c.recorder.XPGranted(contract.Source, xp)
	}
	if evaluated.XPAwarded > 0 {
		c.recorder.XPGranted(SourceAchievement, evaluated.XPAwarded)
	}
	if leveledUp {
		c.recorder.LevelUp()
		c.logger.Info("level up", "user", contract.UserID, "level", ledger.Level)
	}

	return &Result{
		Success:              true,
		XPAwarded:            xp,
		LeveledUp:            leveledUp,
		CurrentLevel:         ledger.Level,
		AchievementsUnlocked: unlocked,
		AchievementXP:        evaluated.XPAwarded,
		Token:                contract.Token,
		Message:              g.message,
	}, nil
}

func (c *Coordinator) resolveTask(ctx context.Context, contract Contract, ledger *Ledger, rec *EventRecord) (grant, error) {
	taskID, err := contract.metaTaskID()
	if err != nil {
		return grant{}, err
	}
	date, err := contract.metaDate()
	if err != nil {
		return grant{}, err
	}
	task, err := c.loadTask(ctx, contract.UserID, taskID)
	if err != nil {
		return grant{}, err
	}
	if !IsDue(*task, date) {
		return grant{}, validationError("task %d is not due on %s", taskID, dayKey(date))
	}

	tr := CompleteOn(task, date, c.asOf(date))
	if !tr.Changed {
		return grant{alreadyDone: true, message: fmt.Sprintf("%s already completed on %s", task.Name, dayKey(date))}, nil
	}
	if err := c.tasks.Save(ctx, task); err != nil {
		return grant{}, fmt.Errorf("save task: %w", err)
	}

	base, bonus := c.rules.TaskXP(task.CurrentStreak)
	ledger.TasksCompleted++
	if task.BestStreak > ledger.LongestStreak {
		ledger.LongestStreak = task.BestStreak
	}

	rec.TaskID = &taskID
	rec.SubjectDate = &date
	rec.Category = task.Category
	rec.Metadata[MetaTaskID] = taskID
	rec.Metadata[MetaDate] = dayKey(date)
	rec.Metadata["baseXp"] = base
	rec.Metadata["streakBonusXp"] = bonus
	rec.Metadata["streak"] = task.CurrentStreak

	msg := fmt.Sprintf("completed %s", task.Name)
	if bonus > 0 {
		msg = fmt.Sprintf("completed %s, %d day streak bonus", task.Name, task.CurrentStreak)
	}
	return grant{
		amount:      base + bonus,
		category:    task.Category,
		description: msg,
		message:     msg,
	}, nil
}

func (c *Coordinator) resolveWorkout(contract Contract, ledger *Ledger, rec *EventRecord) (grant, error) {
	category, err := ParseCategory(contract.metaString(MetaCategory))
	if err != nil {
		return grant{}, err
	}
	if category == CategoryNone {
		return grant{}, validationError("workout category is required")
	}
	sets, ok, err := contract.metaInt(MetaSets)
	if err != nil {
		return grant{}, err
	}
	if !ok || sets <= 0 {
		return grant{}, validationError("workout sets must be a positive integer")
	}
	bonus, _, err := contract.metaInt(MetaBonusXP)
	if err != nil {
		return grant{}, err
	}
	if bonus < 0 {
		return grant{}, validationError("workout bonusXp must not be negative")
	}

	ledger.WorkoutsCompleted++
	rec.Category = category
	rec.Metadata[MetaCategory] = string(category)
	rec.Metadata[MetaSets] = sets
	rec.Metadata[MetaBonusXP] = bonus

	desc := contract.metaString(MetaDescription)
	if desc == "" {
		desc = fmt.Sprintf("%s workout, %d sets", category, sets)
	}
	return grant{
		amount:      c.rules.WorkoutXP(sets) + bonus,
		category:    category,
		description: desc,
		message:     desc,
	}, nil
}

func (c *Coordinator) resolveClaim(contract Contract, ledger *Ledger, rec *EventRecord, now time.Time) (grant, AwardResult, error) {
	id := contract.metaString(MetaAchievementID)
	if id == "" {
		return grant{}, AwardResult{}, validationError("metadata %s is required", MetaAchievementID)
	}
	def, ok := c.catalog.Get(id)
	if !ok {
		return grant{}, AwardResult{}, notFoundError("achievement %s not found", id)
	}
	res, err := Claim(ledger, def, now)
	if err != nil {
		return grant{}, AwardResult{}, err
	}
	if len(res.AlreadyUnlocked) > 0 {
		return grant{alreadyDone: true, message: fmt.Sprintf("achievement %s already claimed", id)}, AwardResult{}, nil
	}
	rec.Metadata[MetaAchievementID] = id
	return grant{message: fmt.Sprintf("claimed %s", def.Title)}, res, nil
}

// replay 为已处理过的 token 重建结果
func (c *Coordinator) replay(rec *EventRecord) *Result {
	res := &Result{
		Success:       true,
		XPAwarded:     rec.XPAwarded,
		LeveledUp:     rec.LeveledUp,
		CurrentLevel:  rec.Level,
		Token:         rec.Token,
		OriginalToken: rec.OriginalToken,
		Duplicate:     true,
		Message:       "contract already processed",
	}
	for _, id := range rec.Achievements {
		if def, ok := c.catalog.Get(id); ok {
			res.AchievementsUnlocked = append(res.AchievementsUnlocked, def)
		}
	}
	return res
}

func (c *Coordinator) reverse(ctx context.Context, action Action, contract Contract) (*Result, error) {
	forward := action.Forward()
	original, err := c.findOriginal(ctx, forward, contract)
	if err != nil {
		return nil, err
	}
	if original != nil && original.Reversed() {
		return nil, reversalError(nil, "event %s was already reversed by %s", original.Token, original.ReversedBy)
	}

	existing, err := c.events.FindByToken(ctx, contract.Token)
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	if existing != nil {
		return nil, validationError("token %s was already used by another contract", contract.Token)
	}

	if original == nil {
		return c.fallbackUncomplete(ctx, contract)
	}

	ledger, err := c.loadLedger(ctx, contract.UserID)
	if err != nil {
		return nil, err
	}
	now := c.now().UTC()

	switch forward {
	case ActionTaskCompleted:
		if original.TaskID != nil && original.SubjectDate != nil {
			task, err := c.tasks.Get(ctx, contract.UserID, *original.TaskID)
			if err != nil {
				return nil, reversalError(err, "load task %d", *original.TaskID)
			}
			// 任务可能已被删除，XP 仍然冲正
			if task != nil {
				if UncompleteOn(task, *original.SubjectDate, c.asOf(*original.SubjectDate)).Changed {
					if err := c.tasks.Save(ctx, task); err != nil {
						return nil, reversalError(err, "save task %d", task.ID)
					}
				}
			}
		}
		ledger.TasksCompleted = max(0, ledger.TasksCompleted-1)
	case ActionWorkoutCompleted:
		ledger.WorkoutsCompleted = max(0, ledger.WorkoutsCompleted-1)
	}

	var change LevelChange
	if original.XPAwarded > 0 {
		change, err = ledger.ReverseXP(original.XPAwarded, contract.Source, original.Category, "reversal of "+original.Token, now)
		if err != nil {
			return nil, reversalError(err, "reverse xp of %s", original.Token)
		}
	}
	if change.Clamped {
		c.recorder.Clamped()
		c.logger.Warn("reversal clamped at zero xp",
			"user", contract.UserID,
			"original", original.Token,
			"requested", original.XPAwarded,
			"shortfall", change.Shortfall,
		)
	}
	if err := c.ledgers.Save(ctx, ledger); err != nil {
		return nil, reversalError(err, "save ledger")
	}
	if err := c.events.MarkReversed(ctx, original.Token, contract.Token, now); err != nil {
		return nil, reversalError(err, "mark %s reversed", original.Token)
	}

	rec := &EventRecord{
		Token:         contract.Token,
		UserID:        contract.UserID,
		Source:        contract.Source,
		Action:        action,
		Direction:     DirectionReverse,
		OccurredAt:    contract.Timestamp.UTC(),
		TaskID:        original.TaskID,
		SubjectDate:   original.SubjectDate,
		Category:      original.Category,
		XPAwarded:     -change.Amount,
		Level:         ledger.Level,
		OriginalToken: original.Token,
		Metadata:      map[string]any{},
	}
	if change.Clamped {
		rec.Metadata["clamped"] = true
		rec.Metadata["shortfall"] = change.Shortfall
	}
	if err := c.events.Create(ctx, rec); err != nil {
		return nil, reversalError(err, "record reversal")
	}

	return &Result{
		Success:       true,
		XPAwarded:     -change.Amount,
		CurrentLevel:  ledger.Level,
		Token:         contract.Token,
		OriginalToken: original.Token,
		ReverseToken:  contract.Token,
		Message:       fmt.Sprintf("reversed %s", original.Token),
	}, nil
}

// findOriginal 查找冲正对应的正向事件：优先按 token，任务类事件再在回溯窗口内
// 找同一任务同一天最近的一次完成。记录与错误都为 nil 表示没有匹配
func (c *Coordinator) findOriginal(ctx context.Context, forward Action, contract Contract) (*EventRecord, error) {
	if token := contract.metaString(MetaOriginalToken); token != "" {
		rec, err := c.events.FindByToken(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("find event: %w", err)
		}
		if rec == nil || rec.UserID != contract.UserID {
			return nil, notFoundError("no event recorded for token %s", token)
		}
		if rec.Direction != DirectionForward || rec.Action != forward {
			return nil, validationError("token %s does not reference a %s event", token, forward)
		}
		return rec, nil
	}

	if forward != ActionTaskCompleted {
		return nil, validationError("metadata %s is required to reverse %s", MetaOriginalToken, forward)
	}
	taskID, err := contract.metaTaskID()
	if err != nil {
		return nil, err
	}
	date, err := contract.metaDate()
	if err != nil {
		return nil, err
	}
	since := c.now().UTC().Add(-c.rules.ReversalLookback)
	candidates, err := c.events.FindForwardForTask(ctx, contract.UserID, taskID, since)
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	for i := range candidates {
		cand := candidates[i]
		if cand.SubjectDate != nil && Normalize(*cand.SubjectDate).Equal(date) {
			return &cand, nil
		}
	}
	return nil, nil
}

// fallbackUncomplete 找不到正向事件时直接清除打卡，不改动 XP
func (c *Coordinator) fallbackUncomplete(ctx context.Context, contract Contract) (*Result, error) {
	taskID, err := contract.metaTaskID()
	if err != nil {
		return nil, err
	}
	date, err := contract.metaDate()
	if err != nil {
		return nil, err
	}
	task, err := c.loadTask(ctx, contract.UserID, taskID)
	if err != nil {
		return nil, err
	}
	if UncompleteOn(task, date, c.asOf(date)).Changed {
		if err := c.tasks.Save(ctx, task); err != nil {
			return nil, fmt.Errorf("save task: %w", err)
		}
	}
	ledger, err := c.loadLedger(ctx, contract.UserID)
	if err != nil {
		return nil, err
	}

	rec := &EventRecord{
		Token:       contract.Token,
		UserID:      contract.UserID,
		Source:      contract.Source,
		Action:      ActionReverseTaskCompleted,
		Direction:   DirectionReverse,
		OccurredAt:  contract.Timestamp.UTC(),
		TaskID:      &taskID,
		SubjectDate: &date,
		Category:    task.Category,
		Level:       ledger.Level,
		Metadata:    map[string]any{"fallback": true},
	}
	if err := c.events.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("record reversal: %w", err)
	}

	c.logger.Warn("reversal without original event",
		"user", contract.UserID,
		"task", taskID,
		"date", dayKey(date),
		"token", contract.Token,
	)
	return &Result{
		Success:      true,
		CurrentLevel: ledger.Level,
		Token:        contract.Token,
		ReverseToken: contract.Token,
		Warning:      WarningNoOriginal,
		Message:      fmt.Sprintf("uncompleted %s without xp change", task.Name),
	}, nil
}

// IsCode 判断 err 是否携带指定错误码
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
