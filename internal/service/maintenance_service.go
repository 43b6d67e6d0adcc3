package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethoslog/internal/progress"
)

// ErrLedgerNotFound 用户还没有账本
var ErrLedgerNotFound = errors.New("ledger not found")

// MaintenanceService 提供运维命令使用的账本整理能力
type MaintenanceService struct {
	stack *Stack
}

func NewMaintenanceService(stack *Stack) *MaintenanceService {
	return &MaintenanceService{stack: stack}
}

// CompactReport 记录一次流水压缩的结果
type CompactReport struct {
	UserID string
	Folded int
	Total  int
}

// RecomputeReport 记录一次等级重算的结果
type RecomputeReport struct {
	UserID     string
	TotalXP    int
	Level      int
	HistorySum int
	Drift      int
}

// Ledger 只读取账本，不存在时返回 ErrLedgerNotFound
func (s *MaintenanceService) Ledger(ctx context.Context, userID string) (*progress.Ledger, error) {
	l, err := s.stack.Ledgers.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrLedgerNotFound
	}
	return l, nil
}

// CompactHistory 把早于 olderThan 的流水合并为一条汇总记录。userID 为空时处理全部用户。
func (s *MaintenanceService) CompactHistory(ctx context.Context, userID string, olderThan time.Duration) ([]CompactReport, error) {
	cutoff := s.stack.Now().UTC().Add(-olderThan)
	users, err := s.users(ctx, userID)
	if err != nil {
		return nil, err
	}

	reports := make([]CompactReport, 0, len(users))
	for _, id := range users {
		var report CompactReport
		err := s.stack.locked(id, func() error {
			return s.stack.Tx.RunInTx(ctx, func(ctx context.Context) error {
				l, err := s.Ledger(ctx, id)
				if err != nil {
					return err
				}
				folded := l.CompactHistory(cutoff)
				report = CompactReport{UserID: id, Folded: folded, Total: l.TotalXP}
				if folded == 0 {
					return nil
				}
				return s.stack.Ledgers.ReplaceHistory(ctx, l)
			})
		})
		if err != nil {
			return reports, fmt.Errorf("compact %s: %w", id, err)
		}
		if report.Folded > 0 {
			s.stack.Logger.Info("compacted xp history", "user", id, "folded", report.Folded, "cutoff", cutoff)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Recompute 重新推导等级；流水合计与总 XP 不一致时只告警不修改
func (s *MaintenanceService) Recompute(ctx context.Context, userID string) ([]RecomputeReport, error) {
	users, err := s.users(ctx, userID)
	if err != nil {
		return nil, err
	}

	reports := make([]RecomputeReport, 0, len(users))
	for _, id := range users {
		var report RecomputeReport
		err := s.stack.locked(id, func() error {
			return s.stack.Tx.RunInTx(ctx, func(ctx context.Context) error {
				l, err := s.Ledger(ctx, id)
				if err != nil {
					return err
				}
				l.Recompute()
				sum := l.HistorySum()
				report = RecomputeReport{
					UserID:     id,
					TotalXP:    l.TotalXP,
					Level:      l.Level,
					HistorySum: sum,
					Drift:      l.TotalXP - sum,
				}
				return s.stack.Ledgers.Save(ctx, l)
			})
		})
		if err != nil {
			return reports, fmt.Errorf("recompute %s: %w", id, err)
		}
		if report.Drift != 0 {
			s.stack.Logger.Warn("xp history does not match total", "user", id, "total", report.TotalXP, "history", report.HistorySum)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// PurgeEvents 删除早于 olderThan 的事件记录
func (s *MaintenanceService) PurgeEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %s", olderThan)
	}
	cutoff := s.stack.Now().UTC().Add(-olderThan)
	n, err := s.stack.Events.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.stack.Logger.Info("purged progress events", "count", n, "cutoff", cutoff)
	return n, nil
}

func (s *MaintenanceService) users(ctx context.Context, userID string) ([]string, error) {
	if userID != "" {
		return []string{userID}, nil
	}
	return s.stack.Ledgers.ListUserIDs(ctx)
}
