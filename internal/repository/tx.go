package repository

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// TxManager 把 gorm 事务放进 context，同一 ctx 下的仓储调用共享事务。
type TxManager struct {
	db *gorm.DB
}

func NewTxManager(gdb *gorm.DB) *TxManager {
	return &TxManager{db: gdb}
}

// RunInTx 开启事务执行 fn；ctx 中已有事务时直接复用，不嵌套。
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn 返回 ctx 中的事务连接，没有事务时返回带 ctx 的 gdb。
func Conn(ctx context.Context, gdb *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return gdb.WithContext(ctx)
}
