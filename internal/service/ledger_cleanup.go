package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sergeiliashko/zero2prod/internal/repository"
	"github.com/sergeiliashko/zero2prod/pkg/logger"
)

// LedgerCleaner 按保留时长清理已完成的幂等账本行。
// 只删已填充快照的行；处理中的认领行永不触碰。
type LedgerCleaner struct {
	repo     repository.IdempotencyRepository
	ttl      time.Duration
	batch    int
	interval time.Duration
}

func NewLedgerCleaner(repo repository.IdempotencyRepository, ttl time.Duration, batch int, interval time.Duration) *LedgerCleaner {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	if batch <= 0 {
		batch = 500
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &LedgerCleaner{repo: repo, ttl: ttl, batch: batch, interval: interval}
}

// Start 启动清理循环；返回停止函数
func (c *LedgerCleaner) Start() func(context.Context) error {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = c.RunOnce(context.Background())
			}
		}
	}()
	return func(ctx context.Context) error { close(stop); return nil }
}

// RunOnce 执行一轮批量清理，批大小封顶避免长事务
func (c *LedgerCleaner) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-c.ttl)
	deleted, err := c.repo.DeleteCompletedBefore(ctx, cutoff, c.batch)
	if err != nil {
		logger.Error("idempotency ledger cleanup failed", zap.Error(err))
		return err
	}
	if deleted > 0 {
		logger.Info("idempotency ledger cleanup", zap.Int64("deleted", deleted))
	}
	return nil
}
