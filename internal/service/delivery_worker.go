package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sergeiliashko/zero2prod/internal/email"
	"github.com/sergeiliashko/zero2prod/internal/repository"
	"github.com/sergeiliashko/zero2prod/pkg/logger"
)

// DeliveryWorker 消费 issue_delivery_queue 并投递邮件。
// 每条投递在独立事务内：锁定队列行 → 发送 → 删除行 → 提交；
// 发送失败只回滚，行留在队列里等下一轮（至少一次投递）。
type DeliveryWorker struct {
	db           *gorm.DB
	issueRepo    repository.IssueRepository
	sender       email.Sender
	workers      int
	claimLimit   int
	pollInterval time.Duration
}

func NewDeliveryWorker(db *gorm.DB, issueRepo repository.IssueRepository, sender email.Sender, workers, claimLimit int, pollInterval time.Duration) *DeliveryWorker {
	if workers <= 0 {
		workers = 4
	}
	if claimLimit <= 0 {
		claimLimit = 64
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &DeliveryWorker{db: db, issueRepo: issueRepo, sender: sender, workers: workers, claimLimit: claimLimit, pollInterval: pollInterval}
}

// Start 启动若干 worker 轮询队列；返回停止函数
func (w *DeliveryWorker) Start() func(context.Context) error {
	stop := make(chan struct{})
	for i := 0; i < w.workers; i++ {
		go w.loop(stop)
	}
	return func(ctx context.Context) error { close(stop); return nil }
}

func (w *DeliveryWorker) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := w.ProcessBatch(context.Background()); err != nil {
				logger.Error("delivery batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessBatch 每次最多投递 claimLimit 条；队列空了提前返回
func (w *DeliveryWorker) ProcessBatch(ctx context.Context) error {
	for i := 0; i < w.claimLimit; i++ {
		delivered, err := w.deliverOne(ctx)
		if err != nil {
			return err
		}
		if !delivered {
			return nil
		}
	}
	return nil
}

func (w *DeliveryWorker) deliverOne(ctx context.Context) (bool, error) {
	delivered := false
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := w.issueRepo.DequeueEntry(ctx, tx)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		issue, err := w.issueRepo.GetIssue(ctx, entry.NewsletterIssueID)
		if err != nil {
			return err
		}
		if issue == nil {
			// 队列行与期刊同事务写入，走到这里说明数据被外部动过；丢弃该行
			logger.Warn("delivery entry references missing issue",
				zap.String("issue_id", entry.NewsletterIssueID))
			delivered = true
			return w.issueRepo.DeleteEntry(ctx, tx, entry.NewsletterIssueID, entry.SubscriberEmail)
		}
		if err := w.sender.Send(ctx, entry.SubscriberEmail, issue.Title, issue.HTMLContent, issue.TextContent); err != nil {
			logger.Warn("newsletter delivery failed, will retry",
				zap.String("issue_id", entry.NewsletterIssueID),
				zap.String("email", entry.SubscriberEmail),
				zap.Error(err))
			return err
		}
		delivered = true
		return w.issueRepo.DeleteEntry(ctx, tx, entry.NewsletterIssueID, entry.SubscriberEmail)
	})
	if err != nil {
		return false, err
	}
	return delivered, nil
}
