package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sergeiliashko/zero2prod/internal/idempotency"
	"github.com/sergeiliashko/zero2prod/internal/model"
	"github.com/sergeiliashko/zero2prod/internal/repository"
	"github.com/sergeiliashko/zero2prod/pkg/logger"
)

// IssueDraft 待发布的期刊内容
type IssueDraft struct {
	Title       string
	TextContent string
	HTMLContent string
}

// RenderFunc 由传输层提供：给定新期刊 id，构造要持久化并返回的响应快照。
// 首次执行与重放都只经快照输出，字节一致由此保证。
type RenderFunc func(issueID string) idempotency.SavedResponse

// PublishService 发布期刊：认领事务内落地期刊 + 投递队列 + 响应快照
type PublishService struct {
	coordinator *IdempotencyCoordinator
	issueRepo   repository.IssueRepository
}

func NewPublishService(coordinator *IdempotencyCoordinator, issueRepo repository.IssueRepository) *PublishService {
	return &PublishService{coordinator: coordinator, issueRepo: issueRepo}
}

// Publish 对 (userID, key) 至多执行一次发布。
// replayed=true 表示返回的是此前保存的快照，本次没有执行业务写入。
func (s *PublishService) Publish(ctx context.Context, userID string, key idempotency.Key, draft IssueDraft, render RenderFunc) (resp idempotency.SavedResponse, replayed bool, err error) {
	out, err := s.coordinator.TryProcessing(ctx, userID, key)
	if err != nil {
		return idempotency.SavedResponse{}, false, err
	}
	if out.Action == NextActionReturnSaved {
		return out.Saved, true, nil
	}

	issueID := uuid.New().String()
	issue := &model.NewsletterIssue{
		ID:          issueID,
		Title:       draft.Title,
		TextContent: draft.TextContent,
		HTMLContent: draft.HTMLContent,
		PublishedAt: time.Now().UTC(),
	}
	if err := s.issueRepo.CreateIssue(ctx, out.Tx, issue); err != nil {
		out.Rollback()
		return idempotency.SavedResponse{}, false, fmt.Errorf("insert newsletter issue: %w", err)
	}
	queued, err := s.issueRepo.EnqueueDelivery(ctx, out.Tx, issueID)
	if err != nil {
		out.Rollback()
		return idempotency.SavedResponse{}, false, fmt.Errorf("enqueue issue delivery: %w", err)
	}

	saved, err := s.coordinator.SaveResponse(ctx, out, userID, key, render(issueID))
	if err != nil {
		// SaveResponse 失败路径已回滚认领事务
		return idempotency.SavedResponse{}, false, err
	}
	logger.Info("newsletter issue published",
		zap.String("issue_id", issueID),
		zap.Int64("queued_deliveries", queued))
	return saved, false, nil
}
