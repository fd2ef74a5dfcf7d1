package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sergeiliashko/zero2prod/internal/idempotency"
	"github.com/sergeiliashko/zero2prod/internal/repository"
)

var (
	// ErrClaimTimeout 等待竞争事务超时；无状态变更，可安全重试
	ErrClaimTimeout = errors.New("timed out waiting for a competing request to finish")
	// ErrNoClaim SaveResponse 被无认领调用，属调用方缺陷
	ErrNoClaim = errors.New("save response requires a valid processing claim")
)

// NextAction TryProcessing 的两种结局
type NextAction int

const (
	// NextActionStartProcessing 本次调用独占该逻辑动作：
	// 业务写入必须走 Outcome.Tx，最终调用 SaveResponse 或 Rollback
	NextActionStartProcessing NextAction = iota + 1
	// NextActionReturnSaved 动作已完成过，直接返回存储的快照
	NextActionReturnSaved
)

// Outcome 认领结果。StartProcessing 时 Tx 为未提交的认领事务，
// 账本行的唯一键锁随之持有到提交或回滚。
type Outcome struct {
	Action NextAction
	Tx     *gorm.DB
	Saved  idempotency.SavedResponse
}

// Rollback 放弃认领：整个事务回滚，认领行随之消失，
// 后续同键请求可重新发起完整动作
func (o *Outcome) Rollback() {
	if o != nil && o.Tx != nil {
		o.Tx.Rollback()
		o.Tx = nil
	}
}

// IdempotencyCoordinator 幂等协调器：认领/重放协议与事务边界的唯一所有者。
// 互斥不依赖进程内锁——未提交认领行上的唯一键冲突让数据库自己当锁管理器。
type IdempotencyCoordinator struct {
	db           *gorm.DB
	repo         repository.IdempotencyRepository
	claimTimeout time.Duration
}

func NewIdempotencyCoordinator(db *gorm.DB, repo repository.IdempotencyRepository, claimTimeout time.Duration) *IdempotencyCoordinator {
	if claimTimeout <= 0 {
		claimTimeout = 5 * time.Second
	}
	return &IdempotencyCoordinator{db: db, repo: repo, claimTimeout: claimTimeout}
}

// 持有者回滚后重新竞争认领的次数上限
const claimAttempts = 3

// TryProcessing 认领 (userID, key) 或取出已保存的响应。
//
// 认领走 insert on conflict do nothing：插入成功即成为持有者，事务
// 保持打开交还调用方；插入 0 行说明键已存在——若对方事务未提交，
// insert 本身会阻塞到对方结束，之后读快照：有则重放，无（对方回滚）
// 则换新事务重新竞争。
func (s *IdempotencyCoordinator) TryProcessing(ctx context.Context, userID string, key idempotency.Key) (*Outcome, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		tx := s.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return nil, fmt.Errorf("begin claim transaction: %w", tx.Error)
		}

		claimCtx, cancel := context.WithTimeout(ctx, s.claimTimeout)
		claimed, err := s.repo.InsertClaim(claimCtx, tx, userID, key)
		cancel()
		if err != nil {
			tx.Rollback()
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrClaimTimeout
			}
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if claimed {
			return &Outcome{Action: NextActionStartProcessing, Tx: tx}, nil
		}

		// 键已被别人完成或放弃；认领事务作废
		tx.Rollback()

		rec, err := s.repo.GetRecord(ctx, userID, key)
		if err != nil {
			return nil, fmt.Errorf("load saved response: %w", err)
		}
		if rec == nil {
			// 持有者回滚，认领行已消失：重新竞争
			continue
		}
		saved, err := idempotency.DecodeSnapshot(rec)
		if err != nil {
			return nil, fmt.Errorf("decode saved response: %w", err)
		}
		return &Outcome{Action: NextActionReturnSaved, Saved: saved}, nil
	}
	return nil, ErrClaimTimeout
}

// SaveResponse 在认领事务内回填快照并提交，返回的响应与入参相同字节。
// 每个认领事务至多调用一次；没有有效认领时立即失败。
func (s *IdempotencyCoordinator) SaveResponse(ctx context.Context, out *Outcome, userID string, key idempotency.Key, resp idempotency.SavedResponse) (idempotency.SavedResponse, error) {
	if out == nil || out.Action != NextActionStartProcessing || out.Tx == nil {
		return idempotency.SavedResponse{}, ErrNoClaim
	}
	tx := out.Tx

	statusCode, headers, body, err := idempotency.EncodeSnapshot(resp)
	if err != nil {
		out.Rollback()
		return idempotency.SavedResponse{}, err
	}
	rows, err := s.repo.SaveSnapshot(ctx, tx, userID, key, statusCode, headers, body)
	if err != nil {
		out.Rollback()
		return idempotency.SavedResponse{}, fmt.Errorf("save response snapshot: %w", err)
	}
	if rows != 1 {
		// 事务里没有本次认领的未完成账本行
		out.Rollback()
		return idempotency.SavedResponse{}, ErrNoClaim
	}
	if err := tx.Commit().Error; err != nil {
		return idempotency.SavedResponse{}, fmt.Errorf("commit claimed transaction: %w", err)
	}
	out.Tx = nil
	return resp, nil
}
