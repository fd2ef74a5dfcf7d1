package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sergeiliashko/zero2prod/internal/idempotency"
	"github.com/sergeiliashko/zero2prod/internal/model"
)

// IdempotencyRepository 幂等账本数据访问。
// InsertClaim/SaveSnapshot 作用于调用方持有的事务，其余走独立连接。
type IdempotencyRepository interface {
	// InsertClaim 尝试认领 (userID, key)：insert on conflict do nothing。
	// 返回 true 表示本事务成为持有者；返回 false 表示键已存在——
	// 若冲突行尚未提交，insert 会先阻塞到对方事务结束。
	InsertClaim(ctx context.Context, tx *gorm.DB, userID string, key idempotency.Key) (bool, error)

	// GetRecord 读取账本行；不存在返回 (nil, nil)
	GetRecord(ctx context.Context, userID string, key idempotency.Key) (*model.IdempotencyRecord, error)

	// SaveSnapshot 在认领事务内回填快照列，返回受影响行数。
	// 只更新快照为空的行：已完成的行不可变。
	SaveSnapshot(ctx context.Context, tx *gorm.DB, userID string, key idempotency.Key, statusCode int16, headers, body []byte) (int64, error)

	// DeleteCompletedBefore 批量清理 cutoff 之前完成的账本行，返回删除数
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type idempotencyRepository struct{ db *gorm.DB }

func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

func (r *idempotencyRepository) InsertClaim(ctx context.Context, tx *gorm.DB, userID string, key idempotency.Key) (bool, error) {
	rec := &model.IdempotencyRecord{
		UserID:         userID,
		IdempotencyKey: key.String(),
		CreatedAt:      time.Now().UTC(),
	}
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *idempotencyRepository) GetRecord(ctx context.Context, userID string, key idempotency.Key) (*model.IdempotencyRecord, error) {
	var rec model.IdempotencyRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key.String()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *idempotencyRepository) SaveSnapshot(ctx context.Context, tx *gorm.DB, userID string, key idempotency.Key, statusCode int16, headers, body []byte) (int64, error) {
	res := tx.WithContext(ctx).
		Model(&model.IdempotencyRecord{}).
		Where("user_id = ? AND idempotency_key = ? AND response_status_code IS NULL", userID, key.String()).
		Updates(map[string]interface{}{
			"response_status_code": statusCode,
			"response_headers":     headers,
			"response_body":        body,
		})
	return res.RowsAffected, res.Error
}

func (r *idempotencyRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
        DELETE FROM idempotency
        WHERE (user_id, idempotency_key) IN (
            SELECT user_id, idempotency_key
            FROM idempotency
            WHERE response_status_code IS NOT NULL AND created_at < ?
            LIMIT ?
        )
    `, cutoff, limit)
	return res.RowsAffected, res.Error
}
