package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/sergeiliashko/zero2prod/internal/model"
)

type IssueRepository interface {
	// CreateIssue 在调用方事务内写入期刊行
	CreateIssue(ctx context.Context, tx *gorm.DB, issue *model.NewsletterIssue) error

	// EnqueueDelivery 在同一事务内为全部确认订阅者各写一行投递队列。
	// 单条 INSERT ... SELECT，select 与 insert 之间没有读写竞态窗口。
	EnqueueDelivery(ctx context.Context, tx *gorm.DB, issueID string) (int64, error)

	GetIssue(ctx context.Context, id string) (*model.NewsletterIssue, error)

	// DequeueEntry 在调用方事务内锁定一条待投递行；队列为空返回 (nil, nil)。
	DequeueEntry(ctx context.Context, tx *gorm.DB) (*model.DeliveryQueueEntry, error)

	// DeleteEntry 投递成功后在同一事务内删除该行
	DeleteEntry(ctx context.Context, tx *gorm.DB, issueID, email string) error

	CountQueued(ctx context.Context, issueID string) (int64, error)
}

type issueRepository struct{ db *gorm.DB }

func NewIssueRepository(db *gorm.DB) IssueRepository {
	return &issueRepository{db: db}
}

func (r *issueRepository) CreateIssue(ctx context.Context, tx *gorm.DB, issue *model.NewsletterIssue) error {
	return tx.WithContext(ctx).Create(issue).Error
}

func (r *issueRepository) EnqueueDelivery(ctx context.Context, tx *gorm.DB, issueID string) (int64, error) {
	res := tx.WithContext(ctx).Exec(`
        INSERT INTO issue_delivery_queue (newsletter_issue_id, subscriber_email)
        SELECT ?, email
        FROM subscriptions
        WHERE status = ?
    `, issueID, model.SubscriptionStatusConfirmed)
	return res.RowsAffected, res.Error
}

func (r *issueRepository) GetIssue(ctx context.Context, id string) (*model.NewsletterIssue, error) {
	var issue model.NewsletterIssue
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&issue).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func (r *issueRepository) DequeueEntry(ctx context.Context, tx *gorm.DB) (*model.DeliveryQueueEntry, error) {
	q := `
        SELECT newsletter_issue_id, subscriber_email
        FROM issue_delivery_queue
        LIMIT 1`
	// sqlite（测试）不认识行锁语法
	if tx.Dialector.Name() == "postgres" {
		q += `
        FOR UPDATE SKIP LOCKED`
	}
	var entries []model.DeliveryQueueEntry
	if err := tx.WithContext(ctx).Raw(q).Scan(&entries).Error; err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (r *issueRepository) DeleteEntry(ctx context.Context, tx *gorm.DB, issueID, email string) error {
	return tx.WithContext(ctx).
		Where("newsletter_issue_id = ? AND subscriber_email = ?", issueID, email).
		Delete(&model.DeliveryQueueEntry{}).Error
}

func (r *issueRepository) CountQueued(ctx context.Context, issueID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.DeliveryQueueEntry{}).
		Where("newsletter_issue_id = ?", issueID).
		Count(&cnt).Error
	return cnt, err
}
