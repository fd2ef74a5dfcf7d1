package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sergeiliashko/zero2prod/internal/model"
)

type SubscriptionRepository interface {
	// Create 同一事务内写入待确认订阅与确认令牌
	Create(ctx context.Context, email, name, token string) (subscriberID string, err error)

	// ConfirmByToken 用令牌把订阅置为 confirmed；令牌不存在返回 (false, nil)
	ConfirmByToken(ctx context.Context, token string) (bool, error)

	CountConfirmed(ctx context.Context) (int64, error)
}

type subscriptionRepository struct{ db *gorm.DB }

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(ctx context.Context, email, name, token string) (string, error) {
	id := uuid.New().String()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := &model.Subscription{
			ID:           id,
			Email:        email,
			Name:         name,
			Status:       model.SubscriptionStatusPending,
			SubscribedAt: time.Now().UTC(),
		}
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		return tx.Create(&model.SubscriptionToken{SubscriptionToken: token, SubscriberID: id}).Error
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *subscriptionRepository) ConfirmByToken(ctx context.Context, token string) (bool, error) {
	var found bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t model.SubscriptionToken
		err := tx.Where("subscription_token = ?", token).First(&t).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return tx.Model(&model.Subscription{}).
			Where("id = ?", t.SubscriberID).
			Update("status", model.SubscriptionStatusConfirmed).Error
	})
	return found, err
}

func (r *subscriptionRepository) CountConfirmed(ctx context.Context) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("status = ?", model.SubscriptionStatusConfirmed).
		Count(&cnt).Error
	return cnt, err
}
