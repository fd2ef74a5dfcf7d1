package model

import "time"

// 订阅状态
const (
	SubscriptionStatusPending   = "pending_confirmation"
	SubscriptionStatusConfirmed = "confirmed"
)

// Subscription 订阅者
type Subscription struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	Email        string    `gorm:"type:varchar(320);uniqueIndex;not null"`
	Name         string    `gorm:"type:varchar(256);not null"`
	Status       string    `gorm:"type:varchar(32);index;not null"`
	SubscribedAt time.Time `gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

// SubscriptionToken 确认令牌（随订阅创建，确认时换取 subscriber_id）
type SubscriptionToken struct {
	SubscriptionToken string `gorm:"primaryKey;type:varchar(36)"`
	SubscriberID      string `gorm:"type:varchar(36);index;not null"`
	CreatedAt         time.Time
}

func (SubscriptionToken) TableName() string { return "subscription_tokens" }
