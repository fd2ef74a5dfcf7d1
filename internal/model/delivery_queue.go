package model

// DeliveryQueueEntry 投递队列（outbox）：每个确认订阅者一行，
// 与期刊在同一事务内写入，由后台 worker 消费后删除
type DeliveryQueueEntry struct {
	NewsletterIssueID string `gorm:"primaryKey;type:varchar(36)"`
	SubscriberEmail   string `gorm:"primaryKey;type:varchar(320)"`
}

func (DeliveryQueueEntry) TableName() string { return "issue_delivery_queue" }
