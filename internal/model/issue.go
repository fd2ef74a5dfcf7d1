package model

import "time"

// NewsletterIssue 期刊（发布一次创建一行，之后只读）
type NewsletterIssue struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	Title       string    `gorm:"type:text;not null"`
	TextContent string    `gorm:"type:text;not null"`
	HTMLContent string    `gorm:"type:text;not null"`
	PublishedAt time.Time `gorm:"not null"`
}

func (NewsletterIssue) TableName() string { return "newsletter_issues" }
