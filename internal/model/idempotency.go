package model

import "time"

// IdempotencyRecord 幂等账本：复合主键 (user_id, idempotency_key)。
// 认领时插入（快照列为 NULL），完成时在同一事务内填充快照，之后不再变更。
type IdempotencyRecord struct {
	UserID         string    `gorm:"primaryKey;type:varchar(36)"`
	IdempotencyKey string    `gorm:"primaryKey;type:varchar(256)"`
	CreatedAt      time.Time `gorm:"not null"`

	// 响应快照；三列同时为 NULL（处理中）或同时非 NULL（已完成）
	ResponseStatusCode *int16 `gorm:"type:smallint"`
	ResponseHeaders    []byte
	ResponseBody       []byte
}

func (IdempotencyRecord) TableName() string { return "idempotency" }
