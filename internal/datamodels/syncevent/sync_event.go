package syncevent

import (
	"context"
	"time"
)

// SyncEvent 事件审计流水，一条外部事件/同步批次写一行，追加后只允许标记处理结果
type SyncEvent struct {
	ID        uint64    `gorm:"primaryKey"`
	EventType string    `gorm:"size:32;index;not null"`
	Platform  string    `gorm:"size:32;index"`
	ContactID string    `gorm:"size:64;index"`
	Processed bool      `gorm:"index;not null;default:false"`
	Error     string    `gorm:"size:512"`
	CreatedAt time.Time `gorm:"index"`
}

// Repository 审计流水仓储接口
type Repository interface {
	Create(ctx context.Context, e *SyncEvent) error
	MarkProcessed(ctx context.Context, id uint64, errMsg string) error
	ListRecent(ctx context.Context, limit int) ([]*SyncEvent, error)
}
