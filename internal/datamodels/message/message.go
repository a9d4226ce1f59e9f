package message

import (
	"context"
	"time"
)

const (
	TypeText   = "text"
	TypeMedia  = "media"
	TypeStatus = "status"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Message 消息模型。ExternalID 为平台侧消息 ID，非空时全库唯一，是去重的依据；
// 没有 ExternalID 的消息不参与去重。
type Message struct {
	ID                uint64  `gorm:"primaryKey"`
	ConversationID    uint64  `gorm:"index;not null"`
	Content           string  `gorm:"size:4096"`
	Type              string  `gorm:"size:16;not null;default:text"`
	Direction         string  `gorm:"size:8;not null"`
	SenderRole        string  `gorm:"size:16"` // contact / agent
	SenderID          string  `gorm:"size:64"`
	Status            string  `gorm:"size:16;index;default:pending"`
	ExternalID        *string `gorm:"size:128;uniqueIndex"`
	ExternalTimestamp *time.Time
	Metadata          string `gorm:"size:4096"` // 平台透传的原始 JSON
	CreatedAt         time.Time
}

// ObservedAt 去重比较用的观测时间，优先平台时间戳
func (m *Message) ObservedAt() time.Time {
	if m.ExternalTimestamp != nil {
		return *m.ExternalTimestamp
	}
	return m.CreatedAt
}

// DuplicateGroup 清理扫描出的重复组
type DuplicateGroup struct {
	ExternalID string
	Count      int64
}

// Repository 消息仓储接口
type Repository interface {
	// Create 直接插入，ExternalID 冲突时返回 gorm.ErrDuplicatedKey
	Create(ctx context.Context, m *Message) error
	GetByExternalID(ctx context.Context, externalID string) (*Message, error)
	DeleteByID(ctx context.Context, id uint64) error
	CountByConversation(ctx context.Context, conversationID uint64) (int64, error)
	LatestByConversation(ctx context.Context, conversationID uint64) (*Message, error)
	ListByConversation(ctx context.Context, conversationID uint64, afterID uint64, limit int) ([]*Message, error)
	// UpdateStatusByExternalID 返回实际更新的行数，0 表示该 ExternalID 从未入库
	UpdateStatusByExternalID(ctx context.Context, externalID, status string) (int64, error)
	// ListDuplicateExternalIDs 找出出现超过一次的 ExternalID（仅清理工具使用）
	ListDuplicateExternalIDs(ctx context.Context) ([]DuplicateGroup, error)
	ListByExternalID(ctx context.Context, externalID string) ([]*Message, error)
}
