package conversation

import (
	"context"
	"time"
)

const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

const (
	SyncStatusNever   = "never"
	SyncStatusRunning = "running"
	SyncStatusDone    = "done"
	SyncStatusFailed  = "failed"
)

// Conversation 会话模型，(owner, platform, contact) 三元组全局唯一
type Conversation struct {
	ID                 uint64 `gorm:"primaryKey"`
	OwnerID            string `gorm:"size:64;not null;uniqueIndex:uk_owner_platform_contact"`
	Platform           string `gorm:"size:32;not null;uniqueIndex:uk_owner_platform_contact"`
	ContactID          string `gorm:"size:64;not null;uniqueIndex:uk_owner_platform_contact"` // 归一化后的联系人标识
	ContactName        string `gorm:"size:128"`
	Status             string `gorm:"size:16;index;not null;default:active"`
	MessageCount       int64  `gorm:"not null;default:0"`
	LastMessageAt      *time.Time
	LastMessagePreview string `gorm:"size:128"`
	SyncStatus         string `gorm:"size:16;default:never"`
	SyncedAt           *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Key 会话唯一键
type Key struct {
	OwnerID   string
	Platform  string
	ContactID string
}

// Repository 会话仓储接口
type Repository interface {
	GetByID(ctx context.Context, id uint64) (*Conversation, error)
	GetByKey(ctx context.Context, key Key) (*Conversation, error)
	// CreateIfAbsent 原子的 insert-if-absent，返回落库后的会话（已存在则返回已有行）
	CreateIfAbsent(ctx context.Context, c *Conversation) (*Conversation, error)
	UpdateName(ctx context.Context, id uint64, name string) error
	UpdateSyncStatus(ctx context.Context, id uint64, status string, at time.Time) error
	ListAll(ctx context.Context) ([]*Conversation, error)
}
