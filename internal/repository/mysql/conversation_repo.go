package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/conversation"
)

type conversationRepo struct {
	db *gorm.DB
}

// NewConversationRepository 创建会话仓储
func NewConversationRepository(db *gorm.DB) conversation.Repository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) GetByID(ctx context.Context, id uint64) (*conversation.Conversation, error) {
	var c conversation.Conversation
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *conversationRepo) GetByKey(ctx context.Context, key conversation.Key) (*conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND platform = ? AND contact_id = ?", key.OwnerID, key.Platform, key.ContactID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateIfAbsent 依赖 (owner, platform, contact) 唯一索引做原子 insert-if-absent，
// 冲突时什么都不做，随后重读已有行。并发下同一键至多创建一行。
func (r *conversationRepo) CreateIfAbsent(ctx context.Context, c *conversation.Conversation) (*conversation.Conversation, error) {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "owner_id"}, {Name: "platform"}, {Name: "contact_id"},
		},
		DoNothing: true,
	}).Create(c).Error; err != nil {
		return nil, err
	}
	// 再次查询，覆盖冲突时 ID 未回填的情况
	return r.GetByKey(ctx, conversation.Key{
		OwnerID:   c.OwnerID,
		Platform:  c.Platform,
		ContactID: c.ContactID,
	})
}

func (r *conversationRepo) UpdateName(ctx context.Context, id uint64, name string) error {
	return r.db.WithContext(ctx).Model(&conversation.Conversation{}).
		Where("id = ?", id).
		Update("contact_name", name).Error
}

func (r *conversationRepo) UpdateSyncStatus(ctx context.Context, id uint64, status string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&conversation.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_status": status,
			"synced_at":   at,
		}).Error
}

func (r *conversationRepo) ListAll(ctx context.Context) ([]*conversation.Conversation, error) {
	var list []*conversation.Conversation
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
