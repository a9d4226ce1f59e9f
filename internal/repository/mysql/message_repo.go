package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/message"
)

type messageRepo struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息仓储
func NewMessageRepository(db *gorm.DB) message.Repository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(ctx context.Context, m *message.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *messageRepo) GetByExternalID(ctx context.Context, externalID string) (*message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *messageRepo) DeleteByID(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&message.Message{}, id).Error
}

func (r *messageRepo) CountByConversation(ctx context.Context, conversationID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&message.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, err
}

func (r *messageRepo) LatestByConversation(ctx context.Context, conversationID uint64) (*message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("COALESCE(external_timestamp, created_at) DESC, id DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *messageRepo) ListByConversation(ctx context.Context, conversationID uint64, afterID uint64, limit int) ([]*message.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var list []*message.Message
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Limit(limit)
	if afterID > 0 {
		q = q.Where("id > ?", afterID)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *messageRepo) UpdateStatusByExternalID(ctx context.Context, externalID, status string) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&message.Message{}).
		Where("external_id = ?", externalID).
		Update("status", status)
	return tx.RowsAffected, tx.Error
}

func (r *messageRepo) ListDuplicateExternalIDs(ctx context.Context) ([]message.DuplicateGroup, error) {
	var groups []message.DuplicateGroup
	err := r.db.WithContext(ctx).Model(&message.Message{}).
		Select("external_id, COUNT(*) AS count").
		Where("external_id IS NOT NULL").
		Group("external_id").
		Having("COUNT(*) > 1").
		Scan(&groups).Error
	return groups, err
}

func (r *messageRepo) ListByExternalID(ctx context.Context, externalID string) ([]*message.Message, error) {
	var list []*message.Message
	err := r.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		Order("id ASC").
		Find(&list).Error
	return list, err
}
