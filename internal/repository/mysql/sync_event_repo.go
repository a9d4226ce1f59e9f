package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/syncevent"
)

type syncEventRepo struct {
	db *gorm.DB
}

// NewSyncEventRepository 创建审计流水仓储
func NewSyncEventRepository(db *gorm.DB) syncevent.Repository {
	return &syncEventRepo{db: db}
}

func (r *syncEventRepo) Create(ctx context.Context, e *syncevent.SyncEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *syncEventRepo) MarkProcessed(ctx context.Context, id uint64, errMsg string) error {
	return r.db.WithContext(ctx).Model(&syncevent.SyncEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed": true,
			"error":     errMsg,
		}).Error
}

func (r *syncEventRepo) ListRecent(ctx context.Context, limit int) ([]*syncevent.SyncEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var list []*syncevent.SyncEvent
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&list).Error
	return list, err
}
