package service

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/message"
)

// DuplicateReport 一个重复组的清理结论
type DuplicateReport struct {
	ExternalID string
	Total      int
	SurvivorID uint64
	LoserIDs   []uint64
}

// CleanupService 管理性重复清理。面向唯一索引上线前遗留的重复数据，
// 幸存者的选择与摄入管线用同一条比较链。
type CleanupService struct {
	db      *gorm.DB
	msgRepo message.Repository
}

// NewCleanupService 创建清理服务
func NewCleanupService(db *gorm.DB, msgRepo message.Repository) *CleanupService {
	return &CleanupService{db: db, msgRepo: msgRepo}
}

// Scan 扫描重复的 ExternalID，对每组按比较链选出幸存者。只读不改。
func (s *CleanupService) Scan(ctx context.Context) ([]DuplicateReport, error) {
	groups, err := s.msgRepo.ListDuplicateExternalIDs(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]DuplicateReport, 0, len(groups))
	for _, g := range groups {
		rows, err := s.msgRepo.ListByExternalID(ctx, g.ExternalID)
		if err != nil {
			return nil, err
		}
		if len(rows) < 2 {
			continue
		}
		survivor := rows[0]
		for _, m := range rows[1:] {
			if betterThan(m, survivor) {
				survivor = m
			}
		}
		r := DuplicateReport{
			ExternalID: g.ExternalID,
			Total:      len(rows),
			SurvivorID: survivor.ID,
		}
		for _, m := range rows {
			if m.ID != survivor.ID {
				r.LoserIDs = append(r.LoserIDs, m.ID)
			}
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Purge 清理重复组。confirm 为 false 时只返回报告（dry-run，默认行为），
// 为 true 时逐组删除败者并重算所属会话聚合。
func (s *CleanupService) Purge(ctx context.Context, confirm bool) ([]DuplicateReport, error) {
	reports, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if !confirm {
		return reports, nil
	}

	for _, r := range reports {
		rept := r
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			convIDs := map[uint64]struct{}{}
			for _, id := range rept.LoserIDs {
				var m message.Message
				if err := tx.First(&m, id).Error; err != nil {
					return err
				}
				convIDs[m.ConversationID] = struct{}{}
				if err := tx.Delete(&message.Message{}, id).Error; err != nil {
					return err
				}
			}
			for convID := range convIDs {
				if err := recomputeAggregates(tx, convID); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return reports, err
		}
		zap.L().Info("duplicate group purged",
			zap.String("external_id", rept.ExternalID),
			zap.Uint64("survivor_id", rept.SurvivorID),
			zap.Int("losers", len(rept.LoserIDs)))
	}
	return reports, nil
}
