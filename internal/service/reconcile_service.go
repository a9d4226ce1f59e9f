package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/config"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/conversation"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/message"
)

// WriteResult 单条消息落库结果
type WriteResult struct {
	Decision  Decision
	MessageID uint64
}

// ReconcileService 落库写入器：去重结论 + 会话聚合字段在同一事务内生效，
// 读者永远看不到计数与消息行不一致的中间态
type ReconcileService struct {
	db    *gorm.DB
	dedup *DedupService
	retry retryPolicy
}

// NewReconcileService 创建写入器
func NewReconcileService(db *gorm.DB, dedup *DedupService, retryCfg *config.RetryConfig) *ReconcileService {
	return &ReconcileService{
		db:    db,
		dedup: dedup,
		retry: newRetryPolicy(retryCfg),
	}
}

// Apply 应用去重结论。Reject 只记日志；Accept/Supersede 写消息并在同一事务里
// 重算会话聚合。外部唯一键冲突说明有并发写入者抢先落库，不算失败，
// 由调用方重新走一次 Decide（见 ApplyCandidate）。
func (s *ReconcileService) Apply(ctx context.Context, convID uint64, res *DedupResult) (*WriteResult, error) {
	switch res.Decision {
	case DecisionReject:
		zap.L().Debug("reconcile: candidate rejected",
			zap.Uint64("conversation_id", convID),
			zap.Stringer("decision", res.Decision))
		return &WriteResult{Decision: DecisionReject}, nil
	case DecisionAccept, DecisionSupersede:
	default:
		return nil, fmt.Errorf("unknown decision %d", int(res.Decision))
	}

	m := res.Candidate
	m.ConversationID = convID

	err := s.retry.do(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if res.Decision == DecisionSupersede && res.Loser != nil {
				if err := tx.Delete(&message.Message{}, res.Loser.ID).Error; err != nil {
					return err
				}
			}
			if err := tx.Create(m).Error; err != nil {
				return err
			}
			if err := recomputeAggregates(tx, convID); err != nil {
				return err
			}
			// 败者可能挂在另一个会话下（同一 ExternalID 曾被解析到不同会话），
			// 它的聚合也要跟着重算
			if res.Loser != nil && res.Loser.ConversationID != 0 && res.Loser.ConversationID != convID {
				return recomputeAggregates(tx, res.Loser.ConversationID)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &WriteResult{Decision: res.Decision, MessageID: m.ID}, nil
}

// ApplyCandidate 判定并落库一条候选消息。并发下另一写入者可能在 Decide 和写入
// 之间抢先插入同 ExternalID 的行，此时唯一键冲突被当作重新比较的信号，
// 乐观重试而不是报错。
func (s *ReconcileService) ApplyCandidate(ctx context.Context, convID uint64, candidate *message.Message) (*WriteResult, error) {
	for attempt := 0; attempt < s.retry.maxAttempts; attempt++ {
		res, err := s.dedup.Decide(ctx, candidate)
		if err != nil {
			return nil, err
		}
		out, err := s.Apply(ctx, convID, res)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// 落库的瞬间有人先写入了同一 ExternalID，用库里最新状态重跑比较
			zap.L().Debug("reconcile: duplicated key, re-running dedup",
				zap.Uint64("conversation_id", convID))
			candidate.ID = 0
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("reconcile: dedup retry attempts exhausted for conversation %d", convID)
}

// recomputeAggregates 重算会话聚合字段（消息数 / 最近消息时间 / 预览），
// 与消息写入同事务调用。显式函数便于单测，不依赖存储层触发器。
func recomputeAggregates(tx *gorm.DB, convID uint64) error {
	var count int64
	if err := tx.Model(&message.Message{}).
		Where("conversation_id = ?", convID).
		Count(&count).Error; err != nil {
		return err
	}

	updates := map[string]interface{}{
		"message_count":        count,
		"last_message_at":      nil,
		"last_message_preview": "",
	}

	var latest message.Message
	err := tx.Where("conversation_id = ?", convID).
		Order("COALESCE(external_timestamp, created_at) DESC, id DESC").
		First(&latest).Error
	if err == nil {
		at := latest.ObservedAt()
		updates["last_message_at"] = &at
		updates["last_message_preview"] = truncatePreview(latest.Content)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return tx.Model(&conversation.Conversation{}).
		Where("id = ?", convID).
		Updates(updates).Error
}

func truncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewMaxLen {
		return content
	}
	return string(runes[:previewMaxLen])
}

// retryPolicy 统一的有界指数退避重试，替代散落各处的 ad hoc 重试循环
type retryPolicy struct {
	maxAttempts int
	baseBackoff time.Duration
}

func newRetryPolicy(cfg *config.RetryConfig) retryPolicy {
	p := retryPolicy{maxAttempts: 3, baseBackoff: 50 * time.Millisecond}
	if cfg != nil {
		if cfg.MaxAttempts > 0 {
			p.maxAttempts = cfg.MaxAttempts
		}
		if cfg.BaseBackoffMS > 0 {
			p.baseBackoff = time.Duration(cfg.BaseBackoffMS) * time.Millisecond
		}
	}
	return p
}

// do 执行 fn，瞬时错误按指数退避重试。唯一键冲突与 ctx 取消不重试，直接上抛。
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	var err error
	backoff := p.baseBackoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, context.Canceled) {
			return err
		}
		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}
