package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/message"
)

// Decision 去重结论
type Decision int

const (
	// DecisionAccept 无同 ExternalID 的已存消息，直接写入
	DecisionAccept Decision = iota
	// DecisionSupersede 候选者胜出，替换已存消息
	DecisionSupersede
	// DecisionReject 已存消息胜出，丢弃候选者
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionSupersede:
		return "supersede"
	case DecisionReject:
		return "reject"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// DedupResult 去重判定结果。Supersede 时 Loser 为待删除的已存行。
type DedupResult struct {
	Decision  Decision
	Candidate *message.Message
	Loser     *message.Message
}

// DedupService 消息去重判定核心。仅依赖消息仓储的按 ExternalID 查询。
type DedupService struct {
	msgRepo message.Repository
}

// NewDedupService 创建去重服务
func NewDedupService(msgRepo message.Repository) *DedupService {
	return &DedupService{msgRepo: msgRepo}
}

// betterThan 比较链：观测时间更新者胜 → 内容更长者胜 → 元数据更大者胜。
// 全部相等返回 false（已存者/先到者保留）。
// 各处清理脚本的比较口径并不一致，这里把该顺序作为唯一成文策略。
func betterThan(a, b *message.Message) bool {
	at, bt := a.ObservedAt(), b.ObservedAt()
	if !at.Equal(bt) {
		return at.After(bt)
	}
	if len(a.Content) != len(b.Content) {
		return len(a.Content) > len(b.Content)
	}
	return len(a.Metadata) > len(b.Metadata)
}

// Decide 对单条候选消息做判定。无 ExternalID 的消息没有去重身份，一律 Accept。
func (s *DedupService) Decide(ctx context.Context, candidate *message.Message) (*DedupResult, error) {
	if candidate.ExternalID == nil || *candidate.ExternalID == "" {
		return &DedupResult{Decision: DecisionAccept, Candidate: candidate}, nil
	}
	stored, err := s.msgRepo.GetByExternalID(ctx, *candidate.ExternalID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return &DedupResult{Decision: DecisionAccept, Candidate: candidate}, nil
	}
	if betterThan(candidate, stored) {
		zap.L().Debug("dedup: candidate supersedes stored message",
			zap.String("external_id", *candidate.ExternalID),
			zap.Uint64("stored_id", stored.ID))
		return &DedupResult{Decision: DecisionSupersede, Candidate: candidate, Loser: stored}, nil
	}
	return &DedupResult{Decision: DecisionReject, Candidate: candidate, Loser: stored}, nil
}

// PickSurvivors 批量模式：按 ExternalID 分组，组内先用同一条比较链选出唯一幸存者，
// 再进入写入流程，避免每组 N-1 次无谓写放大。无 ExternalID 的候选原样通过。
// 返回顺序保持输入顺序（以每组第一次出现的位置为准）。
func PickSurvivors(batch []*message.Message) []*message.Message {
	out := make([]*message.Message, 0, len(batch))
	index := make(map[string]int) // externalID -> out 中的下标
	for _, m := range batch {
		if m.ExternalID == nil || *m.ExternalID == "" {
			out = append(out, m)
			continue
		}
		id := *m.ExternalID
		at, seen := index[id]
		if !seen {
			index[id] = len(out)
			out = append(out, m)
			continue
		}
		if betterThan(m, out[at]) {
			out[at] = m
		}
	}
	return out
}
