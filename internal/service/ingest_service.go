package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	radix "github.com/mediocregopher/radix/v3"
	"go.uber.org/zap"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/config"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/message"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/syncevent"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/gateway"
)

const redisEventSeenKey = "evt:seen:%s:%s" // platform, fingerprint

// IngestResult webhook 单事件处理结果
type IngestResult struct {
	Decision   string `json:"decision"` // accept / supersede / reject / suppressed / status_updated
	MessageID  uint64 `json:"message_id,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

// IngestService webhook 实时摄入：一进一出，请求内同步完成
type IngestService struct {
	convSvc   *ConversationService
	writer    *ReconcileService
	msgRepo   message.Repository
	eventRepo syncevent.Repository
	redis     radix.Client // 可为 nil，nil 时不做重复投递抑制
	ownerID   string
	suppress  int // 秒
}

// NewIngestService 创建摄入服务。ownerID 为本服务托管的账号主体标识。
func NewIngestService(
	convSvc *ConversationService,
	writer *ReconcileService,
	msgRepo message.Repository,
	eventRepo syncevent.Repository,
	redis radix.Client,
	ownerID string,
	cfg *config.WebhookConfig,
) *IngestService {
	suppress := 60
	if cfg != nil && cfg.SuppressSeconds > 0 {
		suppress = cfg.SuppressSeconds
	}
	return &IngestService{
		convSvc:   convSvc,
		writer:    writer,
		msgRepo:   msgRepo,
		eventRepo: eventRepo,
		redis:     redis,
		ownerID:   ownerID,
		suppress:  suppress,
	}
}

// HandleEvent 处理一条已解析的 webhook 事件。
// 畸形事件在解析阶段就被挡掉，这里只会收到已知类型。
func (s *IngestService) HandleEvent(ctx context.Context, platform string, ev gateway.Event) (*IngestResult, error) {
	GetMonitor().RecordWebhookEvent()

	audit := s.auditStart(ctx, platform, ev)

	var (
		out *IngestResult
		err error
	)
	switch e := ev.(type) {
	case *gateway.MessageUpsertEvent:
		out, err = s.handleUpsert(ctx, platform, e)
	case *gateway.MessageStatusEvent:
		out, err = s.handleStatus(ctx, e)
	default:
		err = &gateway.ErrMalformedEvent{Reason: "unhandled event type " + ev.Type()}
	}

	s.auditFinish(ctx, audit, err)
	return out, err
}

func (s *IngestService) handleUpsert(ctx context.Context, platform string, e *gateway.MessageUpsertEvent) (*IngestResult, error) {
	if s.suppressed(platform, e) {
		GetMonitor().RecordSuppressed()
		zap.L().Debug("webhook event suppressed as duplicate delivery",
			zap.String("external_id", e.ExternalID))
		return &IngestResult{Decision: "suppressed", ExternalID: e.ExternalID}, nil
	}

	contactKey := NormalizeContactID(e.RemoteID)
	conv, err := s.convSvc.Resolve(ctx, s.ownerID, platform, contactKey, e.SenderName)
	if err != nil {
		GetMonitor().RecordStoreError()
		return nil, err
	}

	candidate := &message.Message{
		Content:           e.Body,
		Type:              normalizeBodyType(e.BodyType),
		Direction:         message.DirectionIn,
		SenderRole:        "contact",
		SenderID:          contactKey,
		Status:            message.StatusDelivered,
		ExternalTimestamp: e.Timestamp,
		Metadata:          e.Metadata,
	}
	// 事件不带平台时间戳时，观测时间就是收到的时刻
	if e.Timestamp == nil {
		candidate.CreatedAt = time.Now()
	}
	if e.FromMe {
		candidate.Direction = message.DirectionOut
		candidate.SenderRole = "agent"
		candidate.SenderID = s.ownerID
		candidate.Status = message.StatusSent
	}
	if e.ExternalID != "" {
		id := e.ExternalID
		candidate.ExternalID = &id
	}

	res, err := s.writer.ApplyCandidate(ctx, conv.ID, candidate)
	if err != nil {
		GetMonitor().RecordStoreError()
		return nil, err
	}
	switch res.Decision {
	case DecisionAccept:
		GetMonitor().RecordAccepted()
	case DecisionSupersede:
		GetMonitor().RecordSuperseded()
	case DecisionReject:
		GetMonitor().RecordRejected()
	}
	return &IngestResult{
		Decision:   res.Decision.String(),
		MessageID:  res.MessageID,
		ExternalID: e.ExternalID,
	}, nil
}

func (s *IngestService) handleStatus(ctx context.Context, e *gateway.MessageStatusEvent) (*IngestResult, error) {
	switch e.Status {
	case message.StatusSent, message.StatusDelivered, message.StatusRead, message.StatusFailed:
	default:
		return nil, &gateway.ErrMalformedEvent{Reason: "unknown delivery status " + e.Status}
	}
	rows, err := s.msgRepo.UpdateStatusByExternalID(ctx, e.ExternalID, e.Status)
	if err != nil {
		GetMonitor().RecordStoreError()
		return nil, err
	}
	if rows == 0 {
		// 状态事件先于消息本体到达，或消息从未入库。不算错误，但要看得见。
		zap.L().Warn("status event for unknown message",
			zap.String("external_id", e.ExternalID),
			zap.String("status", e.Status))
		return &IngestResult{Decision: "status_ignored", ExternalID: e.ExternalID}, nil
	}
	return &IngestResult{Decision: "status_updated", ExternalID: e.ExternalID}, nil
}

// suppressed 网关可能重复投递同一事件，用短 TTL 的指纹键在进库前挡掉完全一致的重投。
// 指纹含内容与时间戳：同 ExternalID 但内容更新的事件不会被挡，仍走去重比较。
func (s *IngestService) suppressed(platform string, e *gateway.MessageUpsertEvent) bool {
	if s.redis == nil || e.ExternalID == "" {
		return false
	}
	raw := fmt.Sprintf("%s|%s|%s|%v", e.ExternalID, e.Body, e.Metadata, e.Timestamp)
	sum := sha1.Sum([]byte(raw))
	key := fmt.Sprintf(redisEventSeenKey, platform, hex.EncodeToString(sum[:]))

	var set string
	// SET NX EX：第一次见到返回 OK，重复投递返回空
	if err := s.redis.Do(radix.Cmd(&set, "SET", key, "1", "NX", "EX", fmt.Sprintf("%d", s.suppress))); err != nil {
		return false
	}
	return set == ""
}

func (s *IngestService) auditStart(ctx context.Context, platform string, ev gateway.Event) *syncevent.SyncEvent {
	if s.eventRepo == nil {
		return nil
	}
	e := &syncevent.SyncEvent{
		EventType: ev.Type(),
		Platform:  platform,
	}
	if up, ok := ev.(*gateway.MessageUpsertEvent); ok {
		e.ContactID = NormalizeContactID(up.RemoteID)
	}
	if err := s.eventRepo.Create(ctx, e); err != nil {
		zap.L().Warn("write event audit failed", zap.Error(err))
		return nil
	}
	return e
}

func (s *IngestService) auditFinish(ctx context.Context, e *syncevent.SyncEvent, handleErr error) {
	if e == nil {
		return
	}
	msg := ""
	if handleErr != nil {
		msg = handleErr.Error()
	}
	_ = s.eventRepo.MarkProcessed(ctx, e.ID, msg)
}
