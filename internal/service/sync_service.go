package service

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"
	"time"

	radix "github.com/mediocregopher/radix/v3"
	"go.uber.org/zap"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/config"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/conversation"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/message"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/syncevent"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/gateway"
)

const redisSyncCursorKey = "sync:cursor:%d" // conversationID

// SyncJob 一次联系人历史同步任务（MQ 消息体）
type SyncJob struct {
	OwnerID     string `json:"owner_id"`
	Platform    string `json:"platform"`
	ContactID   string `json:"contact_id"` // 平台侧原始标识，未归一化
	ContactName string `json:"contact_name,omitempty"`
}

// ItemError 单条消息级错误，累计进报告，不中断整次运行
type ItemError struct {
	ExternalID string `json:"external_id,omitempty"`
	Err        string `json:"error"`
}

// SyncReport 同步运行报告
type SyncReport struct {
	ConversationID uint64      `json:"conversation_id"`
	Pages          int         `json:"pages"`
	Accepted       int64       `json:"accepted"`
	Superseded     int64       `json:"superseded"`
	Rejected       int64       `json:"rejected"`
	Errors         []ItemError `json:"errors,omitempty"`
}

// SyncService 批量历史同步编排器。逐页拉取网关历史，经去重/写入管线落库；
// 单条错误只累计，页间支持协作式取消，页处理互不持锁。
type SyncService struct {
	convSvc   *ConversationService
	convRepo  conversation.Repository
	eventRepo syncevent.Repository
	writer    *ReconcileService
	source    gateway.PageSource
	redis     radix.Client // 可为 nil
	pageSize  int
	workers   int
}

// NewSyncService 创建同步服务
func NewSyncService(
	convSvc *ConversationService,
	convRepo conversation.Repository,
	eventRepo syncevent.Repository,
	writer *ReconcileService,
	source gateway.PageSource,
	redis radix.Client,
	cfg *config.SyncConfig,
) *SyncService {
	pageSize, workers := 100, 4
	if cfg != nil {
		if cfg.PageSize > 0 {
			pageSize = cfg.PageSize
		}
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
	}
	return &SyncService{
		convSvc:   convSvc,
		convRepo:  convRepo,
		eventRepo: eventRepo,
		writer:    writer,
		source:    source,
		redis:     redis,
		pageSize:  pageSize,
		workers:   workers,
	}
}

// SyncContact 跑完一个联系人的历史同步。
// 致命错误（网关不可达、ctx 取消）提前终止，已完成的页不回滚；
// 返回的报告里带有累计的单条错误。
func (s *SyncService) SyncContact(ctx context.Context, job *SyncJob) (*SyncReport, error) {
	contactKey := NormalizeContactID(job.ContactID)
	conv, err := s.convSvc.Resolve(ctx, job.OwnerID, job.Platform, contactKey, job.ContactName)
	if err != nil {
		return nil, err
	}

	GetMonitor().RecordSyncRun()
	report := &SyncReport{ConversationID: conv.ID}
	now := time.Now()
	_ = s.convRepo.UpdateSyncStatus(ctx, conv.ID, conversation.SyncStatusRunning, now)

	cursor := s.loadCursor(conv.ID)
	runErr := s.runPages(ctx, job, conv.ID, cursor, report)

	status := conversation.SyncStatusDone
	if runErr != nil {
		status = conversation.SyncStatusFailed
	}
	_ = s.convRepo.UpdateSyncStatus(ctx, conv.ID, status, time.Now())
	s.audit(ctx, job, runErr, report)

	zap.L().Info("sync run finished",
		zap.Uint64("conversation_id", conv.ID),
		zap.Int("pages", report.Pages),
		zap.Int64("accepted", report.Accepted),
		zap.Int64("superseded", report.Superseded),
		zap.Int64("rejected", report.Rejected),
		zap.Int("item_errors", len(report.Errors)),
		zap.Error(runErr))
	return report, runErr
}

func (s *SyncService) runPages(ctx context.Context, job *SyncJob, convID uint64, cursor string, report *SyncReport) error {
	for {
		// 页间检查取消，单页是独立的工作单元
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.source.FetchPage(ctx, job.ContactID, cursor, s.pageSize)
		if err != nil {
			if errors.Is(err, gateway.ErrSourceUnavailable) {
				return err
			}
			return fmt.Errorf("fetch page: %w", err)
		}
		report.Pages++

		candidates := make([]*message.Message, 0, len(page.Records))
		for _, rec := range page.Records {
			candidates = append(candidates, candidateFromRecord(rec))
		}
		s.reconcilePage(ctx, convID, candidates, report)

		if page.NextCursor == "" {
			s.clearCursor(convID)
			return nil
		}
		cursor = page.NextCursor
		s.saveCursor(convID, cursor)
	}
}

// reconcilePage 落一页。组内先选幸存者，再按 ExternalID 分片进有界 worker 池：
// 同一 ExternalID 永远落在同一个 worker 上，不同 ExternalID 可以完全并行，
// 完成顺序不影响最终状态。
func (s *SyncService) reconcilePage(ctx context.Context, convID uint64, candidates []*message.Message, report *SyncReport) {
	survivors := PickSurvivors(candidates)

	shards := make([][]*message.Message, s.workers)
	for _, m := range survivors {
		idx := 0
		if m.ExternalID != nil && *m.ExternalID != "" {
			idx = int(crc32.ChecksumIEEE([]byte(*m.ExternalID))) % s.workers
		}
		shards[idx] = append(shards[idx], m)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		wg.Add(1)
		go func(items []*message.Message) {
			defer wg.Done()
			for _, m := range items {
				res, err := s.writer.ApplyCandidate(ctx, convID, m)
				mu.Lock()
				if err != nil {
					report.Errors = append(report.Errors, ItemError{
						ExternalID: externalIDOf(m),
						Err:        err.Error(),
					})
					GetMonitor().RecordSyncItemError()
					mu.Unlock()
					continue
				}
				switch res.Decision {
				case DecisionAccept:
					report.Accepted++
				case DecisionSupersede:
					report.Superseded++
				case DecisionReject:
					report.Rejected++
				}
				mu.Unlock()
			}
		}(shard)
	}
	wg.Wait()
}

func candidateFromRecord(rec gateway.HistoryRecord) *message.Message {
	m := &message.Message{
		Content:           rec.Body,
		Type:              normalizeBodyType(rec.BodyType),
		Direction:         message.DirectionIn,
		SenderRole:        "contact",
		Status:            message.StatusDelivered,
		ExternalTimestamp: rec.Timestamp,
		Metadata:          rec.Metadata,
	}
	// 没有平台时间戳的记录以接收时间作为观测时间，落库前就得定下来，
	// 否则去重比较拿到的是零值时间
	if rec.Timestamp == nil {
		m.CreatedAt = time.Now()
	}
	if rec.FromMe {
		m.Direction = message.DirectionOut
		m.SenderRole = "agent"
		m.Status = message.StatusSent
	}
	if rec.ExternalID != "" {
		id := rec.ExternalID
		m.ExternalID = &id
	}
	return m
}

func normalizeBodyType(t string) string {
	switch t {
	case message.TypeMedia, message.TypeStatus:
		return t
	default:
		return message.TypeText
	}
}

func externalIDOf(m *message.Message) string {
	if m.ExternalID == nil {
		return ""
	}
	return *m.ExternalID
}

func (s *SyncService) audit(ctx context.Context, job *SyncJob, runErr error, report *SyncReport) {
	if s.eventRepo == nil {
		return
	}
	e := &syncevent.SyncEvent{
		EventType: "sync.run",
		Platform:  job.Platform,
		ContactID: NormalizeContactID(job.ContactID),
	}
	if err := s.eventRepo.Create(ctx, e); err != nil {
		zap.L().Warn("write sync audit failed", zap.Error(err))
		return
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	} else if n := len(report.Errors); n > 0 {
		msg = fmt.Sprintf("%d item errors", n)
	}
	_ = s.eventRepo.MarkProcessed(ctx, e.ID, msg)
}

func (s *SyncService) loadCursor(convID uint64) string {
	if s.redis == nil {
		return ""
	}
	var cursor string
	_ = s.redis.Do(radix.Cmd(&cursor, "GET", fmt.Sprintf(redisSyncCursorKey, convID)))
	return cursor
}

func (s *SyncService) saveCursor(convID uint64, cursor string) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Do(radix.FlatCmd(nil, "SETEX", fmt.Sprintf(redisSyncCursorKey, convID), 86400, cursor))
}

func (s *SyncService) clearCursor(convID uint64) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Do(radix.Cmd(nil, "DEL", fmt.Sprintf(redisSyncCursorKey, convID)))
}
