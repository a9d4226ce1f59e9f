package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	radix "github.com/mediocregopher/radix/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/conversation"
)

const (
	redisConvIDKey   = "conv:id:%s:%s:%s" // owner, platform, contactID
	convCacheTTLSecs = 600
	previewMaxLen    = 120
)

// ConversationService 会话解析：(owner, platform, contact) -> 唯一会话
type ConversationService struct {
	convRepo conversation.Repository
	redis    radix.Client // 可为 nil，nil 时直接走库
}

// NewConversationService 创建会话服务
func NewConversationService(convRepo conversation.Repository, redis radix.Client) *ConversationService {
	return &ConversationService{convRepo: convRepo, redis: redis}
}

// Resolve 查找或创建会话。contactKey 必须是归一化后的键。
// 创建路径走 insert-if-absent，并发下同一键至多建一行。
func (s *ConversationService) Resolve(ctx context.Context, owner, platform, contactKey, contactName string) (*conversation.Conversation, error) {
	key := conversation.Key{OwnerID: owner, Platform: platform, ContactID: contactKey}

	if id, ok := s.cachedID(key); ok {
		c, err := s.convRepo.GetByID(ctx, id)
		if err == nil {
			s.maybeUpgradeName(ctx, c, contactName)
			return c, nil
		}
		// 缓存指向的行不存在（被管理工具清掉），穿透回库
	}

	c, err := s.convRepo.GetByKey(ctx, key)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("resolve conversation: %w", err)
		}
		c, err = s.convRepo.CreateIfAbsent(ctx, &conversation.Conversation{
			OwnerID:     owner,
			Platform:    platform,
			ContactID:   contactKey,
			ContactName: contactName,
			Status:      conversation.StatusActive,
			SyncStatus:  conversation.SyncStatusNever,
		})
		if err != nil {
			return nil, fmt.Errorf("resolve conversation: %w", err)
		}
		zap.L().Info("conversation created",
			zap.String("owner", owner),
			zap.String("platform", platform),
			zap.String("contact", contactKey))
	}

	s.cacheID(key, c.ID)
	s.maybeUpgradeName(ctx, c, contactName)
	return c, nil
}

// maybeUpgradeName 新名字更丰富时升级存量名字：存量为空或等于裸号码，
// 或新名字比存量更长
func (s *ConversationService) maybeUpgradeName(ctx context.Context, c *conversation.Conversation, name string) {
	name = strings.TrimSpace(name)
	if name == "" || name == c.ContactName || name == c.ContactID {
		return
	}
	if c.ContactName != "" && c.ContactName != c.ContactID && len(name) <= len(c.ContactName) {
		return
	}
	if err := s.convRepo.UpdateName(ctx, c.ID, name); err != nil {
		zap.L().Warn("update contact name failed", zap.Uint64("conversation_id", c.ID), zap.Error(err))
		return
	}
	c.ContactName = name
}

func (s *ConversationService) cachedID(key conversation.Key) (uint64, bool) {
	if s.redis == nil {
		return 0, false
	}
	k := fmt.Sprintf(redisConvIDKey, key.OwnerID, key.Platform, key.ContactID)
	var raw string
	if err := s.redis.Do(radix.Cmd(&raw, "GET", k)); err != nil || raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (s *ConversationService) cacheID(key conversation.Key, id uint64) {
	if s.redis == nil {
		return
	}
	k := fmt.Sprintf(redisConvIDKey, key.OwnerID, key.Platform, key.ContactID)
	_ = s.redis.Do(radix.FlatCmd(nil, "SETEX", k, convCacheTTLSecs, id))
}
