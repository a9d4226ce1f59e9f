package service

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/conversation"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/message"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/syncevent"
)

var testDBSeq uint64

// newTestDB 每个用例一个独立的内存库，TranslateError 与生产配置保持一致，
// 唯一键冲突同样表现为 gorm.ErrDuplicatedKey
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_test_%d?mode=memory&cache=shared", atomic.AddUint64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&conversation.Conversation{},
		&message.Message{},
		&syncevent.SyncEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func mustCreateConversation(t *testing.T, db *gorm.DB, contact string) *conversation.Conversation {
	t.Helper()
	c := &conversation.Conversation{
		OwnerID:    "admin",
		Platform:   "whatsapp",
		ContactID:  contact,
		Status:     conversation.StatusActive,
		SyncStatus: conversation.SyncStatusNever,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return c
}
