package service

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/message"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/repository/mysql"
)

// newLegacyDB 模拟唯一索引上线前的旧库：去掉 external_id 唯一索引，
// 允许灌入重复组
func newLegacyDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newTestDB(t)
	if err := db.Migrator().DropIndex(&message.Message{}, "ExternalID"); err != nil {
		t.Fatalf("drop unique index: %v", err)
	}
	return db
}

func seedDuplicates(t *testing.T, db *gorm.DB, convID uint64) (survivorContent string) {
	t.Helper()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	rows := []*message.Message{
		{ConversationID: convID, ExternalID: strPtr("DUP-1"), Content: "old", ExternalTimestamp: timePtr(base)},
		{ConversationID: convID, ExternalID: strPtr("DUP-1"), Content: "newest version", ExternalTimestamp: timePtr(base.Add(time.Hour))},
		{ConversationID: convID, ExternalID: strPtr("DUP-1"), Content: "mid", ExternalTimestamp: timePtr(base.Add(time.Minute))},
		{ConversationID: convID, ExternalID: strPtr("UNIQ-1"), Content: "not duplicated", ExternalTimestamp: timePtr(base)},
	}
	for _, m := range rows {
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return "newest version"
}

func TestCleanupScan(t *testing.T) {
	db := newLegacyDB(t)
	conv := mustCreateConversation(t, db, "628123456789")
	wantContent := seedDuplicates(t, db, conv.ID)

	msgRepo := mysql.NewMessageRepository(db)
	cleanup := NewCleanupService(db, msgRepo)

	reports, err := cleanup.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1 duplicate group", len(reports))
	}
	r := reports[0]
	if r.ExternalID != "DUP-1" || r.Total != 3 || len(r.LoserIDs) != 2 {
		t.Errorf("report = %+v", r)
	}

	var survivor message.Message
	if err := db.First(&survivor, r.SurvivorID).Error; err != nil {
		t.Fatal(err)
	}
	if survivor.Content != wantContent {
		t.Errorf("survivor content = %q, want %q", survivor.Content, wantContent)
	}

	// Scan 只读，不动数据
	var n int64
	db.Model(&message.Message{}).Count(&n)
	if n != 4 {
		t.Errorf("row count after scan = %d, want 4", n)
	}
}

func TestCleanupPurgeDryRunByDefault(t *testing.T) {
	db := newLegacyDB(t)
	conv := mustCreateConversation(t, db, "628123456789")
	seedDuplicates(t, db, conv.ID)

	cleanup := NewCleanupService(db, mysql.NewMessageRepository(db))
	reports, err := cleanup.Purge(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}

	var n int64
	db.Model(&message.Message{}).Count(&n)
	if n != 4 {
		t.Errorf("dry-run deleted rows: count = %d, want 4", n)
	}
}

func TestCleanupPurgeConfirmed(t *testing.T) {
	db := newLegacyDB(t)
	conv := mustCreateConversation(t, db, "628123456789")
	wantContent := seedDuplicates(t, db, conv.ID)

	cleanup := NewCleanupService(db, mysql.NewMessageRepository(db))
	reports, err := cleanup.Purge(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}

	var remaining []*message.Message
	if err := db.Where("external_id = ?", "DUP-1").Find(&remaining).Error; err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 {
		t.Fatalf("rows for DUP-1 after purge = %d, want 1", len(remaining))
	}
	if remaining[0].Content != wantContent {
		t.Errorf("retained content = %q, want %q", remaining[0].Content, wantContent)
	}

	// 非重复行不受影响
	var n int64
	db.Model(&message.Message{}).Where("external_id = ?", "UNIQ-1").Count(&n)
	if n != 1 {
		t.Errorf("unique row was touched")
	}

	// 会话聚合被重算
	c := reloadConversation(t, db, conv.ID)
	if c.MessageCount != 2 {
		t.Errorf("message_count after purge = %d, want 2", c.MessageCount)
	}
}
