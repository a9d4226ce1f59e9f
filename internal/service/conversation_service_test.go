package service

import (
	"context"
	"testing"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/conversation"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/repository/mysql"
)

func TestResolveCreatesOnce(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(mysql.NewConversationRepository(db), nil)
	ctx := context.Background()

	c1, err := svc.Resolve(ctx, "admin", "whatsapp", "628123456789", "Budi")
	if err != nil {
		t.Fatal(err)
	}
	c2, err := svc.Resolve(ctx, "admin", "whatsapp", "628123456789", "Budi")
	if err != nil {
		t.Fatal(err)
	}
	if c1.ID != c2.ID {
		t.Fatalf("same key resolved to different conversations: %d, %d", c1.ID, c2.ID)
	}

	var n int64
	db.Model(&conversation.Conversation{}).Count(&n)
	if n != 1 {
		t.Fatalf("conversation count = %d, want 1", n)
	}
}

func TestResolveDistinctKeys(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(mysql.NewConversationRepository(db), nil)
	ctx := context.Background()

	a, _ := svc.Resolve(ctx, "admin", "whatsapp", "628123456789", "")
	b, err := svc.Resolve(ctx, "admin", "telegram", "628123456789", "")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Fatal("different platforms must map to different conversations")
	}
}

// CreateIfAbsent 并发安全的底座：同键二次创建返回已有行而不是报错
func TestCreateIfAbsentReturnsExisting(t *testing.T) {
	db := newTestDB(t)
	repo := mysql.NewConversationRepository(db)
	ctx := context.Background()

	key := &conversation.Conversation{
		OwnerID:   "admin",
		Platform:  "whatsapp",
		ContactID: "628123456789",
		Status:    conversation.StatusActive,
	}
	first, err := repo.CreateIfAbsent(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	second, err := repo.CreateIfAbsent(ctx, &conversation.Conversation{
		OwnerID:   "admin",
		Platform:  "whatsapp",
		ContactID: "628123456789",
		Status:    conversation.StatusActive,
	})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("insert-if-absent created a second row: %d, %d", first.ID, second.ID)
	}
}

func TestMaybeUpgradeName(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(mysql.NewConversationRepository(db), nil)
	ctx := context.Background()

	// 初次创建没有名字
	c, err := svc.Resolve(ctx, "admin", "whatsapp", "628123456789", "")
	if err != nil {
		t.Fatal(err)
	}
	if c.ContactName != "" {
		t.Fatalf("initial name = %q, want empty", c.ContactName)
	}

	// 出现名字后补上
	c, _ = svc.Resolve(ctx, "admin", "whatsapp", "628123456789", "Budi")
	if c.ContactName != "Budi" {
		t.Errorf("name = %q, want Budi", c.ContactName)
	}

	// 更丰富的名字覆盖短名字
	c, _ = svc.Resolve(ctx, "admin", "whatsapp", "628123456789", "Budi Santoso")
	if c.ContactName != "Budi Santoso" {
		t.Errorf("name = %q, want upgraded to longer", c.ContactName)
	}

	// 更短的名字不回退
	c, _ = svc.Resolve(ctx, "admin", "whatsapp", "628123456789", "B")
	if c.ContactName != "Budi Santoso" {
		t.Errorf("name = %q, shorter name must not downgrade", c.ContactName)
	}

	// 裸号码不当名字
	c, _ = svc.Resolve(ctx, "admin", "whatsapp", "628123456789", "628123456789")
	if c.ContactName != "Budi Santoso" {
		t.Errorf("name = %q, contact id must not overwrite a real name", c.ContactName)
	}
}
