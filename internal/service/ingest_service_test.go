package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/message"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/syncevent"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/gateway"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/repository/mysql"
)

func newTestIngest(t *testing.T, db *gorm.DB) *IngestService {
	t.Helper()
	convRepo := mysql.NewConversationRepository(db)
	msgRepo := mysql.NewMessageRepository(db)
	eventRepo := mysql.NewSyncEventRepository(db)
	convSvc := NewConversationService(convRepo, nil)
	writer := NewReconcileService(db, NewDedupService(msgRepo), nil)
	return NewIngestService(convSvc, writer, msgRepo, eventRepo, nil, "admin", nil)
}

func upsertEvent(extID string, at time.Time) *gateway.MessageUpsertEvent {
	return &gateway.MessageUpsertEvent{
		RemoteID:   "08123456789",
		ExternalID: extID,
		SenderName: "Budi",
		Body:       "halo",
		BodyType:   "text",
		Timestamp:  timePtr(at),
	}
}

func TestHandleUpsertEvent(t *testing.T) {
	db := newTestDB(t)
	svc := newTestIngest(t, db)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	res, err := svc.HandleEvent(ctx, "whatsapp", upsertEvent("WH-1", base))
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != "accept" {
		t.Errorf("decision = %s, want accept", res.Decision)
	}
	if res.MessageID == 0 {
		t.Error("message id missing")
	}

	// 同一事件原样重来：没有 Redis 抑制层时由判重挡下
	res, err = svc.HandleEvent(ctx, "whatsapp", upsertEvent("WH-1", base))
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != "reject" {
		t.Errorf("redelivery decision = %s, want reject", res.Decision)
	}

	var n int64
	db.Model(&message.Message{}).Count(&n)
	if n != 1 {
		t.Fatalf("message count = %d, want 1", n)
	}

	// 审计行已落
	var events int64
	db.Model(&syncevent.SyncEvent{}).Where("event_type = ?", gateway.EventMessageUpsert).Count(&events)
	if events != 2 {
		t.Errorf("audit rows = %d, want 2", events)
	}
}

// 不带平台时间戳的事件以接收时间为观测时间：后到且更丰富的版本要能替换先到的，
// 而不是输给已存行
func TestHandleUpsertWithoutTimestamp(t *testing.T) {
	db := newTestDB(t)
	svc := newTestIngest(t, db)
	ctx := context.Background()

	first := &gateway.MessageUpsertEvent{
		RemoteID:   "08123456789",
		ExternalID: "NT-1",
		Body:       "hi",
	}
	res, err := svc.HandleEvent(ctx, "whatsapp", first)
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != "accept" {
		t.Fatalf("first decision = %s, want accept", res.Decision)
	}

	second := &gateway.MessageUpsertEvent{
		RemoteID:   "08123456789",
		ExternalID: "NT-1",
		Body:       "hi there, with the full text",
	}
	res, err = svc.HandleEvent(ctx, "whatsapp", second)
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != "supersede" {
		t.Fatalf("second decision = %s, want supersede", res.Decision)
	}

	var m message.Message
	if err := db.Where("external_id = ?", "NT-1").First(&m).Error; err != nil {
		t.Fatal(err)
	}
	if m.Content != second.Body {
		t.Errorf("survivor content = %q, want the later richer version", m.Content)
	}
	if m.ObservedAt().IsZero() {
		t.Error("observed time must be the receipt time, not zero")
	}
}

func TestHandleUpsertFromMe(t *testing.T) {
	db := newTestDB(t)
	svc := newTestIngest(t, db)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	ev := upsertEvent("WH-OUT", base)
	ev.FromMe = true
	res, err := svc.HandleEvent(context.Background(), "whatsapp", ev)
	if err != nil {
		t.Fatal(err)
	}

	var m message.Message
	if err := db.First(&m, res.MessageID).Error; err != nil {
		t.Fatal(err)
	}
	if m.Direction != message.DirectionOut || m.SenderRole != "agent" || m.Status != message.StatusSent {
		t.Errorf("outbound message mapped wrong: %+v", m)
	}
}

func TestHandleStatusEvent(t *testing.T) {
	db := newTestDB(t)
	svc := newTestIngest(t, db)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	ev := upsertEvent("WH-ST", base)
	ev.FromMe = true
	if _, err := svc.HandleEvent(ctx, "whatsapp", ev); err != nil {
		t.Fatal(err)
	}

	res, err := svc.HandleEvent(ctx, "whatsapp", &gateway.MessageStatusEvent{
		ExternalID: "WH-ST",
		Status:     message.StatusRead,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != "status_updated" {
		t.Errorf("decision = %s", res.Decision)
	}

	var m message.Message
	if err := db.Where("external_id = ?", "WH-ST").First(&m).Error; err != nil {
		t.Fatal(err)
	}
	if m.Status != message.StatusRead {
		t.Errorf("status = %s, want read", m.Status)
	}
}

// 状态事件指向从未入库的消息：不报错，但也不能谎报已更新
func TestHandleStatusEventUnknownMessage(t *testing.T) {
	db := newTestDB(t)
	svc := newTestIngest(t, db)

	res, err := svc.HandleEvent(context.Background(), "whatsapp", &gateway.MessageStatusEvent{
		ExternalID: "NEVER-STORED",
		Status:     message.StatusRead,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != "status_ignored" {
		t.Errorf("decision = %s, want status_ignored", res.Decision)
	}
}

func TestHandleStatusEventUnknownStatus(t *testing.T) {
	db := newTestDB(t)
	svc := newTestIngest(t, db)

	_, err := svc.HandleEvent(context.Background(), "whatsapp", &gateway.MessageStatusEvent{
		ExternalID: "WH-X",
		Status:     "teleported",
	})
	var malformed *gateway.ErrMalformedEvent
	if !errors.As(err, &malformed) {
		t.Fatalf("err = %v, want ErrMalformedEvent", err)
	}
}
