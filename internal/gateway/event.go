package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// 事件类型，对应网关 webhook 的 event_type 字段
const (
	EventMessageUpsert = "message.upsert"
	EventMessageStatus = "message.status"
)

// rawEvent webhook 原始载荷
type rawEvent struct {
	EventType        string          `json:"event_type"`
	PlatformInstance string          `json:"platform_instance"`
	MessageKey       *rawMessageKey  `json:"message_key"`
	SenderName       string          `json:"sender_display_name"`
	Body             string          `json:"body"`
	BodyType         string          `json:"body_type"`
	Status           string          `json:"status"`
	Timestamp        int64           `json:"timestamp"`
	Metadata         json.RawMessage `json:"metadata"`
}

type rawMessageKey struct {
	RemoteID   string `json:"remote_id"`
	FromMe     bool   `json:"from_me"`
	ExternalID string `json:"external_id"`
}

// Event webhook 事件 tagged union，只有已知类型能被解析出来
type Event interface {
	Type() string
}

// MessageUpsertEvent 新消息（或消息重投）事件
type MessageUpsertEvent struct {
	PlatformInstance string
	RemoteID         string // 平台侧会话/联系人标识，未归一化
	FromMe           bool
	ExternalID       string // 平台消息 ID，可为空
	SenderName       string
	Body             string
	BodyType         string
	Timestamp        *time.Time
	Metadata         string // 原始 JSON 透传
}

func (e *MessageUpsertEvent) Type() string { return EventMessageUpsert }

// MessageStatusEvent 消息状态流转事件（delivered/read 等）
type MessageStatusEvent struct {
	PlatformInstance string
	ExternalID       string
	Status           string
}

func (e *MessageStatusEvent) Type() string { return EventMessageStatus }

// ErrMalformedEvent 缺字段或未知类型的事件
type ErrMalformedEvent struct {
	Reason string
}

func (e *ErrMalformedEvent) Error() string {
	return "malformed event: " + e.Reason
}

// ParseEvent 解析 webhook 载荷。未知 event_type 一律拒绝，不做猜测。
func ParseEvent(body []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ErrMalformedEvent{Reason: fmt.Sprintf("invalid json: %v", err)}
	}
	switch raw.EventType {
	case EventMessageUpsert:
		if raw.MessageKey == nil || strings.TrimSpace(raw.MessageKey.RemoteID) == "" {
			return nil, &ErrMalformedEvent{Reason: "message.upsert missing message_key.remote_id"}
		}
		ev := &MessageUpsertEvent{
			PlatformInstance: raw.PlatformInstance,
			RemoteID:         raw.MessageKey.RemoteID,
			FromMe:           raw.MessageKey.FromMe,
			ExternalID:       strings.TrimSpace(raw.MessageKey.ExternalID),
			SenderName:       raw.SenderName,
			Body:             raw.Body,
			BodyType:         raw.BodyType,
			Metadata:         string(raw.Metadata),
		}
		if raw.Timestamp > 0 {
			t := time.Unix(raw.Timestamp, 0).UTC()
			ev.Timestamp = &t
		}
		return ev, nil
	case EventMessageStatus:
		if raw.MessageKey == nil || raw.MessageKey.ExternalID == "" {
			return nil, &ErrMalformedEvent{Reason: "message.status missing message_key.external_id"}
		}
		if raw.Status == "" {
			return nil, &ErrMalformedEvent{Reason: "message.status missing status"}
		}
		return &MessageStatusEvent{
			PlatformInstance: raw.PlatformInstance,
			ExternalID:       raw.MessageKey.ExternalID,
			Status:           raw.Status,
		}, nil
	case "":
		return nil, &ErrMalformedEvent{Reason: "missing event_type"}
	default:
		return nil, &ErrMalformedEvent{Reason: "unknown event_type " + raw.EventType}
	}
}
