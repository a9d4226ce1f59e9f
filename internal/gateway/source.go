package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrSourceUnavailable 网关不可达或鉴权失败，当前同步运行应立即终止
var ErrSourceUnavailable = errors.New("sync source unavailable")

// HistoryRecord 历史同步接口返回的单条消息
type HistoryRecord struct {
	ExternalID string // 可为空
	FromMe     bool
	SenderName string
	Body       string
	BodyType   string
	Timestamp  *time.Time
	Metadata   string
}

// Page 一页历史消息，NextCursor 为空表示没有更多
type Page struct {
	Records    []HistoryRecord
	NextCursor string
}

// PageSource 分页历史消息源。contact 为平台侧联系人标识，cursor 为空表示第一页。
type PageSource interface {
	FetchPage(ctx context.Context, contact, cursor string, limit int) (*Page, error)
}
