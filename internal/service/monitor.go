package service

import (
	"sync"
	"time"
)

// Monitor 摄入/同步链路的计数器，供 /api/monitor 查询
type Monitor struct {
	mu sync.RWMutex

	// 摄入统计
	WebhookEvents int64
	Accepted      int64
	Superseded    int64
	Rejected      int64
	Suppressed    int64
	Malformed     int64

	// 同步统计
	SyncRuns       int64
	SyncItemErrors int64

	// 错误统计
	StoreErrors int64

	LastEventTime  time.Time
	LastStoreError time.Time
	LastSyncTime   time.Time
}

var globalMonitor = &Monitor{}

// GetMonitor 获取全局监控实例
func GetMonitor() *Monitor {
	return globalMonitor
}

// RecordWebhookEvent 记录收到一条 webhook 事件
func (m *Monitor) RecordWebhookEvent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WebhookEvents++
	m.LastEventTime = time.Now()
}

// RecordAccepted 记录新消息写入
func (m *Monitor) RecordAccepted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Accepted++
}

// RecordSuperseded 记录消息替换
func (m *Monitor) RecordSuperseded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Superseded++
}

// RecordRejected 记录候选被已存消息压制
func (m *Monitor) RecordRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rejected++
}

// RecordSuppressed 记录重复投递被抑制
func (m *Monitor) RecordSuppressed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Suppressed++
}

// RecordMalformed 记录畸形事件
func (m *Monitor) RecordMalformed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Malformed++
}

// RecordSyncRun 记录一次同步运行
func (m *Monitor) RecordSyncRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SyncRuns++
	m.LastSyncTime = time.Now()
}

// RecordSyncItemError 记录同步中的单条错误
func (m *Monitor) RecordSyncItemError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SyncItemErrors++
}

// RecordStoreError 记录存储层错误
func (m *Monitor) RecordStoreError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StoreErrors++
	m.LastStoreError = time.Now()
}

// MonitorSnapshot 监控快照
type MonitorSnapshot struct {
	WebhookEvents  int64     `json:"webhook_events"`
	Accepted       int64     `json:"accepted"`
	Superseded     int64     `json:"superseded"`
	Rejected       int64     `json:"rejected"`
	Suppressed     int64     `json:"suppressed"`
	Malformed      int64     `json:"malformed"`
	SyncRuns       int64     `json:"sync_runs"`
	SyncItemErrors int64     `json:"sync_item_errors"`
	StoreErrors    int64     `json:"store_errors"`
	LastEventTime  time.Time `json:"last_event_time"`
	LastStoreError time.Time `json:"last_store_error"`
	LastSyncTime   time.Time `json:"last_sync_time"`
}

// Snapshot 读取当前计数
func (m *Monitor) Snapshot() MonitorSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MonitorSnapshot{
		WebhookEvents:  m.WebhookEvents,
		Accepted:       m.Accepted,
		Superseded:     m.Superseded,
		Rejected:       m.Rejected,
		Suppressed:     m.Suppressed,
		Malformed:      m.Malformed,
		SyncRuns:       m.SyncRuns,
		SyncItemErrors: m.SyncItemErrors,
		StoreErrors:    m.StoreErrors,
		LastEventTime:  m.LastEventTime,
		LastStoreError: m.LastStoreError,
		LastSyncTime:   m.LastSyncTime,
	}
}
