package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPSource 网关分页历史接口的最小客户端，只覆盖 PageSource 契约
type HTTPSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSource 创建网关历史源
func NewHTTPSource(baseURL, apiKey string) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type historyResponse struct {
	Records []struct {
		ExternalID string          `json:"external_id"`
		FromMe     bool            `json:"from_me"`
		SenderName string          `json:"sender_display_name"`
		Body       string          `json:"body"`
		BodyType   string          `json:"body_type"`
		Timestamp  int64           `json:"timestamp"`
		Metadata   json.RawMessage `json:"metadata"`
	} `json:"records"`
	NextCursor string `json:"next_cursor"`
}

// FetchPage 拉取一页历史消息。网关不可达或鉴权失败返回 ErrSourceUnavailable，
// 调用方以此终止本次同步运行。
func (s *HTTPSource) FetchPage(ctx context.Context, contact, cursor string, limit int) (*Page, error) {
	q := url.Values{}
	q.Set("contact", contact)
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/history?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: auth rejected (%d)", ErrSourceUnavailable, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: gateway returned %d", ErrSourceUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch history: unexpected status %d", resp.StatusCode)
	}

	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("fetch history: decode: %w", err)
	}

	page := &Page{NextCursor: body.NextCursor}
	for _, r := range body.Records {
		rec := HistoryRecord{
			ExternalID: r.ExternalID,
			FromMe:     r.FromMe,
			SenderName: r.SenderName,
			Body:       r.Body,
			BodyType:   r.BodyType,
			Metadata:   string(r.Metadata),
		}
		if r.Timestamp > 0 {
			t := time.Unix(r.Timestamp, 0).UTC()
			rec.Timestamp = &t
		}
		page.Records = append(page.Records, rec)
	}
	return page, nil
}
