package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSourceFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/history" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("auth header = %q", got)
		}
		q := r.URL.Query()
		if q.Get("contact") != "628123456789" || q.Get("limit") != "50" {
			t.Errorf("query = %v", q)
		}

		w.Header().Set("Content-Type", "application/json")
		if q.Get("cursor") == "" {
			fmt.Fprint(w, `{
				"records": [
					{"external_id": "H-1", "body": "one", "body_type": "text", "timestamp": 1756080000},
					{"external_id": "H-2", "from_me": true, "body": "two", "metadata": {"k": 1}}
				],
				"next_cursor": "p2"
			}`)
			return
		}
		fmt.Fprint(w, `{"records": [], "next_cursor": ""}`)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "sekrit")
	page, err := src.FetchPage(context.Background(), "628123456789", "", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 2 || page.NextCursor != "p2" {
		t.Fatalf("page = %+v", page)
	}
	if page.Records[0].Timestamp == nil {
		t.Error("timestamp missing on first record")
	}
	if !page.Records[1].FromMe || page.Records[1].Metadata == "" {
		t.Errorf("second record mapped wrong: %+v", page.Records[1])
	}

	last, err := src.FetchPage(context.Background(), "628123456789", "p2", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(last.Records) != 0 || last.NextCursor != "" {
		t.Fatalf("last page = %+v", last)
	}
}

func TestHTTPSourceUnavailable(t *testing.T) {
	cases := []struct {
		name   string
		status int
	}{
		{"服务端错误", http.StatusBadGateway},
		{"鉴权失败", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			src := NewHTTPSource(srv.URL, "")
			_, err := src.FetchPage(context.Background(), "x", "", 10)
			if !errors.Is(err, ErrSourceUnavailable) {
				t.Fatalf("err = %v, want ErrSourceUnavailable", err)
			}
		})
	}
}

func TestHTTPSourceConnectionRefused(t *testing.T) {
	src := NewHTTPSource("http://127.0.0.1:1", "")
	_, err := src.FetchPage(context.Background(), "x", "", 10)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}
