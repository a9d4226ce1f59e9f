package gateway

import (
	"errors"
	"testing"
	"time"
)

func TestParseEventMessageUpsert(t *testing.T) {
	body := []byte(`{
		"event_type": "message.upsert",
		"platform_instance": "wa-01",
		"message_key": {"remote_id": "08123456789", "from_me": false, "external_id": " MSG-1 "},
		"sender_display_name": "Budi",
		"body": "halo",
		"body_type": "text",
		"timestamp": 1756080000,
		"metadata": {"quoted": null}
	}`)

	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatal(err)
	}
	up, ok := ev.(*MessageUpsertEvent)
	if !ok {
		t.Fatalf("type = %T, want *MessageUpsertEvent", ev)
	}
	if up.RemoteID != "08123456789" || up.Body != "halo" {
		t.Errorf("fields wrong: %+v", up)
	}
	if up.ExternalID != "MSG-1" {
		t.Errorf("external id = %q, want trimmed", up.ExternalID)
	}
	if up.Timestamp == nil || !up.Timestamp.Equal(time.Unix(1756080000, 0).UTC()) {
		t.Errorf("timestamp = %v", up.Timestamp)
	}
	if up.Metadata == "" {
		t.Error("metadata must pass through as raw json")
	}
}

func TestParseEventMessageStatus(t *testing.T) {
	body := []byte(`{
		"event_type": "message.status",
		"message_key": {"external_id": "MSG-1"},
		"status": "read"
	}`)

	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatal(err)
	}
	st, ok := ev.(*MessageStatusEvent)
	if !ok {
		t.Fatalf("type = %T, want *MessageStatusEvent", ev)
	}
	if st.ExternalID != "MSG-1" || st.Status != "read" {
		t.Errorf("fields wrong: %+v", st)
	}
}

func TestParseEventRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"非法JSON", `{"event_type": `},
		{"缺event_type", `{"body": "hi"}`},
		{"未知event_type", `{"event_type": "message.vanished"}`},
		{"upsert缺remote_id", `{"event_type": "message.upsert", "message_key": {"external_id": "X"}}`},
		{"status缺external_id", `{"event_type": "message.status", "message_key": {}, "status": "read"}`},
		{"status缺status", `{"event_type": "message.status", "message_key": {"external_id": "X"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tc.body))
			var malformed *ErrMalformedEvent
			if !errors.As(err, &malformed) {
				t.Fatalf("err = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

func TestParseEventNoTimestamp(t *testing.T) {
	body := []byte(`{
		"event_type": "message.upsert",
		"message_key": {"remote_id": "628123456789"},
		"body": "no ts"
	}`)
	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatal(err)
	}
	if up := ev.(*MessageUpsertEvent); up.Timestamp != nil {
		t.Errorf("timestamp = %v, want nil", up.Timestamp)
	}
}
