package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func capturePush(t *testing.T) (*httptest.Server, *PushRequest) {
	t.Helper()
	var captured PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode push body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	return srv, &captured
}

func TestPushEvent(t *testing.T) {
	srv, captured := capturePush(t)
	defer srv.Close()

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	err := PushEvent(context.Background(), srv.URL, ts, "hello", map[string]string{"event_type": "completed"})
	if err != nil {
		t.Fatalf("PushEvent() error = %v", err)
	}

	if len(captured.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(captured.Streams))
	}
	stream := captured.Streams[0]
	if stream.Stream["job"] != "attex-trustcore" {
		t.Errorf("job label = %q", stream.Stream["job"])
	}
	if stream.Stream["event_type"] != "completed" {
		t.Errorf("event_type label = %q", stream.Stream["event_type"])
	}
	if len(stream.Values) != 1 || stream.Values[0][1] != "hello" {
		t.Errorf("values = %v", stream.Values)
	}
	if stream.Values[0][0] != strconv.FormatInt(ts.UnixNano(), 10) {
		t.Errorf("timestamp = %q", stream.Values[0][0])
	}
}

func TestPushEvent_SanitizesLabels(t *testing.T) {
	srv, captured := capturePush(t)
	defer srv.Close()

	err := PushEvent(context.Background(), srv.URL, time.Now(), "line", map[string]string{
		"source": `tru{st}co"re`,
		"empty":  "   ",
	})
	if err != nil {
		t.Fatalf("PushEvent() error = %v", err)
	}
	stream := captured.Streams[0]
	if stream.Stream["source"] != "tru_st_co_re" {
		t.Errorf("sanitized source = %q", stream.Stream["source"])
	}
	if _, ok := stream.Stream["empty"]; ok {
		t.Error("blank label values should be dropped")
	}
}

func TestPushEvent_EmptyURL(t *testing.T) {
	if err := PushEvent(context.Background(), "", time.Now(), "line", nil); err == nil {
		t.Error("PushEvent() with empty URL should return error")
	}
}

func TestPushEvent_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := PushEvent(context.Background(), srv.URL, time.Now(), "line", nil); err == nil {
		t.Error("PushEvent() on 500 should return error")
	}
}

func TestPushEventJSON(t *testing.T) {
	srv, captured := capturePush(t)
	defer srv.Close()

	raw := []byte(`{"sessionId":"sess-1","eventType":"attributes_received","state":"attributes_received","source":"trustcore","createdAt":"2026-08-01T12:00:00Z"}`)
	if err := PushEventJSON(context.Background(), srv.URL, raw); err != nil {
		t.Fatalf("PushEventJSON() error = %v", err)
	}

	stream := captured.Streams[0]
	if stream.Stream["session_id"] != "sess-1" {
		t.Errorf("session_id label = %q", stream.Stream["session_id"])
	}
	if stream.Stream["event_type"] != "attributes_received" {
		t.Errorf("event_type label = %q", stream.Stream["event_type"])
	}
	if stream.Stream["source"] != "trustcore" {
		t.Errorf("source label = %q", stream.Stream["source"])
	}
	wantTS := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if stream.Values[0][0] != strconv.FormatInt(wantTS.UnixNano(), 10) {
		t.Errorf("timestamp = %q", stream.Values[0][0])
	}
	if stream.Values[0][1] != string(raw) {
		t.Error("log line should carry the raw event JSON")
	}
}

func TestPushEventJSON_UnparsableLine(t *testing.T) {
	srv, captured := capturePush(t)
	defer srv.Close()

	if err := PushEventJSON(context.Background(), srv.URL, []byte("not json")); err != nil {
		t.Fatalf("PushEventJSON() error = %v", err)
	}
	stream := captured.Streams[0]
	if stream.Values[0][1] != "not json" {
		t.Error("raw line should still be pushed")
	}
	if _, ok := stream.Stream["session_id"]; ok {
		t.Error("no labels should be derived from an unparsable line")
	}
}
