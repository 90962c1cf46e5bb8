package gcal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&discardWriter{}, nil))
}

type discardWriter struct{}

func (*discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestClient(serverURL string) *Client {
	c := NewClient(http.DefaultClient, testLogger(), "test-token")
	c.baseURL = serverURL
	c.now = func() time.Time {
		return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	}
	return c
}

// ListUpcomingEventsが正しいクエリパラメータでAPIを呼び出すことを検証
func TestClient_ListUpcomingEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want Bearer test-token", got)
		}
		q := r.URL.Query()
		if q.Get("singleEvents") != "true" {
			t.Error("expected singleEvents=true")
		}
		if q.Get("orderBy") != "startTime" {
			t.Error("expected orderBy=startTime")
		}
		if q.Get("showDeleted") != "true" {
			t.Error("expected showDeleted=true")
		}
		if q.Get("timeMin") != "2026-09-01T12:00:00Z" {
			t.Errorf("timeMin = %q", q.Get("timeMin"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "ev1", "status": "confirmed", "summary": "Maria",
					"start": map[string]string{"dateTime": "2026-09-02T09:00:00-03:00"},
					"end":   map[string]string{"dateTime": "2026-09-02T10:00:00-03:00"}},
				{"id": "ev2", "status": "cancelled"},
			},
		})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	events, err := c.ListUpcomingEvents(context.Background(), "primary")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Cancelled() {
		t.Error("ev1 should not be cancelled")
	}
	if !events[1].Cancelled() {
		t.Error("ev2 should be cancelled")
	}
	start, err := events[0].Start.Time()
	if err != nil {
		t.Fatalf("start parse: %v", err)
	}
	if start.IsZero() {
		t.Error("expected non-zero start time")
	}
}

// InsertEventが採番されたイベントIDを返すことを検証
func TestClient_InsertEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var ev RemoteEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if ev.Summary != "João Santos" {
			t.Errorf("summary = %q", ev.Summary)
		}
		ev.ID = "remote-123"
		json.NewEncoder(w).Encode(ev)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	created, err := c.InsertEvent(context.Background(), "primary", &RemoteEvent{
		Summary: "João Santos",
		Start:   &EventTime{DateTime: "2026-09-02T09:00:00-03:00"},
		End:     &EventTime{DateTime: "2026-09-02T10:00:00-03:00"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != "remote-123" {
		t.Errorf("ID = %q, want remote-123", created.ID)
	}
}

// DeleteEventが404/410を成功として扱うことを検証
func TestClient_DeleteEvent_GoneIsSuccess(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusNotFound, http.StatusGone} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c := newTestClient(server.URL)
		if err := c.DeleteEvent(context.Background(), "primary", "ev1"); err != nil {
			t.Errorf("status %d: unexpected error: %v", status, err)
		}
		server.Close()
	}
}

// DeleteEventがその他のエラーステータスでエラーを返すことを検証
func TestClient_DeleteEvent_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if err := c.DeleteEvent(context.Background(), "primary", "ev1"); err == nil {
		t.Error("expected error for status 500")
	}
}

// WatchがresourceIdと有効期限をパースすることを検証
func TestClient_Watch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if payload["type"] != "web_hook" {
			t.Errorf("type = %q, want web_hook", payload["type"])
		}
		if payload["id"] != "chan-1" {
			t.Errorf("id = %q, want chan-1", payload["id"])
		}
		json.NewEncoder(w).Encode(map[string]string{
			"resourceId": "res-1",
			"expiration": "1790000000000",
		})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	info, err := c.Watch(context.Background(), "primary", "chan-1", "https://app.example.com/api/integrations/google/webhook")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ResourceID != "res-1" {
		t.Errorf("ResourceID = %q, want res-1", info.ResourceID)
	}
	if !info.Expiration.Equal(time.UnixMilli(1790000000000)) {
		t.Errorf("Expiration = %v", info.Expiration)
	}
}

// StopChannelが404を成功として扱うことを検証
func TestClient_StopChannel_NotFoundIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if err := c.StopChannel(context.Background(), "chan-1", "res-1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
