package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestBroadcastReachesConnectedClient(t *testing.T) {
	hub := NewHub(testLogger())
	server := httptest.NewServer(hub)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("接続に失敗しました: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	waitForConnections(t, hub, 1)

	hub.Broadcast("event.created", map[string]string{"id": "ev-1"})

	_, body, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("受信に失敗しました: %v", err)
	}
	var got Message
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("メッセージの解析に失敗しました: %v", err)
	}
	if got.Type != "event.created" {
		t.Errorf("typeが不正です: got %s", got.Type)
	}
}

func TestDisconnectedClientIsRemoved(t *testing.T) {
	hub := NewHub(testLogger())
	server := httptest.NewServer(hub)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("接続に失敗しました: %v", err)
	}

	waitForConnections(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "")

	waitForConnections(t, hub, 0)
}

func TestBroadcastWithoutClients(t *testing.T) {
	hub := NewHub(testLogger())

	// クライアント不在でもパニックしないこと
	hub.Broadcast("event.deleted", map[string]string{"id": "ev-1"})
}

func waitForConnections(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ConnectionCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("接続数が%dになりませんでした: got %d", want, hub.ConnectionCount())
}
