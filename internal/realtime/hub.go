// Package realtime はWebSocketによる予約ボードのリアルタイム更新配信を提供する。
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const writeTimeout = 5 * time.Second

// Message はクライアントへ配信する更新通知。
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub は接続中のWebSocketクライアントを管理し、全クライアントへ
// 更新通知をブロードキャストする。
type Hub struct {
	logger *slog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub はHubの新しいインスタンスを生成する。
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP はWebSocket接続を受け付け、切断されるまで接続を維持する。
// クライアントからのメッセージは読み捨てる。配信は片方向のみ。
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("WebSocket接続の受け付けに失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	h.register(conn)
	defer h.unregister(conn)

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// Broadcast は接続中の全クライアントへ更新通知を配信する。
// 書き込みに失敗した接続は切断済みとみなして登録から除去する。
func (h *Hub) Broadcast(msgType string, data any) {
	body, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("WebSocketメッセージの生成に失敗しました",
			slog.String("type", msgType),
			slog.String("error", err.Error()),
		)
		return
	}

	h.mu.Lock()
	targets := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		targets = append(targets, conn)
	}
	h.mu.Unlock()

	for _, conn := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := conn.Write(ctx, websocket.MessageText, body)
		cancel()
		if err != nil {
			h.unregister(conn)
			conn.Close(websocket.StatusAbnormalClosure, "")
		}
	}
}

// ConnectionCount は接続中のクライアント数を返す。
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	count := len(h.conns)
	h.mu.Unlock()
	h.logger.Debug("WebSocketクライアントが接続しました", slog.Int("connections", count))
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	count := len(h.conns)
	h.mu.Unlock()
	h.logger.Debug("WebSocketクライアントが切断しました", slog.Int("connections", count))
}
