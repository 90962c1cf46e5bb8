package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

type mockPruner struct {
	called  bool
	deleted int64
	err     error
}

func (m *mockPruner) DeleteExpired(ctx context.Context) (int64, error) {
	m.called = true
	return m.deleted, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestRunDeletesExpiredSessions(t *testing.T) {
	var buf bytes.Buffer
	pruner := &mockPruner{deleted: 3}
	job := NewCleanupJob(pruner, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if !pruner.called {
		t.Error("DeleteExpiredが呼ばれていません")
	}

	// ログに削除件数が含まれることを確認
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ログの解析に失敗しました: %v", err)
	}
	if entry["deleted_count"] != float64(3) {
		t.Errorf("削除件数のログが不正です: %v", entry["deleted_count"])
	}
}

func TestRunIsIdempotentWithNoTargets(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{deleted: 0}, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Errorf("削除対象なしでエラーが返りました: %v", err)
	}
}

func TestRunWrapsRepositoryError(t *testing.T) {
	var buf bytes.Buffer
	pruner := &mockPruner{err: errors.New("connection reset")}
	job := NewCleanupJob(pruner, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("エラーが返るべきところ")
	}
	if !errors.Is(err, pruner.err) {
		t.Errorf("元のエラーがラップされていません: %v", err)
	}
}
