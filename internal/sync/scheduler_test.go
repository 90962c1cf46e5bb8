package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingReconciler は照合回数を記録するChannelReconciler実装。
type countingReconciler struct {
	mu       sync.Mutex
	channels []string
	started  time.Time
	firstRun atomic.Int64 // 最初の照合までの経過（ナノ秒）
}

func (c *countingReconciler) ReconcileChannel(ctx context.Context, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.channels) == 0 {
		c.firstRun.Store(int64(time.Since(c.started)))
	}
	c.channels = append(c.channels, channelID)
	return nil
}

// 通知から猶予を置いて照合が実行されることを検証
func TestScheduler_NotifyRunsAfterSettleDelay(t *testing.T) {
	rec := &countingReconciler{started: time.Now()}
	s := NewScheduler(rec, testLogger(), 50*time.Millisecond, 2)

	s.Notify("chan-1")
	s.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.channels) != 1 || rec.channels[0] != "chan-1" {
		t.Fatalf("channels = %v, want [chan-1]", rec.channels)
	}
	if elapsed := time.Duration(rec.firstRun.Load()); elapsed < 50*time.Millisecond {
		t.Errorf("reconcile ran after %v, want >= 50ms", elapsed)
	}
}

// Notifyがブロックしないことを検証
func TestScheduler_NotifyDoesNotBlock(t *testing.T) {
	rec := &countingReconciler{started: time.Now()}
	s := NewScheduler(rec, testLogger(), 100*time.Millisecond, 1)

	start := time.Now()
	for i := 0; i < 10; i++ {
		s.Notify("chan-1")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Notify blocked for %v", elapsed)
	}
	s.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.channels) != 10 {
		t.Errorf("reconcile runs = %d, want 10", len(rec.channels))
	}
}

// 複数チャネルの通知がすべて処理されることを検証
func TestScheduler_MultipleChannels(t *testing.T) {
	rec := &countingReconciler{started: time.Now()}
	s := NewScheduler(rec, testLogger(), 10*time.Millisecond, 4)

	s.Notify("chan-1")
	s.Notify("chan-2")
	s.Notify("chan-3")
	s.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	seen := make(map[string]bool)
	for _, ch := range rec.channels {
		seen[ch] = true
	}
	for _, want := range []string{"chan-1", "chan-2", "chan-3"} {
		if !seen[want] {
			t.Errorf("channel %s was not reconciled", want)
		}
	}
}
