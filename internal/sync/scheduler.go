package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ChannelReconciler は通知チャネル単位の照合のインターフェース。
type ChannelReconciler interface {
	ReconcileChannel(ctx context.Context, channelID string) error
}

// Scheduler はプッシュ通知を受けてから一定の猶予を置いて照合を実行する。
//
// リモート側の変更は通知到達時点でまだ確定していないことがあるため、
// 通知ごとに固定の猶予（settle delay）を挟んでから照合する。
// semaphoreパターンで同時実行数を制御し、照合自体が冪等なため
// 同じチャネルへの重複通知が並んでも結果は変わらない。
type Scheduler struct {
	reconciler ChannelReconciler
	logger     *slog.Logger

	settleDelay time.Duration
	timeout     time.Duration
	sem         chan struct{}
	wg          sync.WaitGroup
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrentが0以下の場合はデフォルト値4を使用する。
func NewScheduler(reconciler ChannelReconciler, logger *slog.Logger, settleDelay time.Duration, maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Scheduler{
		reconciler:  reconciler,
		logger:      logger,
		settleDelay: settleDelay,
		timeout:     2 * time.Minute,
		sem:         make(chan struct{}, maxConcurrent),
	}
}

// Notify はチャネルへの変更通知を受け付け、猶予の後に照合をスケジュールする。
// 呼び出しはブロックせず即座に戻る。Webhookハンドラーから直接呼ばれる。
func (s *Scheduler) Notify(channelID string) {
	s.logger.Debug("変更通知を受け付けました",
		slog.String("channel_id", channelID),
		slog.Duration("settle_delay", s.settleDelay),
	)

	s.wg.Add(1)
	time.AfterFunc(s.settleDelay, func() {
		defer s.wg.Done()

		s.sem <- struct{}{}
		defer func() { <-s.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.reconciler.ReconcileChannel(ctx, channelID); err != nil {
			s.logger.Error("通知起点の照合に失敗しました",
				slog.String("channel_id", channelID),
				slog.String("error", err.Error()),
			)
		}
	})
}

// Wait はスケジュール済みの照合がすべて完了するまで待機する。
// グレースフルシャットダウンで使用する。
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
