// Package renewal は通知チャネルの更新スイープを提供する。
// Googleカレンダーの監視チャネルは最長でも数日で失効するため、
// 失効前に再登録してプッシュ通知の途絶を防ぐ。
package renewal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// WatchRefresher は監視チャネルの再登録インターフェース。
type WatchRefresher interface {
	// StartOrRefresh は既存チャネルを停止し、新しいチャネルを登録する。
	StartOrRefresh(ctx context.Context, prof *model.Professional) error
}

// Job は失効が近い監視チャネルを検出し、再登録するスイープジョブ。
// 冪等: 対象がない場合でもエラーにならない。
type Job struct {
	professionals  repository.ProfessionalRepository
	refresher      WatchRefresher
	logger         *slog.Logger
	window         time.Duration
	maxConcurrency int
}

// NewJob はJobの新しいインスタンスを生成する。
// windowが0以下の場合は24時間、maxConcurrencyが0以下の場合は4を使用する。
func NewJob(
	professionals repository.ProfessionalRepository,
	refresher WatchRefresher,
	logger *slog.Logger,
	window time.Duration,
	maxConcurrency int,
) *Job {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Job{
		professionals:  professionals,
		refresher:      refresher,
		logger:         logger,
		window:         window,
		maxConcurrency: maxConcurrency,
	}
}

// RunOnce は失効期限がwindow以内の監視チャネルを1回スイープする。
// semaphoreパターンで並列数を制御する。
func (j *Job) RunOnce(ctx context.Context) error {
	start := time.Now()
	deadline := start.Add(j.window)

	profs, err := j.professionals.ListWatchesExpiringBefore(ctx, deadline)
	if err != nil {
		return err
	}

	if len(profs) == 0 {
		j.logger.Info("更新対象の監視チャネルはありません")
		return nil
	}

	j.logger.Info("監視チャネルの更新スイープを開始します",
		slog.Int("channel_count", len(profs)),
		slog.Time("deadline", deadline),
	)

	sem := make(chan struct{}, j.maxConcurrency)
	var wg sync.WaitGroup

	for _, prof := range profs {
		wg.Add(1)
		sem <- struct{}{}

		go func(p *model.Professional) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := j.refresher.StartOrRefresh(ctx, p); err != nil {
				j.logger.Error("監視チャネルの更新に失敗しました",
					slog.String("professional_id", p.ID),
					slog.String("channel_id", p.GoogleChannelID),
					slog.String("error", err.Error()),
				)
			}
		}(prof)
	}

	wg.Wait()

	duration := time.Since(start)
	j.logger.Info("監視チャネルの更新スイープが完了しました",
		slog.Int("channel_count", len(profs)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Scheduler はcron式に従って更新スイープを定期実行する。
type Scheduler struct {
	job    *Job
	logger *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(job *Job, logger *slog.Logger) *Scheduler {
	return &Scheduler{job: job, logger: logger}
}

// Start はcron式specに従ってジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := s.job.RunOnce(ctx); err != nil {
			s.logger.Error("更新スイープの実行に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	})
	if err != nil {
		return err
	}

	s.logger.Info("更新スイープスケジューラを開始しました",
		slog.String("spec", spec),
	)
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	s.logger.Info("更新スイープスケジューラを停止しました")
	return nil
}
