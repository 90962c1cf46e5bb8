package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bookman/internal/gcal"
	"github.com/hitoshi/bookman/internal/metrics"
	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// ProfessionalReconciler は監視開始直後の初回照合のインターフェース。
type ProfessionalReconciler interface {
	ReconcileProfessional(ctx context.Context, prof *model.Professional) error
}

// WatchManager はプロフェッショナル単位の監視チャネルのライフサイクルを管理する。
// チャネルの開始・更新・停止と、識別子ペアの永続化を担う。
type WatchManager struct {
	provider      ClientProvider
	professionals repository.ProfessionalRepository
	reconciler    ProfessionalReconciler
	metrics       metrics.MetricsCollector
	logger        *slog.Logger

	// webhookAddress は通知を受けるWebhookエンドポイントの完全なURL。
	webhookAddress string
}

// NewWatchManager はWatchManagerの新しいインスタンスを生成する。
func NewWatchManager(
	provider ClientProvider,
	professionals repository.ProfessionalRepository,
	reconciler ProfessionalReconciler,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	webhookAddress string,
) *WatchManager {
	return &WatchManager{
		provider:       provider,
		professionals:  professionals,
		reconciler:     reconciler,
		metrics:        collector,
		logger:         logger,
		webhookAddress: webhookAddress,
	}
}

// StartOrRefresh はプロフェッショナルの監視チャネルを新規登録または更新する。
//
// 既存チャネルはベストエフォートで停止し、新しいチャネルIDで登録し直す。
// 識別子ペアはリモート登録が成功した場合にのみ永続化されるため、
// 登録失敗時もローカルの状態は古いチャネルのまま一貫している。
// 登録成功後は取りこぼした変更を拾うため、即座に1回照合を実行する。
func (w *WatchManager) StartOrRefresh(ctx context.Context, prof *model.Professional) error {
	if !prof.Linked() {
		return model.NewNotLinkedError(prof.ID)
	}

	client, err := w.provider.ClientFor(ctx, prof.AdministratorID)
	if err != nil {
		if errors.Is(err, gcal.ErrNoCredentials) || errors.Is(err, gcal.ErrInvalidGrant) {
			return model.NewNotConnectedError()
		}
		return fmt.Errorf("カレンダークライアントの取得に失敗しました: %w", err)
	}

	// 古いチャネルの停止はベストエフォート。失効済みでも新規登録は続行する
	if prof.GoogleChannelID != "" {
		if err := client.StopChannel(ctx, prof.GoogleChannelID, prof.GoogleResourceID); err != nil {
			w.logger.Warn("既存チャネルの停止に失敗しました",
				slog.String("professional_id", prof.ID),
				slog.String("channel_id", prof.GoogleChannelID),
				slog.String("error", err.Error()),
			)
		}
	}

	channelID := uuid.NewString()
	info, err := client.Watch(ctx, prof.GoogleCalendarID, channelID, w.webhookAddress)
	if err != nil {
		w.logger.Error("監視チャネルの登録に失敗しました",
			slog.String("professional_id", prof.ID),
			slog.String("error", err.Error()),
		)
		return model.NewWatchFailedError()
	}

	if err := w.professionals.UpdateWatchChannel(ctx, prof.ID, channelID, info.ResourceID, info.Expiration); err != nil {
		return fmt.Errorf("監視チャネルの保存に失敗しました: %w", err)
	}

	w.metrics.RecordWatchRenewal()
	w.logger.Info("監視チャネルを登録しました",
		slog.String("professional_id", prof.ID),
		slog.String("channel_id", channelID),
		slog.Time("expires_at", info.Expiration),
	)

	// 監視開始前の変更を取りこぼさないよう即座に照合する
	if err := w.reconciler.ReconcileProfessional(ctx, prof); err != nil {
		w.logger.Error("監視開始直後の照合に失敗しました",
			slog.String("professional_id", prof.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Stop はプロフェッショナルの監視チャネルをベストエフォートで停止し、
// ローカルの識別子ペアを消去する。
func (w *WatchManager) Stop(ctx context.Context, prof *model.Professional) error {
	if prof.GoogleChannelID == "" {
		return nil
	}

	client, err := w.provider.ClientFor(ctx, prof.AdministratorID)
	if err == nil {
		if err := client.StopChannel(ctx, prof.GoogleChannelID, prof.GoogleResourceID); err != nil {
			w.logger.Warn("チャネルの停止に失敗しました",
				slog.String("professional_id", prof.ID),
				slog.String("channel_id", prof.GoogleChannelID),
				slog.String("error", err.Error()),
			)
		}
	}

	// リモート停止の成否に関わらずローカルのペアは消去する
	return w.professionals.UpdateWatchChannel(ctx, prof.ID, "", "", time.Time{})
}
