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
	"github.com/hitoshi/bookman/internal/security"
)

// Reconciler はリモートカレンダーの現在状態をローカルの予約ストアに取り込む。
//
// 照合は宣言的で、通知の内容ではなくリモートの一覧取得結果だけを根拠とする。
// 同じチャネルに対して何度実行しても同じ結果に収束する（冪等）。
type Reconciler struct {
	provider      ClientProvider
	professionals repository.ProfessionalRepository
	events        repository.EventRepository
	statuses      repository.StatusRepository
	sanitizer     security.TextSanitizerService
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
}

// NewReconciler はReconcilerの新しいインスタンスを生成する。
func NewReconciler(
	provider ClientProvider,
	professionals repository.ProfessionalRepository,
	events repository.EventRepository,
	statuses repository.StatusRepository,
	sanitizer security.TextSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		provider:      provider,
		professionals: professionals,
		events:        events,
		statuses:      statuses,
		sanitizer:     sanitizer,
		metrics:       collector,
		logger:        logger,
	}
}

// ReconcileChannel は通知チャネルIDから対象プロフェッショナルを特定して照合する。
// チャネルが未知の場合（失効済みチャネルからの残存通知）は何もしない。
func (r *Reconciler) ReconcileChannel(ctx context.Context, channelID string) error {
	prof, err := r.professionals.FindByChannelID(ctx, channelID)
	if err != nil {
		return fmt.Errorf("チャネルの解決に失敗しました: %w", err)
	}
	if prof == nil {
		r.logger.Debug("未知の通知チャネルからの通知を無視します",
			slog.String("channel_id", channelID),
		)
		return nil
	}
	return r.ReconcileProfessional(ctx, prof)
}

// ReconcileProfessional は指定プロフェッショナルのリモートカレンダーを照合する。
//
// リモートの今後のイベント一覧（削除済み含む）を取得し、各イベントについて:
//   - キャンセル済み → ローカルの対応イベントを削除
//   - ローカルに存在 → タイトル・時間帯・担当を上書き（カレンダー間の移動にも追従）
//   - ローカルに無い  → デフォルトステータスで新規作成（ステータス未設定ならスキップ）
//
// 開始または終了時刻を持たないイベント（終日イベント等）は対象外としてスキップする。
func (r *Reconciler) ReconcileProfessional(ctx context.Context, prof *model.Professional) error {
	if !prof.Linked() {
		r.logger.Debug("カレンダー未連携のため照合をスキップします",
			slog.String("professional_id", prof.ID),
		)
		return nil
	}

	start := time.Now()

	client, err := r.provider.ClientFor(ctx, prof.AdministratorID)
	if err != nil {
		switch {
		case errors.Is(err, gcal.ErrNoCredentials):
			r.logger.Warn("Googleアカウント未接続のため照合をスキップします",
				slog.String("professional_id", prof.ID),
			)
			r.metrics.RecordReconcileFailure("no_credentials")
			return nil
		case errors.Is(err, gcal.ErrInvalidGrant):
			r.logger.Warn("トークン失効のため照合をスキップします。再連携が必要です",
				slog.String("professional_id", prof.ID),
				slog.String("owner_id", prof.AdministratorID),
			)
			r.metrics.RecordReconcileFailure("invalid_grant")
			return nil
		default:
			r.metrics.RecordReconcileFailure("client_error")
			return err
		}
	}

	remoteEvents, err := client.ListUpcomingEvents(ctx, prof.GoogleCalendarID)
	if err != nil {
		r.metrics.RecordReconcileFailure("list_error")
		return fmt.Errorf("リモートイベント一覧の取得に失敗しました: %w", err)
	}

	var imported, updated, deleted int

	// デフォルトステータスは最初に新規作成が必要になった時点で1回だけ引く
	var defaultStatus *model.KanbanStatus
	defaultStatusLoaded := false

	for _, remote := range remoteEvents {
		if remote.ID == "" {
			continue
		}

		if remote.Cancelled() {
			n, err := r.events.DeleteByRemoteID(ctx, remote.ID)
			if err != nil {
				r.logger.Error("キャンセルイベントの削除に失敗しました",
					slog.String("google_event_id", remote.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			deleted += int(n)
			continue
		}

		startTime, err := remote.Start.Time()
		if err != nil || startTime.IsZero() {
			r.logger.Debug("開始時刻を持たないイベントをスキップします",
				slog.String("google_event_id", remote.ID),
			)
			continue
		}
		endTime, err := remote.End.Time()
		if err != nil || endTime.IsZero() {
			r.logger.Debug("終了時刻を持たないイベントをスキップします",
				slog.String("google_event_id", remote.ID),
			)
			continue
		}

		clientName := r.sanitizer.Sanitize(remote.Summary)
		if clientName == "" {
			// タイトルの無いリモートイベントには代替表示名を与える
			clientName = "Evento do Google"
		}

		existing, err := r.events.FindByRemoteID(ctx, remote.ID)
		if err != nil {
			r.logger.Error("ローカルイベントの検索に失敗しました",
				slog.String("google_event_id", remote.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if existing != nil {
			// 担当プロフェッショナルの上書きでカレンダー間のイベント移動に追従する
			if err := r.events.UpdateFromRemote(ctx, existing.ID, clientName, startTime, endTime, prof.ID); err != nil {
				r.logger.Error("リモート変更の反映に失敗しました",
					slog.String("event_id", existing.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			updated++
			continue
		}

		if !defaultStatusLoaded {
			defaultStatus, err = r.statuses.FindDefault(ctx, prof.AdministratorID)
			if err != nil {
				r.logger.Error("デフォルトステータスの取得に失敗しました",
					slog.String("owner_id", prof.AdministratorID),
					slog.String("error", err.Error()),
				)
				continue
			}
			defaultStatusLoaded = true
		}
		if defaultStatus == nil {
			r.logger.Warn("デフォルトステータスが無いためリモートイベントの取り込みをスキップします",
				slog.String("google_event_id", remote.ID),
				slog.String("owner_id", prof.AdministratorID),
			)
			continue
		}

		now := time.Now()
		newEvent := &model.Event{
			ID:             uuid.NewString(),
			UserID:         prof.AdministratorID,
			ProfessionalID: prof.ID,
			ClientName:     clientName,
			StartTime:      startTime,
			EndTime:        endTime,
			StatusID:       defaultStatus.ID,
			GoogleEventID:  remote.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := r.events.Create(ctx, newEvent); err != nil {
			// google_event_idの一意制約により並行取り込みの二重作成はここで失敗する
			r.logger.Warn("リモートイベントの取り込みに失敗しました",
				slog.String("google_event_id", remote.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		imported++
	}

	r.metrics.RecordEventsImported(imported)
	r.metrics.RecordEventsUpdated(updated)
	r.metrics.RecordEventsDeleted(deleted)
	r.metrics.RecordReconcileLatency(time.Since(start))
	r.metrics.RecordReconcileSuccess()

	r.logger.Info("カレンダー照合が完了しました",
		slog.String("professional_id", prof.ID),
		slog.Int("remote_count", len(remoteEvents)),
		slog.Int("imported", imported),
		slog.Int("updated", updated),
		slog.Int("deleted", deleted),
	)
	return nil
}
