package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/bookman/internal/gcal"
	"github.com/hitoshi/bookman/internal/metrics"
	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// OutboundSync はローカルの予約変更をリモートカレンダーへ反映する。
//
// 反映対象は作成と削除のみ。ローカルでの更新はリモートへ伝播しない。
// すべての操作はベストエフォートで、失敗してもローカルの操作は成立済みとして扱う。
type OutboundSync struct {
	provider      ClientProvider
	professionals repository.ProfessionalRepository
	events        repository.EventRepository
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
}

// NewOutboundSync はOutboundSyncの新しいインスタンスを生成する。
func NewOutboundSync(
	provider ClientProvider,
	professionals repository.ProfessionalRepository,
	events repository.EventRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *OutboundSync {
	return &OutboundSync{
		provider:      provider,
		professionals: professionals,
		events:        events,
		metrics:       collector,
		logger:        logger,
	}
}

// buildDescription は予約の詳細をリモートイベントの説明文に整形する。
func buildDescription(ev *model.Event, professionalName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Professional: %s\n", professionalName)
	if ev.ClientCPF != "" {
		fmt.Fprintf(&b, "CPF: %s\n", ev.ClientCPF)
	}
	if ev.ClientPhone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", ev.ClientPhone)
	}
	if ev.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", ev.Notes)
	}
	return strings.TrimRight(b.String(), "\n")
}

// PushCreate はローカルで作成された予約をリモートカレンダーに作成し、
// 採番されたリモートイベントIDをローカルに記録する。
// プロフェッショナルが未連携、またはGoogleアカウント未接続の場合は何もしない。
func (o *OutboundSync) PushCreate(ctx context.Context, ev *model.Event) error {
	prof, err := o.professionals.FindByID(ctx, ev.ProfessionalID)
	if err != nil {
		return fmt.Errorf("プロフェッショナルの取得に失敗しました: %w", err)
	}
	if prof == nil || !prof.Linked() {
		o.logger.Debug("カレンダー未連携のためリモート作成をスキップします",
			slog.String("event_id", ev.ID),
		)
		return nil
	}

	client, err := o.clientFor(ctx, prof.AdministratorID, "create")
	if err != nil || client == nil {
		return err
	}

	remote := &gcal.RemoteEvent{
		Summary:     ev.ClientName,
		Description: buildDescription(ev, prof.Name),
		Start:       &gcal.EventTime{DateTime: ev.StartTime.Format(time.RFC3339)},
		End:         &gcal.EventTime{DateTime: ev.EndTime.Format(time.RFC3339)},
	}

	created, err := client.InsertEvent(ctx, prof.GoogleCalendarID, remote)
	if err != nil {
		o.metrics.RecordOutboundFailure("create")
		return fmt.Errorf("リモートイベントの作成に失敗しました: %w", err)
	}

	if err := o.events.SetRemoteID(ctx, ev.ID, created.ID); err != nil {
		o.metrics.RecordOutboundFailure("create")
		return fmt.Errorf("リモートイベントIDの記録に失敗しました: %w", err)
	}

	o.metrics.RecordOutboundPush("create")
	o.logger.Info("予約をリモートカレンダーに作成しました",
		slog.String("event_id", ev.ID),
		slog.String("google_event_id", created.ID),
	)
	return nil
}

// PushDelete はローカルで削除された予約をリモートカレンダーからも削除する。
// 未同期の予約、またはリモート側ですでに消えている予約は成功として扱う。
func (o *OutboundSync) PushDelete(ctx context.Context, ev *model.Event) error {
	if !ev.Synced() {
		return nil
	}

	prof, err := o.professionals.FindByID(ctx, ev.ProfessionalID)
	if err != nil {
		return fmt.Errorf("プロフェッショナルの取得に失敗しました: %w", err)
	}
	if prof == nil || !prof.Linked() {
		return nil
	}

	client, err := o.clientFor(ctx, prof.AdministratorID, "delete")
	if err != nil || client == nil {
		return err
	}

	if err := client.DeleteEvent(ctx, prof.GoogleCalendarID, ev.GoogleEventID); err != nil {
		o.metrics.RecordOutboundFailure("delete")
		return fmt.Errorf("リモートイベントの削除に失敗しました: %w", err)
	}

	o.metrics.RecordOutboundPush("delete")
	o.logger.Info("予約をリモートカレンダーから削除しました",
		slog.String("event_id", ev.ID),
		slog.String("google_event_id", ev.GoogleEventID),
	)
	return nil
}

// clientFor は認証済みクライアントを取得する。
// 未接続・トークン失効は反映対象外として (nil, nil) を返す。
func (o *OutboundSync) clientFor(ctx context.Context, ownerID, operation string) (CalendarAPI, error) {
	client, err := o.provider.ClientFor(ctx, ownerID)
	if err != nil {
		if errors.Is(err, gcal.ErrNoCredentials) || errors.Is(err, gcal.ErrInvalidGrant) {
			o.logger.Warn("Google連携が無効のためリモート反映をスキップします",
				slog.String("owner_id", ownerID),
				slog.String("operation", operation),
			)
			return nil, nil
		}
		o.metrics.RecordOutboundFailure(operation)
		return nil, err
	}
	return client, nil
}
