// Package event は予約（アポイントメント）の作成・更新・削除と、
// その後続処理（カレンダー同期・Webhook通知・リアルタイム配信）を提供する。
package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
	"github.com/hitoshi/bookman/internal/security"
)

// CalendarPusher はリモートカレンダーへのアウトバウンド同期インターフェース。
type CalendarPusher interface {
	PushCreate(ctx context.Context, ev *model.Event) error
	PushDelete(ctx context.Context, ev *model.Event) error
}

// Notifier はテナントWebhookへの通知配信インターフェース。
type Notifier interface {
	Notify(ctx context.Context, ownerID, action string, data any)
}

// Broadcaster は接続中クライアントへのリアルタイム配信インターフェース。
type Broadcaster interface {
	Broadcast(msgType string, data any)
}

// Locator はテナントのタイムゾーンを解決するインターフェース。
type Locator interface {
	Location(ctx context.Context, ownerID string) *time.Location
}

// Service は予約のユースケースを提供する。
//
// 作成・削除の後続処理（カレンダー同期・Webhook・リアルタイム配信）は
// すべてベストエフォートで、失敗しても予約操作自体は成功する。
// 更新はリモートカレンダーへ伝播しない。リモート側の変更は取り込むが、
// ローカルの編集を外部へ押し出すのは作成と削除だけとする。
type Service struct {
	events        repository.EventRepository
	professionals repository.ProfessionalRepository
	statuses      repository.StatusRepository
	availability  repository.AvailabilityRepository
	pusher        CalendarPusher
	notifier      Notifier
	broadcaster   Broadcaster
	locator       Locator
	sanitizer     security.TextSanitizerService
	logger        *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	events repository.EventRepository,
	professionals repository.ProfessionalRepository,
	statuses repository.StatusRepository,
	availability repository.AvailabilityRepository,
	pusher CalendarPusher,
	notifier Notifier,
	broadcaster Broadcaster,
	locator Locator,
	sanitizer security.TextSanitizerService,
	logger *slog.Logger,
) *Service {
	return &Service{
		events:        events,
		professionals: professionals,
		statuses:      statuses,
		availability:  availability,
		pusher:        pusher,
		notifier:      notifier,
		broadcaster:   broadcaster,
		locator:       locator,
		sanitizer:     sanitizer,
		logger:        logger,
	}
}

// CreateInput は予約作成の入力。
type CreateInput struct {
	ProfessionalID string
	ClientName     string
	ClientCPF      string
	ClientPhone    string
	Notes          string
	StartTime      time.Time
	EndTime        time.Time
	StatusID       string
}

// Create は予約を作成する。
// 開始・終了がプロフェッショナルの週次テンプレート内に収まらない場合は
// SLOT_UNAVAILABLE、同時刻に開始する予約がすでにある場合はSLOT_CONFLICTを返す。
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*model.Event, error) {
	if in.ClientName == "" {
		return nil, model.NewInvalidRequestError("クライアント名は必須です")
	}
	if !in.StartTime.Before(in.EndTime) {
		return nil, model.NewInvalidRequestError("開始時刻は終了時刻より前でなければなりません")
	}

	prof, err := s.professionals.FindByIDForOwner(ctx, in.ProfessionalID, ownerID)
	if err != nil {
		return nil, err
	}
	if prof == nil {
		return nil, model.NewProfessionalNotFoundError(in.ProfessionalID)
	}

	if err := s.checkTemplate(ctx, ownerID, in.ProfessionalID, in.StartTime, in.EndTime); err != nil {
		return nil, err
	}

	exists, err := s.events.ExistsAt(ctx, in.ProfessionalID, in.StartTime)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, model.NewSlotConflictError()
	}

	statusID := in.StatusID
	if statusID == "" {
		def, err := s.statuses.FindDefault(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		if def == nil {
			return nil, model.NewNoDefaultStatusError()
		}
		statusID = def.ID
	} else {
		status, err := s.statuses.FindByID(ctx, statusID)
		if err != nil {
			return nil, err
		}
		if status == nil || status.UserID != ownerID {
			return nil, model.NewInvalidRequestError("指定されたステータスが見つかりません")
		}
	}

	ev := &model.Event{
		ID:             uuid.NewString(),
		UserID:         ownerID,
		ProfessionalID: in.ProfessionalID,
		ClientName:     s.sanitizer.Sanitize(in.ClientName),
		ClientCPF:      s.sanitizer.Sanitize(in.ClientCPF),
		ClientPhone:    s.sanitizer.Sanitize(in.ClientPhone),
		Notes:          s.sanitizer.Sanitize(in.Notes),
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		StatusID:       statusID,
	}
	if err := s.events.Create(ctx, ev); err != nil {
		return nil, err
	}

	created, err := s.events.FindByID(ctx, ev.ID, ownerID)
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = ev
	}

	s.afterChange(created, "event.created")
	return created, nil
}

// checkTemplate は予約がプロフェッショナルの週次テンプレート内に
// 収まっているかをテナントのタイムゾーンで検証する。
func (s *Service) checkTemplate(ctx context.Context, ownerID, professionalID string, start, end time.Time) error {
	loc := s.locator.Location(ctx, ownerID)
	localStart := start.In(loc)
	localEnd := end.In(loc)

	// 日をまたぐ予約はテンプレートで表現できない
	if localStart.Format("2006-01-02") != localEnd.Format("2006-01-02") {
		return model.NewSlotUnavailableError()
	}

	rules, err := s.availability.ListRules(ctx, professionalID)
	if err != nil {
		return err
	}

	dow := model.ISOWeekday(localStart.Weekday())
	startHM := localStart.Format("15:04")
	endHM := localEnd.Format("15:04")
	for _, rule := range rules {
		if rule.DayOfWeek != dow {
			continue
		}
		// "HH:MM" 形式は辞書順の比較が時刻順と一致する
		if startHM >= rule.StartTime && endHM <= rule.EndTime {
			return nil
		}
	}
	return model.NewSlotUnavailableError()
}

// UpdateInput は予約更新の入力。
type UpdateInput struct {
	ProfessionalID string
	ClientName     string
	ClientCPF      string
	ClientPhone    string
	Notes          string
	StartTime      time.Time
	EndTime        time.Time
	StatusID       string
}

// Update は予約を更新する。リモートカレンダーへの伝播は行わない。
func (s *Service) Update(ctx context.Context, id, ownerID string, in UpdateInput) (*model.Event, error) {
	if in.ClientName == "" {
		return nil, model.NewInvalidRequestError("クライアント名は必須です")
	}
	if !in.StartTime.Before(in.EndTime) {
		return nil, model.NewInvalidRequestError("開始時刻は終了時刻より前でなければなりません")
	}

	existing, err := s.events.FindByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, model.NewEventNotFoundError(id)
	}

	prof, err := s.professionals.FindByIDForOwner(ctx, in.ProfessionalID, ownerID)
	if err != nil {
		return nil, err
	}
	if prof == nil {
		return nil, model.NewProfessionalNotFoundError(in.ProfessionalID)
	}

	existing.ProfessionalID = in.ProfessionalID
	existing.ClientName = s.sanitizer.Sanitize(in.ClientName)
	existing.ClientCPF = s.sanitizer.Sanitize(in.ClientCPF)
	existing.ClientPhone = s.sanitizer.Sanitize(in.ClientPhone)
	existing.Notes = s.sanitizer.Sanitize(in.Notes)
	existing.StartTime = in.StartTime
	existing.EndTime = in.EndTime
	if in.StatusID != "" {
		existing.StatusID = in.StatusID
	}

	ok, err := s.events.Update(ctx, existing, ownerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewEventNotFoundError(id)
	}

	updated, err := s.events.FindByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = existing
	}

	s.afterLocalChange(updated, "event.updated")
	return updated, nil
}

// UpdateStatus は予約のステータスのみを更新する。カンバンのカード移動に使う。
func (s *Service) UpdateStatus(ctx context.Context, id, ownerID, statusID string) (*model.Event, error) {
	status, err := s.statuses.FindByID(ctx, statusID)
	if err != nil {
		return nil, err
	}
	if status == nil || status.UserID != ownerID {
		return nil, model.NewInvalidRequestError("指定されたステータスが見つかりません")
	}

	ok, err := s.events.UpdateStatus(ctx, id, ownerID, statusID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewEventNotFoundError(id)
	}

	updated, err := s.events.FindByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, model.NewEventNotFoundError(id)
	}

	s.afterLocalChange(updated, "event.status_changed")
	return updated, nil
}

// Delete は予約を削除し、同期済みの場合はリモートカレンダーからも取り除く。
func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	existing, err := s.events.FindByID(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if existing == nil {
		return model.NewEventNotFoundError(id)
	}

	ok, err := s.events.Delete(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewEventNotFoundError(id)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), afterChangeTimeout)
		defer cancel()
		if err := s.pusher.PushDelete(ctx, existing); err != nil {
			s.logger.Warn("リモートカレンダーからの削除に失敗しました",
				slog.String("event_id", existing.ID),
				slog.String("error", err.Error()),
			)
		}
		s.notifier.Notify(ctx, existing.UserID, "event.deleted", existing)
	}()
	s.broadcaster.Broadcast("event.deleted", map[string]string{"id": existing.ID})
	return nil
}

// List は所有者の予約一覧を返す。professionalID・dateは空なら絞り込まない。
func (s *Service) List(ctx context.Context, ownerID, professionalID, date string) ([]*model.Event, error) {
	return s.events.List(ctx, ownerID, professionalID, date)
}

// Get は予約を1件取得する。
func (s *Service) Get(ctx context.Context, id, ownerID string) (*model.Event, error) {
	ev, err := s.events.FindByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, model.NewEventNotFoundError(id)
	}
	return ev, nil
}

const afterChangeTimeout = 30 * time.Second

// afterChange は作成の後続処理を非同期で実行する。
// リクエストのキャンセルに巻き込まれないよう独立したコンテキストを使う。
func (s *Service) afterChange(ev *model.Event, action string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), afterChangeTimeout)
		defer cancel()
		if err := s.pusher.PushCreate(ctx, ev); err != nil {
			s.logger.Warn("リモートカレンダーへの作成同期に失敗しました",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
		// Webhookには予約の全体を渡す（受信側はidの再取得を要求されない）
		s.notifier.Notify(ctx, ev.UserID, action, ev)
	}()
	s.broadcaster.Broadcast(action, map[string]string{"id": ev.ID})
}

// afterLocalChange は更新系の後続処理。リモートカレンダーへは伝播しない。
func (s *Service) afterLocalChange(ev *model.Event, action string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), afterChangeTimeout)
		defer cancel()
		s.notifier.Notify(ctx, ev.UserID, action, ev)
	}()
	s.broadcaster.Broadcast(action, map[string]string{"id": ev.ID})
}
