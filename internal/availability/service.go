package availability

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// timePattern は"HH:MM"形式の検証パターン。
var timePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// datePattern は"YYYY-MM-DD"形式の検証パターン。
var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Service は空き時間の解決とテンプレート・例外の管理を統括するサービス層。
type Service struct {
	professionals repository.ProfessionalRepository
	owners        repository.OwnerRepository
	availability  repository.AvailabilityRepository
	events        repository.EventRepository
	logger        *slog.Logger

	slotDuration    time.Duration
	defaultTimeZone string
	now             func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	professionals repository.ProfessionalRepository,
	owners repository.OwnerRepository,
	availability repository.AvailabilityRepository,
	events repository.EventRepository,
	logger *slog.Logger,
	slotDuration time.Duration,
	defaultTimeZone string,
) *Service {
	return &Service{
		professionals:   professionals,
		owners:          owners,
		availability:    availability,
		events:          events,
		logger:          logger,
		slotDuration:    slotDuration,
		defaultTimeZone: defaultTimeZone,
		now:             time.Now,
	}
}

// Location はテナントのタイムゾーンを解決する。
// 未設定または不正な値の場合はデフォルトタイムゾーンにフォールバックする。
func (s *Service) Location(ctx context.Context, ownerID string) *time.Location {
	owner, err := s.owners.FindByID(ctx, ownerID)
	if err != nil || owner == nil || owner.TimeZone == "" {
		return s.defaultLocation()
	}
	loc, err := time.LoadLocation(owner.TimeZone)
	if err != nil {
		s.logger.Warn("不正なタイムゾーン設定のためデフォルトを使用します",
			slog.String("owner_id", ownerID),
			slog.String("timezone", owner.TimeZone),
		)
		return s.defaultLocation()
	}
	return loc
}

func (s *Service) defaultLocation() *time.Location {
	loc, err := time.LoadLocation(s.defaultTimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ResolveMonth は指定プロフェッショナルの指定月の空き時間を計算する。
// テナントのタイムゾーンで日付境界と過去判定を行う。
func (s *Service) ResolveMonth(ctx context.Context, professionalID string, year int, month time.Month) (map[string][]string, error) {
	prof, err := s.professionals.FindByID(ctx, professionalID)
	if err != nil {
		return nil, fmt.Errorf("プロフェッショナルの取得に失敗しました: %w", err)
	}
	if prof == nil {
		return nil, model.NewProfessionalNotFoundError(professionalID)
	}

	loc := s.Location(ctx, prof.AdministratorID)

	rules, err := s.availability.ListRules(ctx, professionalID)
	if err != nil {
		return nil, err
	}

	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	nextMonth := firstOfMonth.AddDate(0, 1, 0)
	from := firstOfMonth.Format("2006-01-02")
	to := nextMonth.AddDate(0, 0, -1).Format("2006-01-02")

	exceptions, err := s.availability.ListExceptionsInRange(ctx, professionalID, from, to)
	if err != nil {
		return nil, err
	}

	bookedStarts, err := s.events.ListStartTimesInRange(ctx, professionalID, firstOfMonth, nextMonth)
	if err != nil {
		return nil, err
	}

	return ComputeOpenSlots(rules, exceptions, bookedStarts, year, month, loc, s.slotDuration, s.now()), nil
}

// validateWindow は時間帯の形式と順序を検証する。
func validateWindow(startTime, endTime string) error {
	if !timePattern.MatchString(startTime) || !timePattern.MatchString(endTime) {
		return model.NewInvalidRequestError("時刻はHH:MM形式で指定してください。")
	}
	if startTime >= endTime {
		return model.NewInvalidRequestError("開始時刻は終了時刻より前でなければなりません。")
	}
	return nil
}

// ListRules はプロフェッショナルの週次テンプレートを返す。
func (s *Service) ListRules(ctx context.Context, professionalID, ownerID string) ([]*model.AvailabilityRule, error) {
	if err := s.ensureProfessional(ctx, professionalID, ownerID); err != nil {
		return nil, err
	}
	return s.availability.ListRules(ctx, professionalID)
}

// CreateRule はテンプレートエントリを作成する。
func (s *Service) CreateRule(ctx context.Context, ownerID, professionalID string, dayOfWeek int, startTime, endTime string) (*model.AvailabilityRule, error) {
	if err := s.ensureProfessional(ctx, professionalID, ownerID); err != nil {
		return nil, err
	}
	if dayOfWeek < 1 || dayOfWeek > 7 {
		return nil, model.NewInvalidRequestError("曜日は1（月曜）から7（日曜）で指定してください。")
	}
	if err := validateWindow(startTime, endTime); err != nil {
		return nil, err
	}

	rule := &model.AvailabilityRule{
		ID:             uuid.NewString(),
		ProfessionalID: professionalID,
		DayOfWeek:      dayOfWeek,
		StartTime:      startTime,
		EndTime:        endTime,
	}
	if err := s.availability.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// UpdateRule はテンプレートエントリの時間帯を更新する。
func (s *Service) UpdateRule(ctx context.Context, id, ownerID, startTime, endTime string) error {
	if err := validateWindow(startTime, endTime); err != nil {
		return err
	}
	ok, err := s.availability.UpdateRule(ctx, id, ownerID, startTime, endTime)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewRuleNotFoundError(id)
	}
	return nil
}

// DeleteRule はテンプレートエントリを削除する。
func (s *Service) DeleteRule(ctx context.Context, id, ownerID string) error {
	ok, err := s.availability.DeleteRule(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewRuleNotFoundError(id)
	}
	return nil
}

// CopyDay はある曜日のテンプレートを複数の曜日に複製する。
func (s *Service) CopyDay(ctx context.Context, ownerID, professionalID string, sourceDay int, targetDays []int) error {
	if err := s.ensureProfessional(ctx, professionalID, ownerID); err != nil {
		return err
	}
	if sourceDay < 1 || sourceDay > 7 {
		return model.NewInvalidRequestError("曜日は1（月曜）から7（日曜）で指定してください。")
	}
	for _, day := range targetDays {
		if day < 1 || day > 7 {
			return model.NewInvalidRequestError("曜日は1（月曜）から7（日曜）で指定してください。")
		}
	}
	return s.availability.CopyDay(ctx, professionalID, sourceDay, targetDays)
}

// ListExceptions はプロフェッショナルの例外一覧を返す。
func (s *Service) ListExceptions(ctx context.Context, professionalID, ownerID, exceptionDate string) ([]*model.AvailabilityException, error) {
	if err := s.ensureProfessional(ctx, professionalID, ownerID); err != nil {
		return nil, err
	}
	return s.availability.ListExceptions(ctx, professionalID, exceptionDate)
}

// CreateException は例外を作成する。startTime/endTimeが両方空の場合は終日例外になる。
func (s *Service) CreateException(ctx context.Context, ownerID, professionalID, exceptionDate, startTime, endTime string) (*model.AvailabilityException, error) {
	if err := s.ensureProfessional(ctx, professionalID, ownerID); err != nil {
		return nil, err
	}
	if !datePattern.MatchString(exceptionDate) {
		return nil, model.NewInvalidRequestError("日付はYYYY-MM-DD形式で指定してください。")
	}
	if startTime != "" || endTime != "" {
		if err := validateWindow(startTime, endTime); err != nil {
			return nil, err
		}
	}

	e := &model.AvailabilityException{
		ID:             uuid.NewString(),
		ProfessionalID: professionalID,
		ExceptionDate:  exceptionDate,
		StartTime:      startTime,
		EndTime:        endTime,
	}
	if err := s.availability.CreateException(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateException は例外の時間帯を更新する。
func (s *Service) UpdateException(ctx context.Context, id, ownerID, startTime, endTime string) error {
	if startTime != "" || endTime != "" {
		if err := validateWindow(startTime, endTime); err != nil {
			return err
		}
	}
	ok, err := s.availability.UpdateException(ctx, id, ownerID, startTime, endTime)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewExceptionNotFoundError(id)
	}
	return nil
}

// DeleteException は例外を削除する。
func (s *Service) DeleteException(ctx context.Context, id, ownerID string) error {
	ok, err := s.availability.DeleteException(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewExceptionNotFoundError(id)
	}
	return nil
}

// ensureProfessional は所有者チェック付きでプロフェッショナルの存在を確認する。
func (s *Service) ensureProfessional(ctx context.Context, professionalID, ownerID string) error {
	prof, err := s.professionals.FindByIDForOwner(ctx, professionalID, ownerID)
	if err != nil {
		return fmt.Errorf("プロフェッショナルの取得に失敗しました: %w", err)
	}
	if prof == nil {
		return model.NewProfessionalNotFoundError(professionalID)
	}
	return nil
}
