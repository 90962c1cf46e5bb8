// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// OwnerRepository はテナントアカウントと認証情報の永続化インターフェース。
// Googleカレンダー連携のクレデンシャルストアを兼ねる。
type OwnerRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Owner, error)

	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Owner, error)

	// FindByAPIKey はAPIキーでアカウントを検索する。見つからない場合はnilを返す。
	// 公開予約APIのテナント特定に使う。
	FindByAPIKey(ctx context.Context, apiKey string) (*model.Owner, error)

	// Count は登録済みアカウント数を返す。初回セットアップ判定に使う。
	Count(ctx context.Context) (int, error)

	// Create はアカウントを作成する。
	Create(ctx context.Context, owner *model.Owner) error

	// UpdateTimeZone はアカウントのタイムゾーン設定を更新する。
	UpdateTimeZone(ctx context.Context, id, timezone string) error

	// UpdateWebhookSettings はテナントWebhookの配信先と有効フラグを更新する。
	UpdateWebhookSettings(ctx context.Context, id, webhookURL string, enabled bool) error

	// UpdateAPIKey はAPIキーを更新する。
	UpdateAPIKey(ctx context.Context, id, apiKey string) error

	// SaveGoogleTokens はトークンローテーション時に新しいトークンを永続化する。
	// refreshTokenが空の場合はアクセストークンのみを更新する
	// （リフレッシュトークンのローテーションは交換のたびに保証されない）。
	SaveGoogleTokens(ctx context.Context, id, accessToken, refreshToken string) error

	// SetGoogleAccount はOAuthコールバックで取得した認証情報一式を保存する。
	SetGoogleAccount(ctx context.Context, id, accessToken, refreshToken, email string) error

	// ClearGoogleAccount は保存済みのGoogle認証情報をすべて消去する。
	ClearGoogleAccount(ctx context.Context, id string) error
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ProfessionalRepository はプロフェッショナルデータの永続化インターフェース。
type ProfessionalRepository interface {
	// FindByID は指定IDのプロフェッショナルを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Professional, error)

	// FindByIDForOwner は所有者チェック付きでプロフェッショナルを取得する。
	// 見つからないか所有者が異なる場合はnilを返す。
	FindByIDForOwner(ctx context.Context, id, ownerID string) (*model.Professional, error)

	// FindByChannelID は通知チャネルIDでプロフェッショナルを検索する。
	// 見つからない場合はnilを返す（失効した外部チャネルからの通知）。
	FindByChannelID(ctx context.Context, channelID string) (*model.Professional, error)

	// ListByOwner は所有者のプロフェッショナル一覧を名前順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Professional, error)

	// Create はプロフェッショナルを作成する。
	Create(ctx context.Context, p *model.Professional) error

	// Update はプロフェッショナルの基本情報を更新する。
	Update(ctx context.Context, p *model.Professional, ownerID string) (bool, error)

	// Delete は所有者チェック付きでプロフェッショナルを削除する。
	Delete(ctx context.Context, id, ownerID string) (bool, error)

	// SetCalendarID は連携先のリモートカレンダーIDを設定する。
	SetCalendarID(ctx context.Context, id, calendarID string) error

	// UpdateWatchChannel は通知チャネルの識別子ペアをアトミックに置き換える。
	// channelIDとresourceIDは常にペアで設定され、両方空を渡すと監視解除となる。
	UpdateWatchChannel(ctx context.Context, id, channelID, resourceID string, expiresAt time.Time) error

	// ClearIntegration は所有者配下の全プロフェッショナルの
	// カレンダーID・チャネル・リソース識別子を消去する。
	ClearIntegration(ctx context.Context, ownerID string) error

	// ListWatchesExpiringBefore は有効期限がdeadline以前の監視チャネルを持つ
	// プロフェッショナルを返す。更新スイープの対象選定に使う。
	ListWatchesExpiringBefore(ctx context.Context, deadline time.Time) ([]*model.Professional, error)
}

// AvailabilityRepository は週次テンプレートと例外の永続化インターフェース。
type AvailabilityRepository interface {
	// ListRules はプロフェッショナルの週次テンプレートを曜日・開始時刻順で返す。
	ListRules(ctx context.Context, professionalID string) ([]*model.AvailabilityRule, error)

	// CreateRule はテンプレートエントリを作成する。
	CreateRule(ctx context.Context, rule *model.AvailabilityRule) error

	// UpdateRule は所有者チェック付きでテンプレートエントリの時間帯を更新する。
	UpdateRule(ctx context.Context, id, ownerID, startTime, endTime string) (bool, error)

	// DeleteRule は所有者チェック付きでテンプレートエントリを削除する。
	DeleteRule(ctx context.Context, id, ownerID string) (bool, error)

	// CopyDay はある曜日のテンプレートを複数の曜日に複製する。
	// 対象曜日の既存エントリは削除され、同一トランザクションで置き換えられる。
	CopyDay(ctx context.Context, professionalID string, sourceDay int, targetDays []int) error

	// ListExceptions はプロフェッショナルの例外一覧を日付・開始時刻順で返す。
	// exceptionDateが非空の場合はその日付のみに絞り込む。
	ListExceptions(ctx context.Context, professionalID, exceptionDate string) ([]*model.AvailabilityException, error)

	// ListExceptionsInRange は日付範囲 [from, to] に含まれる例外を返す。
	ListExceptionsInRange(ctx context.Context, professionalID, from, to string) ([]*model.AvailabilityException, error)

	// CreateException は例外を作成する。
	CreateException(ctx context.Context, e *model.AvailabilityException) error

	// UpdateException は所有者チェック付きで例外の時間帯を更新する。
	UpdateException(ctx context.Context, id, ownerID, startTime, endTime string) (bool, error)

	// DeleteException は所有者チェック付きで例外を削除する。
	DeleteException(ctx context.Context, id, ownerID string) (bool, error)
}

// EventRepository はイベント（予約）データの永続化インターフェース。
// リモートイベントIDをコンフリクトキーとする操作は、並行する同期処理の
// 冪等性を支えるためすべてここに集約する。
type EventRepository interface {
	// FindByID は所有者チェック付きでイベントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id, ownerID string) (*model.Event, error)

	// FindByRemoteID はリモートイベントIDでイベントを検索する。見つからない場合はnilを返す。
	FindByRemoteID(ctx context.Context, googleEventID string) (*model.Event, error)

	// List は所有者のイベント一覧を返す。professionalID・dateは空なら無視される。
	List(ctx context.Context, ownerID, professionalID, date string) ([]*model.Event, error)

	// ListByProfessional はプロフェッショナルの全イベントを開始時刻順で返す。
	ListByProfessional(ctx context.Context, professionalID string) ([]*model.Event, error)

	// ListStartTimesInRange は期間 [from, to) に開始するイベントの開始時刻を返す。
	ListStartTimesInRange(ctx context.Context, professionalID string, from, to time.Time) ([]time.Time, error)

	// ExistsAt は指定時刻ちょうどに開始する予約が存在するかを返す。
	ExistsAt(ctx context.Context, professionalID string, start time.Time) (bool, error)

	// Create はイベントを作成する。
	Create(ctx context.Context, ev *model.Event) error

	// Update は所有者チェック付きでイベントを更新する。
	Update(ctx context.Context, ev *model.Event, ownerID string) (bool, error)

	// UpdateStatus は所有者チェック付きでステータスのみを更新する。
	UpdateStatus(ctx context.Context, id, ownerID, statusID string) (bool, error)

	// Delete は所有者チェック付きでイベントを削除する。
	Delete(ctx context.Context, id, ownerID string) (bool, error)

	// SetRemoteID はアウトバウンド同期で得たリモートイベントIDを永続化する。
	SetRemoteID(ctx context.Context, id, googleEventID string) error

	// UpdateFromRemote はリモート変更をローカルイベントに反映する。
	// professionalIDの上書きはカレンダー間のイベント移動に対応するための仕様。
	UpdateFromRemote(ctx context.Context, id, clientName string, start, end time.Time, professionalID string) error

	// DeleteByRemoteID はリモートイベントIDでイベントを削除し、削除件数を返す。
	// 対象が存在しない場合は0件で正常終了する（すでに整合している）。
	DeleteByRemoteID(ctx context.Context, googleEventID string) (int64, error)
}

// StatusRepository はカンバンステータスの永続化インターフェース。
type StatusRepository interface {
	// FindByID は指定IDのステータスを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.KanbanStatus, error)

	// FindDefault は所有者のデフォルトステータス（sort_order最小）を返す。
	// ひとつも存在しない場合はnilを返す。
	FindDefault(ctx context.Context, ownerID string) (*model.KanbanStatus, error)

	// List は所有者のステータス一覧をsort_order順で返す。
	List(ctx context.Context, ownerID string) ([]*model.KanbanStatus, error)

	// Create はステータスを作成する。
	Create(ctx context.Context, s *model.KanbanStatus) error

	// Update は所有者チェック付きでステータスを更新する。
	Update(ctx context.Context, s *model.KanbanStatus, ownerID string) (bool, error)

	// Delete は所有者チェック付きでステータスを削除する。
	Delete(ctx context.Context, id, ownerID string) (bool, error)

	// Reorder は与えられたID順でsort_orderを振り直す。
	Reorder(ctx context.Context, ownerID string, orderedIDs []string) error
}
