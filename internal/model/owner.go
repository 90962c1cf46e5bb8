// Package model はドメインモデルを定義する。
package model

import "time"

// Owner はプロフェッショナルとそのカレンダーを管理するテナントアカウントを表す。
// Googleカレンダー連携のOAuthトークンはこのアカウント単位で保持する。
type Owner struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	APIKey       string

	// TimeZone はIANAタイムゾーン名。未設定の場合は空文字列で、
	// 利用箇所でデフォルトタイムゾーンにフォールバックする。
	TimeZone string

	// テナント向けWebhook配信設定
	WebhookURL     string
	WebhookEnabled bool

	// Googleカレンダー連携の認証情報。未連携の場合はすべて空文字列。
	GoogleAccessToken  string
	GoogleRefreshToken string
	GoogleUserEmail    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Connected はGoogleカレンダー連携が有効かを返す。
func (o *Owner) Connected() bool {
	return o.GoogleRefreshToken != ""
}

// Session はベアラートークンで参照されるログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Professional はOwnerに属する予約対象のサービス提供者を表す。
type Professional struct {
	ID              string
	AdministratorID string
	Name            string
	Email           string
	Specialties     string
	CRM             string
	Observations    string
	Color           string

	// GoogleCalendarID は連携先カレンダーのID。未連携の場合は空文字列。
	GoogleCalendarID string

	// GoogleChannelID / GoogleResourceID はプッシュ通知チャネルの識別子ペア。
	// 監視が有効な間のみ両方が設定される。片方だけが設定された状態は不正で、
	// 監視の再登録時にペアとしてアトミックに置き換える。
	GoogleChannelID  string
	GoogleResourceID string

	// WatchExpiresAt はGoogle側のチャネル有効期限。更新スイープの対象判定に使う。
	WatchExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Linked はGoogleカレンダーに連携済みかを返す。
func (p *Professional) Linked() bool {
	return p.GoogleCalendarID != ""
}

// KanbanStatus はイベントの進行状態を表す。
// sort_orderが最小のものがそのOwnerのデフォルトステータスになる。
type KanbanStatus struct {
	ID        string
	UserID    string
	Name      string
	Color     string
	SortOrder int
}
