package model

import "time"

// Event は予約（アポイントメント）を表す。
// ローカルの予約作成、またはリモートカレンダーからの取り込みで生成される。
type Event struct {
	ID             string
	UserID         string
	ProfessionalID string

	ClientName  string
	ClientCPF   string
	ClientPhone string
	Notes       string

	StartTime time.Time
	EndTime   time.Time

	StatusID string

	// GoogleEventID はリモートイベントとの突合キー。未同期の場合は空文字列。
	// 非空の値はプロフェッショナルのリモートカレンダー内で一意でなければならない。
	GoogleEventID string

	CreatedAt time.Time
	UpdatedAt time.Time

	// 表示用の結合フィールド（JOINで取得、永続化されない）
	ProfessionalName  string
	ProfessionalColor string
	StatusName        string
	StatusColor       string
}

// Synced はリモートカレンダーに同期済みかを返す。
func (e *Event) Synced() bool {
	return e.GoogleEventID != ""
}
