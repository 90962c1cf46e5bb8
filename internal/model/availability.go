package model

import "time"

// AvailabilityRule はプロフェッショナルの週次テンプレートの1エントリを表す。
// 同一曜日に複数エントリを登録でき、重なりは区間の和として扱う。
type AvailabilityRule struct {
	ID             string
	ProfessionalID string

	// DayOfWeek はISO 8601の曜日番号（月曜=1 〜 日曜=7）。
	DayOfWeek int

	// StartTime / EndTime は "HH:MM" 形式の壁時計時刻。日付は持たない。
	StartTime string
	EndTime   string
}

// AvailabilityException は特定日付の可用性を取り除く例外を表す。
// StartTime/EndTimeが両方空の場合は終日ブロック、両方設定されている場合は
// その部分区間 [StartTime, EndTime) のみをブロックする。
// 例外は可用性を取り除くだけで、テンプレート外の時間を追加することはない。
type AvailabilityException struct {
	ID             string
	ProfessionalID string
	ExceptionDate  string // "YYYY-MM-DD"
	StartTime      string // "HH:MM"、終日ブロックの場合は空
	EndTime        string // "HH:MM"、終日ブロックの場合は空
}

// AllDay は終日ブロックかを返す。
func (e *AvailabilityException) AllDay() bool {
	return e.StartTime == "" && e.EndTime == ""
}

// ISOWeekday はtime.Weekday（日曜=0始まり）をISOの曜日番号（月曜=1、日曜=7）に変換する。
// 曜日表現の正準形はISO番号で統一し、Goの標準表現との変換はこの1箇所だけで行う。
func ISOWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}
