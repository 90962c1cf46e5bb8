package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, calendar, sync, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeProfessionalNotFound = "PROFESSIONAL_NOT_FOUND"
	ErrCodeEventNotFound        = "EVENT_NOT_FOUND"
	ErrCodeExceptionNotFound    = "EXCEPTION_NOT_FOUND"
	ErrCodeRuleNotFound         = "AVAILABILITY_NOT_FOUND"
	ErrCodeSlotUnavailable      = "SLOT_UNAVAILABLE"
	ErrCodeSlotConflict         = "SLOT_CONFLICT"
	ErrCodeNoDefaultStatus      = "NO_DEFAULT_STATUS"
	ErrCodeNotLinked            = "CALENDAR_NOT_LINKED"
	ErrCodeNotConnected         = "GOOGLE_NOT_CONNECTED"
	ErrCodeWatchFailed          = "WATCH_FAILED"
)

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidRequestError はリクエスト検証エラーを生成する。
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewExceptionNotFoundError は例外未検出エラーを生成する。
func NewExceptionNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeExceptionNotFound,
		Message:  fmt.Sprintf("指定された例外が見つかりません: %s", id),
		Category: "validation",
		Action:   "例外IDを確認してください。",
	}
}

// NewRuleNotFoundError はテンプレートエントリ未検出エラーを生成する。
func NewRuleNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeRuleNotFound,
		Message:  fmt.Sprintf("指定されたテンプレートが見つかりません: %s", id),
		Category: "validation",
		Action:   "テンプレートIDを確認してください。",
	}
}

// NewWatchFailedError は監視チャネル登録失敗エラーを生成する。
func NewWatchFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeWatchFailed,
		Message:  "カレンダー変更通知の登録に失敗しました。",
		Category: "calendar",
		Action:   "Googleアカウントの接続状態を確認して再試行してください。",
	}
}

// NewProfessionalNotFoundError はプロフェッショナル未検出エラーを生成する。
func NewProfessionalNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeProfessionalNotFound,
		Message:  fmt.Sprintf("指定されたプロフェッショナルが見つかりません: %s", id),
		Category: "validation",
		Action:   "プロフェッショナルIDを確認してください。",
	}
}

// NewEventNotFoundError はイベント未検出エラーを生成する。
func NewEventNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeEventNotFound,
		Message:  fmt.Sprintf("指定されたイベントが見つかりません: %s", id),
		Category: "validation",
		Action:   "イベントIDを確認してください。",
	}
}

// NewSlotUnavailableError は勤務時間外の予約エラーを生成する。
func NewSlotUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeSlotUnavailable,
		Message:  "指定された時間帯はプロフェッショナルの勤務時間外です。",
		Category: "validation",
		Action:   "空き時間の一覧から時間帯を選択してください。",
	}
}

// NewSlotConflictError は予約重複エラーを生成する。
func NewSlotConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeSlotConflict,
		Message:  "この時間帯はすでに予約されています。",
		Category: "validation",
		Action:   "別の時間帯を選択してください。",
	}
}

// NewNoDefaultStatusError はデフォルトステータス未設定エラーを生成する。
func NewNoDefaultStatusError() *APIError {
	return &APIError{
		Code:     ErrCodeNoDefaultStatus,
		Message:  "デフォルトのカンバンステータスが設定されていません。",
		Category: "validation",
		Action:   "予約を作成する前にステータスを作成してください。",
	}
}

// NewNotLinkedError はカレンダー未連携エラーを生成する。
func NewNotLinkedError(professionalID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotLinked,
		Message:  fmt.Sprintf("プロフェッショナル %s はGoogleカレンダーに連携されていません。", professionalID),
		Category: "calendar",
		Action:   "連携設定からGoogleカレンダーIDを設定してください。",
	}
}

// NewNotConnectedError はGoogle未接続エラーを生成する。
func NewNotConnectedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotConnected,
		Message:  "Googleアカウントが接続されていません。",
		Category: "calendar",
		Action:   "設定画面からGoogleアカウントを接続してください。",
	}
}
