package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/bookman/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// statusForCode はエラーコードをHTTPステータスコードにマッピングする。
func statusForCode(code string) int {
	switch code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeProfessionalNotFound,
		model.ErrCodeEventNotFound,
		model.ErrCodeExceptionNotFound,
		model.ErrCodeRuleNotFound:
		return http.StatusNotFound
	case model.ErrCodeSlotConflict:
		return http.StatusConflict
	case model.ErrCodeInvalidRequest,
		model.ErrCodeSlotUnavailable,
		model.ErrCodeNoDefaultStatus,
		model.ErrCodeNotLinked,
		model.ErrCodeNotConnected:
		return http.StatusBadRequest
	case model.ErrCodeWatchFailed:
		return http.StatusBadGateway
	case "RATE_LIMIT_EXCEEDED":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteAPIError はエラーコードに応じたステータスで統一エラーレスポンスを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForCode(apiErr.Code))
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
