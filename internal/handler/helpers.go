// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/bookman/internal/middleware"
	"github.com/hitoshi/bookman/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// decodeJSON はリクエストボディを厳密にデコードする。未知のフィールドは拒否する。
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// handleServiceError はサービス層から返されたエラーをHTTPレスポンスに変換する。
// APIError以外のエラーは詳細をログに記録し、一般的な500レスポンスを返す。
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}
	logger.Error("内部エラー", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// writeBadRequest はリクエスト解析エラーの統一レスポンスを書き込む。
func writeBadRequest(w http.ResponseWriter, message string) {
	middleware.WriteAPIError(w, model.NewInvalidRequestError(message))
}

// ownerID は認証ミドルウェアが注入したアカウントIDを取り出す。
// 取り出せない場合は401を書き込みfalseを返す。
func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := middleware.OwnerIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return "", false
	}
	return id, true
}
