// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/bookman/internal/model"
)

// SessionCookieName はセッションIDを保持するHTTP Only Cookieの名前。
const SessionCookieName = "bookman_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var ownerIDContextKey = contextKey("owner_id")

// SessionResolver はセッションIDからアカウントを解決するインターフェース。
// auth.Serviceの部分集合として定義する。
type SessionResolver interface {
	CurrentOwner(ctx context.Context, sessionID string) (*model.Owner, error)
}

// APIKeyResolver はAPIキーからアカウントを解決するインターフェース。
type APIKeyResolver interface {
	OwnerByAPIKey(ctx context.Context, apiKey string) (*model.Owner, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 認証済みアカウントIDをリクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには401を返す。
func NewSessionMiddleware(resolver SessionResolver, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteAPIError(w, model.NewUnauthorizedError())
				return
			}

			owner, err := resolver.CurrentOwner(r.Context(), cookie.Value)
			if err != nil {
				if apiErr, ok := err.(*model.APIError); ok {
					WriteAPIError(w, apiErr)
					return
				}
				logger.Error("セッションの解決に失敗しました",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDContextKey, owner.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAPIKeyMiddleware はX-API-Keyヘッダーからテナントを特定するミドルウェアを返す。
// 公開予約APIで使用し、特定したアカウントIDをコンテキストに注入する。
func NewAPIKeyMiddleware(resolver APIKeyResolver, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			owner, err := resolver.OwnerByAPIKey(r.Context(), apiKey)
			if err != nil {
				if apiErr, ok := err.(*model.APIError); ok {
					WriteAPIError(w, apiErr)
					return
				}
				logger.Error("APIキーの解決に失敗しました",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDContextKey, owner.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerIDFromContext はリクエストコンテキストからアカウントIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func OwnerIDFromContext(ctx context.Context) (string, error) {
	ownerID, ok := ctx.Value(ownerIDContextKey).(string)
	if !ok || ownerID == "" {
		return "", fmt.Errorf("アカウントIDがコンテキストにありません")
	}
	return ownerID, nil
}

// ContextWithOwnerID はコンテキストにアカウントIDを注入する。テスト用。
func ContextWithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDContextKey, ownerID)
}
