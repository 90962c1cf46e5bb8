package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/bookman/internal/middleware"
	"github.com/hitoshi/bookman/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Setup(ctx context.Context, masterPassword, name, email, password string) (*model.Owner, *model.Session, error)
	Login(ctx context.Context, email, password string) (*model.Owner, *model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	CurrentOwner(ctx context.Context, sessionID string) (*model.Owner, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	logger  *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: service, config: config, logger: logger}
}

// ownerResponse はアカウント情報のAPIレスポンス。
// パスワードハッシュやOAuthトークンは含めない。
type ownerResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	TimeZone        string    `json:"timezone"`
	WebhookURL      string    `json:"webhook_url"`
	WebhookEnabled  bool      `json:"webhook_enabled"`
	GoogleConnected bool      `json:"google_connected"`
	GoogleUserEmail string    `json:"google_user_email,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func toOwnerResponse(o *model.Owner) ownerResponse {
	return ownerResponse{
		ID:              o.ID,
		Name:            o.Name,
		Email:           o.Email,
		Role:            o.Role,
		TimeZone:        o.TimeZone,
		WebhookURL:      o.WebhookURL,
		WebhookEnabled:  o.WebhookEnabled,
		GoogleConnected: o.Connected(),
		GoogleUserEmail: o.GoogleUserEmail,
		CreatedAt:       o.CreatedAt,
	}
}

type setupRequest struct {
	MasterPassword string `json:"master_password"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
}

// Setup は最初の管理者アカウントを作成する。
// POST /api/auth/setup
func (h *AuthHandler) Setup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	owner, session, err := h.service.Setup(r.Context(), req.MasterPassword, req.Name, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.setSessionCookie(w, session.ID)
	writeJSON(w, http.StatusCreated, toOwnerResponse(owner))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login はメールアドレスとパスワードで認証する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	owner, session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.setSessionCookie(w, session.ID)
	writeJSON(w, http.StatusOK, toOwnerResponse(owner))
}

// Logout はセッションを破棄する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
		if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Error("ログアウトに失敗しました", slog.String("error", err.Error()))
		}
	}

	// セッションCookieを削除
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のアカウント情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}

	owner, err := h.service.CurrentOwner(r.Context(), cookie.Value)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOwnerResponse(owner))
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
