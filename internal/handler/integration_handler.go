package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bookman/internal/gcal"
	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

const oauthStateCookie = "bookman_oauth_state"

// OAuthFlow はGoogle OAuthフローのインターフェース。
type OAuthFlow interface {
	ConnectURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*gcal.TokenSet, error)
	Revoke(ctx context.Context, token string) error
}

// WatchService は通知チャネルのライフサイクル管理インターフェース。
type WatchService interface {
	StartOrRefresh(ctx context.Context, prof *model.Professional) error
	Stop(ctx context.Context, prof *model.Professional) error
}

// WebhookScheduler はWebhook通知の遅延リコンサイルを予約するインターフェース。
type WebhookScheduler interface {
	Notify(channelID string)
}

// IntegrationHandlerConfig は連携ハンドラーの設定。
type IntegrationHandlerConfig struct {
	CookieSecure bool
	// FrontendURL はOAuthコールバック後のリダイレクト先。
	FrontendURL string
}

// IntegrationHandler はGoogleカレンダー連携のHTTPハンドラー。
type IntegrationHandler struct {
	oauth         OAuthFlow
	owners        repository.OwnerRepository
	professionals repository.ProfessionalRepository
	watch         WatchService
	scheduler     WebhookScheduler
	config        IntegrationHandlerConfig
	logger        *slog.Logger
}

// NewIntegrationHandler はIntegrationHandlerを生成する。
func NewIntegrationHandler(
	oauth OAuthFlow,
	owners repository.OwnerRepository,
	professionals repository.ProfessionalRepository,
	watch WatchService,
	scheduler WebhookScheduler,
	config IntegrationHandlerConfig,
	logger *slog.Logger,
) *IntegrationHandler {
	return &IntegrationHandler{
		oauth:         oauth,
		owners:        owners,
		professionals: professionals,
		watch:         watch,
		scheduler:     scheduler,
		config:        config,
		logger:        logger,
	}
}

// ConnectURL はGoogle OAuth認可URLを返す。
// GET /api/integrations/google/url
func (h *IntegrationHandler) ConnectURL(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		h.logger.Error("OAuth stateの生成に失敗しました", slog.String("error", err.Error()))
		handleServiceError(w, h.logger, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"url": h.oauth.ConnectURL(state)})
}

// Callback はOAuthコールバックを処理し、取得した認証情報をアカウントに保存する。
// GET /api/integrations/google/callback?code=xxx&state=yyy
func (h *IntegrationHandler) Callback(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		h.logger.Warn("OAuth stateが一致しません")
		writeBadRequest(w, "stateパラメータが不正です。")
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeBadRequest(w, "認可コードがありません。")
		return
	}

	tokens, err := h.oauth.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Error("認可コードの交換に失敗しました", slog.String("error", err.Error()))
		handleServiceError(w, h.logger, model.NewNotConnectedError())
		return
	}

	if err := h.owners.SetGoogleAccount(r.Context(), oid, tokens.AccessToken, tokens.RefreshToken, tokens.Email); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Googleアカウントを連携しました",
		slog.String("owner_id", oid),
		slog.String("google_email", tokens.Email),
	)

	if h.config.FrontendURL != "" {
		http.Redirect(w, r, h.config.FrontendURL, http.StatusTemporaryRedirect)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"google_email": tokens.Email})
}

// Disconnect はGoogle連携を解除する。
// トークンの失効と監視チャネルの停止はベストエフォートで行い、
// ローカルの認証情報と連携識別子は必ず消去する。
// POST /api/integrations/google/disconnect
func (h *IntegrationHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	owner, err := h.owners.FindByID(r.Context(), oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if owner == nil {
		handleServiceError(w, h.logger, model.NewUnauthorizedError())
		return
	}

	// 監視チャネルを停止
	profs, err := h.professionals.ListByOwner(r.Context(), oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	for _, prof := range profs {
		if prof.GoogleChannelID == "" {
			continue
		}
		if err := h.watch.Stop(r.Context(), prof); err != nil {
			h.logger.Warn("監視チャネルの停止に失敗しました",
				slog.String("professional_id", prof.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	// トークンを失効（失敗しても解除は続行する）
	if err := h.oauth.Revoke(r.Context(), owner.GoogleRefreshToken); err != nil {
		h.logger.Warn("トークンの失効に失敗しました", slog.String("error", err.Error()))
	}

	if err := h.owners.ClearGoogleAccount(r.Context(), oid); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if err := h.professionals.ClearIntegration(r.Context(), oid); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Google連携を解除しました", slog.String("owner_id", oid))
	w.WriteHeader(http.StatusNoContent)
}

type linkCalendarRequest struct {
	CalendarID string `json:"calendar_id"`
}

// linkCalendarResponse は紐付けと監視開始の結果を個別に報告する。
// 紐付け自体は成功しても監視チャネルの登録が失敗することがある。
type linkCalendarResponse struct {
	Linked       bool   `json:"linked"`
	WatchStarted bool   `json:"watch_started"`
	WatchError   string `json:"watch_error,omitempty"`
}

// LinkCalendar はプロフェッショナルにリモートカレンダーを紐付け、
// 続けて監視チャネルを登録する。空のcalendar_idを渡すと紐付けを解除する。
// PUT /api/professionals/{id}/calendar
func (h *IntegrationHandler) LinkCalendar(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req linkCalendarRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	prof, err := h.professionals.FindByIDForOwner(r.Context(), id, oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if prof == nil {
		handleServiceError(w, h.logger, model.NewProfessionalNotFoundError(id))
		return
	}

	// 紐付け変更前に既存の監視チャネルを止める
	if prof.GoogleChannelID != "" {
		if err := h.watch.Stop(r.Context(), prof); err != nil {
			h.logger.Warn("監視チャネルの停止に失敗しました",
				slog.String("professional_id", prof.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := h.professionals.SetCalendarID(r.Context(), id, req.CalendarID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	// 紐付け解除は監視を開始しない
	if req.CalendarID == "" {
		writeJSON(w, http.StatusOK, linkCalendarResponse{Linked: true})
		return
	}

	// 新しいカレンダーの監視を開始する。登録直後の照合で取りこぼしも拾う。
	// 監視の失敗で紐付け自体は巻き戻さず、結果を分けて報告する
	prof.GoogleCalendarID = req.CalendarID
	prof.GoogleChannelID = ""
	prof.GoogleResourceID = ""
	resp := linkCalendarResponse{Linked: true}
	if err := h.watch.StartOrRefresh(r.Context(), prof); err != nil {
		h.logger.Warn("紐付け後の監視開始に失敗しました",
			slog.String("professional_id", prof.ID),
			slog.String("error", err.Error()),
		)
		resp.WatchError = err.Error()
	} else {
		resp.WatchStarted = true
	}
	writeJSON(w, http.StatusOK, resp)
}

// StartWatch はプロフェッショナルのカレンダー監視を開始または更新する。
// POST /api/professionals/{id}/watch
func (h *IntegrationHandler) StartWatch(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	prof, err := h.professionals.FindByIDForOwner(r.Context(), id, oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if prof == nil {
		handleServiceError(w, h.logger, model.NewProfessionalNotFoundError(id))
		return
	}

	if err := h.watch.StartOrRefresh(r.Context(), prof); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Webhook はGoogleカレンダーからのプッシュ通知を受け取る。
// 通知の真偽によらず常に200を返し、リコンサイルは遅延実行で予約する。
// 初回のsync通知は無視し、変更を示すexists通知のみを処理する。
// POST /api/integrations/google/webhook
func (h *IntegrationHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	channelID := r.Header.Get("X-Goog-Channel-Id")
	resourceState := r.Header.Get("X-Goog-Resource-State")

	if channelID != "" && resourceState == "exists" {
		h.scheduler.Notify(channelID)
	}

	w.WriteHeader(http.StatusOK)
}

// generateState は暗号的に安全なOAuth stateを生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
