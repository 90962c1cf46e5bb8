package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/bookman/internal/repository"
	"github.com/hitoshi/bookman/internal/security"
)

// APIKeyRegenerator はAPIキーの再生成インターフェース。
type APIKeyRegenerator interface {
	RegenerateAPIKey(ctx context.Context, ownerID string) (string, error)
}

// SettingsHandler はテナント設定のHTTPハンドラー。
type SettingsHandler struct {
	owners repository.OwnerRepository
	guard  security.SSRFGuardService
	keys   APIKeyRegenerator
	logger *slog.Logger
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(
	owners repository.OwnerRepository,
	guard security.SSRFGuardService,
	keys APIKeyRegenerator,
	logger *slog.Logger,
) *SettingsHandler {
	return &SettingsHandler{owners: owners, guard: guard, keys: keys, logger: logger}
}

type timezoneRequest struct {
	TimeZone string `json:"timezone"`
}

// UpdateTimeZone はテナントのタイムゾーン設定を更新する。
// IANAタイムゾーン名のみ受け付ける。
// PUT /api/settings/timezone
func (h *SettingsHandler) UpdateTimeZone(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req timezoneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}
	if _, err := time.LoadLocation(req.TimeZone); err != nil || req.TimeZone == "" {
		writeBadRequest(w, "不正なタイムゾーン名です。IANAタイムゾーン名を指定してください。")
		return
	}

	if err := h.owners.UpdateTimeZone(r.Context(), oid, req.TimeZone); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"timezone": req.TimeZone})
}

type webhookSettingsRequest struct {
	WebhookURL     string `json:"webhook_url"`
	WebhookEnabled bool   `json:"webhook_enabled"`
}

// UpdateWebhookSettings はテナントWebhookの配信先と有効フラグを更新する。
// 配信先URLはSSRF防止の静的検証を通過する必要がある。
// PUT /api/settings/webhook
func (h *SettingsHandler) UpdateWebhookSettings(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req webhookSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}
	if req.WebhookURL != "" {
		if err := h.guard.ValidateURL(req.WebhookURL); err != nil {
			h.logger.Warn("危険なWebhook URLが拒否されました",
				slog.String("owner_id", oid),
				slog.String("error", err.Error()),
			)
			writeBadRequest(w, "このWebhook URLは使用できません。")
			return
		}
	}
	if req.WebhookEnabled && req.WebhookURL == "" {
		writeBadRequest(w, "Webhookを有効にするにはURLが必要です。")
		return
	}

	if err := h.owners.UpdateWebhookSettings(r.Context(), oid, req.WebhookURL, req.WebhookEnabled); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"webhook_url":     req.WebhookURL,
		"webhook_enabled": req.WebhookEnabled,
	})
}

// RegenerateAPIKey はAPIキーを再生成する。旧キーは即座に無効になる。
// POST /api/settings/api-key
func (h *SettingsHandler) RegenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	apiKey, err := h.keys.RegenerateAPIKey(r.Context(), oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"api_key": apiKey})
}
