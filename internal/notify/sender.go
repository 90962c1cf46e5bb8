// Package notify はテナントが登録したWebhook URLへのイベント通知を提供する。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/bookman/internal/metrics"
	"github.com/hitoshi/bookman/internal/repository"
	"github.com/hitoshi/bookman/internal/security"
)

// Sender はテナントWebhookへの通知配信を行う。
//
// 配信はベストエフォートで、失敗してもログに記録するだけで呼び出し元の
// 操作には影響しない。配信先はテナントが自由に設定できるため、
// SSRF防止機能付きのHTTPクライアントで内部ネットワークへの到達を遮断する。
type Sender struct {
	owners     repository.OwnerRepository
	guard      security.SSRFGuardService
	httpClient *http.Client
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewSender はSenderの新しいインスタンスを生成する。
func NewSender(
	owners repository.OwnerRepository,
	guard security.SSRFGuardService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
) *Sender {
	return &Sender{
		owners:     owners,
		guard:      guard,
		httpClient: guard.NewSafeClient(timeout),
		metrics:    collector,
		logger:     logger,
	}
}

// payload はWebhook通知のボディ。
type payload struct {
	Action string `json:"action"`
	Data   any    `json:"data"`
}

// Notify はテナントのWebhook URLへ通知を配信する。
// Webhookが無効または未設定のテナントには何もしない。
func (s *Sender) Notify(ctx context.Context, ownerID, action string, data any) {
	owner, err := s.owners.FindByID(ctx, ownerID)
	if err != nil {
		s.logger.Error("Webhook配信先の取得に失敗しました",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		return
	}
	if owner == nil || !owner.WebhookEnabled || owner.WebhookURL == "" {
		return
	}

	if err := s.guard.ValidateURL(owner.WebhookURL); err != nil {
		s.logger.Warn("危険なWebhook URLのため配信をスキップします",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordWebhookDelivery(false)
		return
	}

	body, err := json.Marshal(payload{Action: action, Data: data})
	if err != nil {
		s.logger.Error("Webhookペイロードの生成に失敗しました",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, owner.WebhookURL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("Webhookリクエストの作成に失敗しました",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("Webhook配信に失敗しました",
			slog.String("owner_id", ownerID),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordWebhookDelivery(false)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("Webhook配信先がエラーステータスを返しました",
			slog.String("owner_id", ownerID),
			slog.String("action", action),
			slog.Int("http_status", resp.StatusCode),
		)
		s.metrics.RecordWebhookDelivery(false)
		return
	}

	s.metrics.RecordWebhookDelivery(true)
	s.logger.Debug("Webhookを配信しました",
		slog.String("owner_id", ownerID),
		slog.String("action", action),
	)
}
