package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/bookman/internal/repository"
)

var (
	// ErrNoCredentials はGoogleアカウントが未連携であることを示す。
	ErrNoCredentials = errors.New("google account not connected")

	// ErrInvalidGrant はリフレッシュトークンが失効していることを示す。
	// ユーザーによる連携取り消しやパスワード変更で発生し、再連携が必要になる。
	ErrInvalidGrant = errors.New("google refresh token revoked or expired")
)

// TokenManager はテナント単位のGoogleアクセストークンを管理する。
// API呼び出しのたびにリフレッシュトークンでアクセストークンを再取得し、
// ローテーションされたトークンをリポジトリに永続化する。
// 並行するリフレッシュは後勝ちで上書きされるが、どのトークンも有効なため問題にならない。
type TokenManager struct {
	clientID     string
	clientSecret string
	owners       repository.OwnerRepository
	httpClient   *http.Client
	logger       *slog.Logger

	// テスト用にオーバーライド可能なURL
	tokenURL        string
	calendarBaseURL string
}

// NewTokenManager はTokenManagerを生成する。
func NewTokenManager(clientID, clientSecret string, owners repository.OwnerRepository, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		clientID:     clientID,
		clientSecret: clientSecret,
		owners:       owners,
		httpClient:   http.DefaultClient,
		logger:       logger,
		tokenURL:     defaultTokenURL,
	}
}

// ClientFor は指定テナントのカレンダーAPIクライアントを生成する。
// 呼び出しのたびにアクセストークンをリフレッシュするため、返されたクライアントは
// 有効なトークンを保持していることが保証される。
// 未連携の場合はErrNoCredentials、リフレッシュトークン失効時はErrInvalidGrantを返す。
func (m *TokenManager) ClientFor(ctx context.Context, ownerID string) (*Client, error) {
	owner, err := m.owners.FindByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if owner == nil || !owner.Connected() {
		return nil, ErrNoCredentials
	}

	accessToken, newRefreshToken, err := m.refresh(ctx, owner.GoogleRefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			m.logger.Warn("Googleリフレッシュトークンが失効しています。再連携が必要です",
				slog.String("owner_id", ownerID),
			)
		}
		return nil, err
	}

	// ローテーションされたトークンを永続化する。
	// リフレッシュトークンは交換のたびに返却されるとは限らないため、
	// 空の場合は既存の値を維持する。
	if err := m.owners.SaveGoogleTokens(ctx, ownerID, accessToken, newRefreshToken); err != nil {
		m.logger.Error("ローテーションされたトークンの保存に失敗しました",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		// 保存失敗でも取得済みトークンは有効なので処理は続行する
	}

	client := NewClient(m.httpClient, m.logger, accessToken)
	if m.calendarBaseURL != "" {
		client.baseURL = m.calendarBaseURL
	}
	return client, nil
}

// refresh はリフレッシュトークンで新しいアクセストークンを取得する。
// 戻り値の2番目はローテーションされた新しいリフレッシュトークン（返却されない場合は空）。
func (m *TokenManager) refresh(ctx context.Context, refreshToken string) (string, string, error) {
	data := url.Values{
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &errResp)
		// invalid_grant / unauthorized_client はユーザー起因の失効を示す
		if errResp.Error == "invalid_grant" || errResp.Error == "unauthorized_client" {
			return "", "", ErrInvalidGrant
		}
		return "", "", fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", "", fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", "", fmt.Errorf("empty access token in refresh response")
	}

	return tokenResp.AccessToken, tokenResp.RefreshToken, nil
}
