// Package gcal はGoogleカレンダー連携のOAuth認証とREST APIクライアントを提供する。
package gcal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	defaultRevokeURL   = "https://oauth2.googleapis.com/revoke"

	// calendarScope はカレンダーの読み書きと連携アカウントのメール取得に必要なスコープ。
	calendarScope = "https://www.googleapis.com/auth/calendar https://www.googleapis.com/auth/userinfo.email"
)

// OAuthConfig はGoogle OAuthプロバイダーの設定。
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	RevokeURL   string
}

// TokenSet はOAuthコールバックで取得した認証情報一式。
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Email        string
}

// OAuthProvider はGoogle OAuth 2.0によるカレンダー連携の認可を提供する。
type OAuthProvider struct {
	config     OAuthConfig
	httpClient *http.Client
}

// NewOAuthProvider はOAuthProviderを生成する。
func NewOAuthProvider(config OAuthConfig) *OAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultUserInfoURL
	}
	if config.RevokeURL == "" {
		config.RevokeURL = defaultRevokeURL
	}
	return &OAuthProvider{config: config, httpClient: http.DefaultClient}
}

// ConnectURL はカレンダー連携用のGoogle認可URLを生成する。
// リフレッシュトークンを確実に取得するためaccess_type=offlineと
// prompt=consentを指定する。
func (p *OAuthProvider) ConnectURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {calendarScope},
		"state":         {state},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// tokenResponse はGoogleのトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// userInfoResponse はGoogleのユーザー情報エンドポイントのレスポンス。
type userInfoResponse struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

// ExchangeCode は認可コードをトークンに交換し、連携アカウントのメールアドレスを取得する。
func (p *OAuthProvider) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	email, err := p.fetchEmail(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	return &TokenSet{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		Email:        email,
	}, nil
}

// fetchEmail はアクセストークンで連携アカウントのメールアドレスを取得する。
func (p *OAuthProvider) fetchEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var userInfo userInfoResponse
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return "", fmt.Errorf("failed to parse user info response: %w", err)
	}

	return userInfo.Email, nil
}

// Revoke はトークンを失効させる。連携解除時のベストエフォート処理として使用し、
// 失敗しても呼び出し元はローカルの認証情報消去を続行する。
func (p *OAuthProvider) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	data := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.RevokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke failed with status %d", resp.StatusCode)
	}
	return nil
}
