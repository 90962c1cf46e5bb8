package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/bookman/internal/model"
)

// mockOwnerRepo はテスト用のOwnerRepository実装。
type mockOwnerRepo struct {
	owner *model.Owner

	savedAccessToken  string
	savedRefreshToken string
	saveCalled        bool
}

func (m *mockOwnerRepo) FindByID(ctx context.Context, id string) (*model.Owner, error) {
	return m.owner, nil
}
func (m *mockOwnerRepo) FindByEmail(ctx context.Context, email string) (*model.Owner, error) {
	return nil, nil
}
func (m *mockOwnerRepo) FindByAPIKey(ctx context.Context, apiKey string) (*model.Owner, error) {
	return nil, nil
}
func (m *mockOwnerRepo) Count(ctx context.Context) (int, error)               { return 0, nil }
func (m *mockOwnerRepo) Create(ctx context.Context, owner *model.Owner) error { return nil }
func (m *mockOwnerRepo) UpdateTimeZone(ctx context.Context, id, timezone string) error {
	return nil
}
func (m *mockOwnerRepo) UpdateWebhookSettings(ctx context.Context, id, webhookURL string, enabled bool) error {
	return nil
}
func (m *mockOwnerRepo) UpdateAPIKey(ctx context.Context, id, apiKey string) error { return nil }
func (m *mockOwnerRepo) SaveGoogleTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	m.saveCalled = true
	m.savedAccessToken = accessToken
	m.savedRefreshToken = refreshToken
	return nil
}
func (m *mockOwnerRepo) SetGoogleAccount(ctx context.Context, id, accessToken, refreshToken, email string) error {
	return nil
}
func (m *mockOwnerRepo) ClearGoogleAccount(ctx context.Context, id string) error { return nil }

func connectedOwner() *model.Owner {
	return &model.Owner{
		ID:                 "owner-1",
		GoogleAccessToken:  "old-access",
		GoogleRefreshToken: "refresh-1",
	}
}

// ClientForがトークンをリフレッシュしてクライアントを返すことを検証
func TestTokenManager_ClientFor_RefreshesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		if r.Form.Get("refresh_token") != "refresh-1" {
			t.Errorf("refresh_token = %q", r.Form.Get("refresh_token"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "new-access",
			"expires_in":   3599,
		})
	}))
	defer server.Close()

	repo := &mockOwnerRepo{owner: connectedOwner()}
	tm := NewTokenManager("cid", "secret", repo, testLogger())
	tm.tokenURL = server.URL

	client, err := tm.ClientFor(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.accessToken != "new-access" {
		t.Errorf("accessToken = %q, want new-access", client.accessToken)
	}

	// ローテーション永続化: アクセストークンは常に保存、リフレッシュトークンは
	// 返却されなかったので空（既存値を維持する指示）になる
	if !repo.saveCalled {
		t.Fatal("expected SaveGoogleTokens to be called")
	}
	if repo.savedAccessToken != "new-access" {
		t.Errorf("savedAccessToken = %q", repo.savedAccessToken)
	}
	if repo.savedRefreshToken != "" {
		t.Errorf("savedRefreshToken = %q, want empty", repo.savedRefreshToken)
	}
}

// ローテーションされたリフレッシュトークンが永続化されることを検証
func TestTokenManager_ClientFor_PersistsRotatedRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "rotated-refresh",
		})
	}))
	defer server.Close()

	repo := &mockOwnerRepo{owner: connectedOwner()}
	tm := NewTokenManager("cid", "secret", repo, testLogger())
	tm.tokenURL = server.URL

	if _, err := tm.ClientFor(context.Background(), "owner-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.savedRefreshToken != "rotated-refresh" {
		t.Errorf("savedRefreshToken = %q, want rotated-refresh", repo.savedRefreshToken)
	}
}

// 未連携アカウントにErrNoCredentialsを返すことを検証
func TestTokenManager_ClientFor_NotConnected(t *testing.T) {
	repo := &mockOwnerRepo{owner: &model.Owner{ID: "owner-1"}}
	tm := NewTokenManager("cid", "secret", repo, testLogger())

	_, err := tm.ClientFor(context.Background(), "owner-1")
	if !errors.Is(err, ErrNoCredentials) {
		t.Errorf("err = %v, want ErrNoCredentials", err)
	}
}

// invalid_grant応答にErrInvalidGrantを返すことを検証
func TestTokenManager_ClientFor_InvalidGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	}))
	defer server.Close()

	repo := &mockOwnerRepo{owner: connectedOwner()}
	tm := NewTokenManager("cid", "secret", repo, testLogger())
	tm.tokenURL = server.URL

	_, err := tm.ClientFor(context.Background(), "owner-1")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("err = %v, want ErrInvalidGrant", err)
	}
	if repo.saveCalled {
		t.Error("tokens must not be persisted on refresh failure")
	}
}

// その他のリフレッシュ失敗は通常のエラーになることを検証
func TestTokenManager_ClientFor_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	repo := &mockOwnerRepo{owner: connectedOwner()}
	tm := NewTokenManager("cid", "secret", repo, testLogger())
	tm.tokenURL = server.URL

	_, err := tm.ClientFor(context.Background(), "owner-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrInvalidGrant) || errors.Is(err, ErrNoCredentials) {
		t.Errorf("err = %v, want generic error", err)
	}
}
