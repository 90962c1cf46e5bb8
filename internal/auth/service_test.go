package auth

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/bookman/internal/model"
)

// memOwnerRepo はテスト用のインメモリアカウントリポジトリ。
type memOwnerRepo struct {
	owners map[string]*model.Owner
}

func newMemOwnerRepo() *memOwnerRepo {
	return &memOwnerRepo{owners: make(map[string]*model.Owner)}
}

func (r *memOwnerRepo) FindByID(ctx context.Context, id string) (*model.Owner, error) {
	return r.owners[id], nil
}

func (r *memOwnerRepo) FindByEmail(ctx context.Context, email string) (*model.Owner, error) {
	for _, o := range r.owners {
		if o.Email == email {
			return o, nil
		}
	}
	return nil, nil
}

func (r *memOwnerRepo) FindByAPIKey(ctx context.Context, apiKey string) (*model.Owner, error) {
	if apiKey == "" {
		return nil, nil
	}
	for _, o := range r.owners {
		if o.APIKey == apiKey {
			return o, nil
		}
	}
	return nil, nil
}

func (r *memOwnerRepo) Count(ctx context.Context) (int, error) {
	return len(r.owners), nil
}

func (r *memOwnerRepo) Create(ctx context.Context, owner *model.Owner) error {
	r.owners[owner.ID] = owner
	return nil
}

func (r *memOwnerRepo) UpdateTimeZone(ctx context.Context, id, timezone string) error { return nil }

func (r *memOwnerRepo) UpdateWebhookSettings(ctx context.Context, id, webhookURL string, enabled bool) error {
	return nil
}

func (r *memOwnerRepo) UpdateAPIKey(ctx context.Context, id, apiKey string) error {
	if o := r.owners[id]; o != nil {
		o.APIKey = apiKey
	}
	return nil
}

func (r *memOwnerRepo) SaveGoogleTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	return nil
}

func (r *memOwnerRepo) SetGoogleAccount(ctx context.Context, id, accessToken, refreshToken, email string) error {
	return nil
}

func (r *memOwnerRepo) ClearGoogleAccount(ctx context.Context, id string) error { return nil }

// memSessionRepo はテスト用のインメモリセッションリポジトリ。
type memSessionRepo struct {
	sessions map[string]*model.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*model.Session)}
}

func (r *memSessionRepo) Create(ctx context.Context, session *model.Session) error {
	r.sessions[session.ID] = session
	return nil
}

func (r *memSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	s := r.sessions[id]
	if s == nil || s.ExpiresAt.Before(time.Now()) {
		return nil, nil
	}
	return s, nil
}

func (r *memSessionRepo) DeleteByID(ctx context.Context, id string) error {
	delete(r.sessions, id)
	return nil
}

func (r *memSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newService(owners *memOwnerRepo, sessions *memSessionRepo) *Service {
	return NewService(owners, sessions, ServiceConfig{
		SessionMaxAge:       3600,
		SetupMasterPassword: "master-secret",
	}, testLogger())
}

func TestSetupCreatesAdministrator(t *testing.T) {
	owners := newMemOwnerRepo()
	sessions := newMemSessionRepo()
	service := newService(owners, sessions)

	owner, session, err := service.Setup(context.Background(), "master-secret", "Admin", "admin@example.com", "password123")
	if err != nil {
		t.Fatalf("セットアップに失敗しました: %v", err)
	}
	if owner.Role != "administrator" {
		t.Errorf("ロールが不正です: got %s", owner.Role)
	}
	if !strings.HasPrefix(owner.APIKey, "bk_") {
		t.Errorf("APIキーが生成されていません: got %s", owner.APIKey)
	}
	if owner.PasswordHash == "password123" {
		t.Error("パスワードが平文のまま保存されています")
	}
	if session == nil || session.UserID != owner.ID {
		t.Error("セッションが発行されていません")
	}
}

func TestSetupRejectsWrongMasterPassword(t *testing.T) {
	service := newService(newMemOwnerRepo(), newMemSessionRepo())

	_, _, err := service.Setup(context.Background(), "wrong", "Admin", "admin@example.com", "password123")
	apiErr, ok := err.(*model.APIError)
	if !ok || apiErr.Code != model.ErrCodeUnauthorized {
		t.Fatalf("UNAUTHORIZEDが返るべきところ: %v", err)
	}
}

func TestSetupRejectsSecondAccount(t *testing.T) {
	owners := newMemOwnerRepo()
	service := newService(owners, newMemSessionRepo())

	if _, _, err := service.Setup(context.Background(), "master-secret", "Admin", "admin@example.com", "password123"); err != nil {
		t.Fatalf("1回目のセットアップに失敗しました: %v", err)
	}
	_, _, err := service.Setup(context.Background(), "master-secret", "Other", "other@example.com", "password123")
	apiErr, ok := err.(*model.APIError)
	if !ok || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Fatalf("2回目のセットアップが拒否されるべきところ: %v", err)
	}
}

func TestLoginWithCorrectPassword(t *testing.T) {
	owners := newMemOwnerRepo()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	owners.owners["owner-1"] = &model.Owner{
		ID: "owner-1", Email: "admin@example.com", PasswordHash: string(hash),
	}
	sessions := newMemSessionRepo()
	service := newService(owners, sessions)

	owner, session, err := service.Login(context.Background(), "admin@example.com", "password123")
	if err != nil {
		t.Fatalf("ログインに失敗しました: %v", err)
	}
	if owner.ID != "owner-1" {
		t.Errorf("アカウントが不正です: got %s", owner.ID)
	}
	if session == nil || sessions.sessions[session.ID] == nil {
		t.Error("セッションが永続化されていません")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	owners := newMemOwnerRepo()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	owners.owners["owner-1"] = &model.Owner{
		ID: "owner-1", Email: "admin@example.com", PasswordHash: string(hash),
	}
	service := newService(owners, newMemSessionRepo())

	for _, tc := range []struct{ email, password string }{
		{"admin@example.com", "wrong"},
		{"nobody@example.com", "password123"},
	} {
		_, _, err := service.Login(context.Background(), tc.email, tc.password)
		apiErr, ok := err.(*model.APIError)
		if !ok || apiErr.Code != model.ErrCodeUnauthorized {
			t.Errorf("UNAUTHORIZEDが返るべきところ (%s): %v", tc.email, err)
		}
	}
}

func TestCurrentOwnerResolvesSession(t *testing.T) {
	owners := newMemOwnerRepo()
	sessions := newMemSessionRepo()
	service := newService(owners, sessions)

	owner, session, err := service.Setup(context.Background(), "master-secret", "Admin", "admin@example.com", "password123")
	if err != nil {
		t.Fatalf("セットアップに失敗しました: %v", err)
	}

	got, err := service.CurrentOwner(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("セッションの解決に失敗しました: %v", err)
	}
	if got.ID != owner.ID {
		t.Errorf("アカウントが不正です: got %s", got.ID)
	}
}

func TestCurrentOwnerRejectsExpiredSession(t *testing.T) {
	owners := newMemOwnerRepo()
	sessions := newMemSessionRepo()
	sessions.sessions["sess-1"] = &model.Session{
		ID: "sess-1", UserID: "owner-1",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	service := newService(owners, sessions)

	_, err := service.CurrentOwner(context.Background(), "sess-1")
	apiErr, ok := err.(*model.APIError)
	if !ok || apiErr.Code != model.ErrCodeUnauthorized {
		t.Fatalf("期限切れセッションが拒否されるべきところ: %v", err)
	}
}

func TestLogoutRemovesSession(t *testing.T) {
	owners := newMemOwnerRepo()
	sessions := newMemSessionRepo()
	service := newService(owners, sessions)

	_, session, err := service.Setup(context.Background(), "master-secret", "Admin", "admin@example.com", "password123")
	if err != nil {
		t.Fatalf("セットアップに失敗しました: %v", err)
	}

	if err := service.Logout(context.Background(), session.ID); err != nil {
		t.Fatalf("ログアウトに失敗しました: %v", err)
	}
	if sessions.sessions[session.ID] != nil {
		t.Error("セッションが残っています")
	}
}

func TestRegenerateAPIKeyReplacesOldKey(t *testing.T) {
	owners := newMemOwnerRepo()
	service := newService(owners, newMemSessionRepo())

	owner, _, err := service.Setup(context.Background(), "master-secret", "Admin", "admin@example.com", "password123")
	if err != nil {
		t.Fatalf("セットアップに失敗しました: %v", err)
	}
	oldKey := owner.APIKey

	newKey, err := service.RegenerateAPIKey(context.Background(), owner.ID)
	if err != nil {
		t.Fatalf("APIキーの再生成に失敗しました: %v", err)
	}
	if newKey == oldKey {
		t.Error("APIキーが変わっていません")
	}
	if owners.owners[owner.ID].APIKey != newKey {
		t.Error("新しいAPIキーが永続化されていません")
	}

	got, err := service.OwnerByAPIKey(context.Background(), newKey)
	if err != nil || got.ID != owner.ID {
		t.Errorf("新しいAPIキーでアカウントを特定できません: %v", err)
	}
	if _, err := service.OwnerByAPIKey(context.Background(), oldKey); err == nil {
		t.Error("旧APIキーがまだ有効です")
	}
}
