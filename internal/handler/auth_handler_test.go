package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/bookman/internal/middleware"
	"github.com/hitoshi/bookman/internal/model"
)

type stubAuthService struct {
	owner        *model.Owner
	session      *model.Session
	setupErr     error
	loginErr     error
	loggedOut    []string
	validSession string
}

func (s *stubAuthService) Setup(ctx context.Context, masterPassword, name, email, password string) (*model.Owner, *model.Session, error) {
	if s.setupErr != nil {
		return nil, nil, s.setupErr
	}
	return s.owner, s.session, nil
}

func (s *stubAuthService) Login(ctx context.Context, email, password string) (*model.Owner, *model.Session, error) {
	if s.loginErr != nil {
		return nil, nil, s.loginErr
	}
	return s.owner, s.session, nil
}

func (s *stubAuthService) Logout(ctx context.Context, sessionID string) error {
	s.loggedOut = append(s.loggedOut, sessionID)
	return nil
}

func (s *stubAuthService) CurrentOwner(ctx context.Context, sessionID string) (*model.Owner, error) {
	if sessionID != s.validSession {
		return nil, model.NewUnauthorizedError()
	}
	return s.owner, nil
}

func newStubAuthService() *stubAuthService {
	return &stubAuthService{
		owner: &model.Owner{
			ID:    "owner-1",
			Name:  "管理者",
			Email: "admin@example.com",
			Role:  "administrator",
		},
		session:      &model.Session{ID: "sess-1", UserID: "owner-1"},
		validSession: "sess-1",
	}
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestSetupIssuesSessionCookie(t *testing.T) {
	svc := newStubAuthService()
	h := NewAuthHandler(svc, AuthHandlerConfig{SessionMaxAge: 3600}, testLogger())

	body := `{"master_password":"master","name":"管理者","email":"admin@example.com","password":"secret-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/setup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Setup(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("ステータスが不正です: got %d body=%s", rec.Code, rec.Body.String())
	}

	cookie := sessionCookie(t, rec)
	if cookie == nil {
		t.Fatal("セッションCookieが設定されていません")
	}
	if cookie.Value != "sess-1" {
		t.Errorf("CookieのセッションIDが不正です: %s", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Error("セッションCookieはHttpOnlyであるべきです")
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗しました: %v", err)
	}
	if resp["role"] != "administrator" {
		t.Errorf("ロールが不正です: %v", resp["role"])
	}
	if _, exists := resp["password_hash"]; exists {
		t.Error("レスポンスにパスワードハッシュが含まれています")
	}
}

func TestSetupRejectsWrongMasterPassword(t *testing.T) {
	svc := newStubAuthService()
	svc.setupErr = model.NewUnauthorizedError()
	h := NewAuthHandler(svc, AuthHandlerConfig{}, testLogger())

	body := `{"master_password":"wrong","name":"x","email":"a@b.c","password":"secret-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/setup", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Setup(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ステータスが不正です: got %d", rec.Code)
	}
	if sessionCookie(t, rec) != nil {
		t.Error("認証失敗時にCookieが設定されています")
	}
}

func TestLoginSetsCookieOnSuccess(t *testing.T) {
	svc := newStubAuthService()
	h := NewAuthHandler(svc, AuthHandlerConfig{SessionMaxAge: 3600}, testLogger())

	body := `{"email":"admin@example.com","password":"secret-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスが不正です: got %d", rec.Code)
	}
	if sessionCookie(t, rec) == nil {
		t.Error("セッションCookieが設定されていません")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newStubAuthService()
	svc.loginErr = model.NewUnauthorizedError()
	h := NewAuthHandler(svc, AuthHandlerConfig{}, testLogger())

	body := `{"email":"admin@example.com","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ステータスが不正です: got %d", rec.Code)
	}
}

func TestMeRequiresValidSession(t *testing.T) {
	svc := newStubAuthService()
	h := NewAuthHandler(svc, AuthHandlerConfig{}, testLogger())

	// Cookieなし
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()
	h.Me(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Cookieなしで401が返るべきところ: got %d", rec.Code)
	}

	// 有効なセッション
	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
	rec = httptest.NewRecorder()
	h.Me(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスが不正です: got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗しました: %v", err)
	}
	if resp["email"] != "admin@example.com" {
		t.Errorf("メールアドレスが不正です: %v", resp["email"])
	}
}

func TestLogoutDeletesCookie(t *testing.T) {
	svc := newStubAuthService()
	h := NewAuthHandler(svc, AuthHandlerConfig{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("ステータスが不正です: got %d", rec.Code)
	}
	if len(svc.loggedOut) != 1 || svc.loggedOut[0] != "sess-1" {
		t.Errorf("セッションが破棄されていません: %v", svc.loggedOut)
	}

	cookie := sessionCookie(t, rec)
	if cookie == nil || cookie.MaxAge != -1 {
		t.Error("セッションCookieが削除されていません")
	}
}
