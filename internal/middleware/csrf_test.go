package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCSRFSafeMethodSetsCookie(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{}, testLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ステータスが不正です: got %d", rec.Code)
	}
	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfCookieName && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("CSRFトークンCookieが設定されていません")
	}
}

func TestCSRFRejectsMutationWithoutToken(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{}, testLogger())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("403が返るべきところ: got %d", rec.Code)
	}
}

func TestCSRFAcceptsMatchingTokens(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{}, testLogger())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/events", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "token-1"})
	req.Header.Set(csrfHeaderName, "token-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ステータスが不正です: got %d", rec.Code)
	}
}

func TestCSRFRejectsMismatchedTokens(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{}, testLogger())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/events", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "token-1"})
	req.Header.Set(csrfHeaderName, "token-2")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("403が返るべきところ: got %d", rec.Code)
	}
}
