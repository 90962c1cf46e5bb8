package security

import (
	"testing"
	"time"
)

// ssrfGuardはSSRFGuardServiceインターフェースを満たすことを検証
func TestSSRFGuard_ImplementsInterface(t *testing.T) {
	var _ SSRFGuardService = (*ssrfGuard)(nil)
}

// NewSafeClientが非nilのクライアントを返すことを検証
func TestSSRFGuard_NewSafeClient(t *testing.T) {
	g := NewSSRFGuard()
	client := g.NewSafeClient(10 * time.Second)
	if client == nil {
		t.Fatal("expected non-nil client")
	}
	if client.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want %v", client.Timeout, 10*time.Second)
	}
}

// ValidateURLが安全なWebhook URLを許可することを検証
func TestSSRFGuard_ValidateURL_AllowsPublicURLs(t *testing.T) {
	g := NewSSRFGuard()
	urls := []string{
		"https://hooks.example.com/bookman",
		"http://example.com/webhook",
		"https://8.8.8.8/notify",
	}
	for _, u := range urls {
		if err := g.ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
		}
	}
}

// ValidateURLが危険なURLを拒否することを検証
func TestSSRFGuard_ValidateURL_BlocksDangerousURLs(t *testing.T) {
	g := NewSSRFGuard()
	urls := []string{
		"",
		"ftp://example.com/hook",
		"javascript:alert(1)",
		"http://localhost/hook",
		"http://127.0.0.1/hook",
		"http://10.0.0.5/hook",
		"http://172.16.1.1/hook",
		"http://192.168.1.1/hook",
		"http://169.254.169.254/latest/meta-data/",
		"http://0.0.0.0/hook",
		"http://[::1]/hook",
		"http://[fe80::1]/hook",
	}
	for _, u := range urls {
		if err := g.ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", u)
		}
	}
}
