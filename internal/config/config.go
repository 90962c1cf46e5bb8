package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Google OAuth / Calendar連携
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// WebhookBaseURL はGoogleのプッシュ通知が届く公開URLのベース。
	// 監視チャネル登録時の通知先アドレスの組み立てに使う。
	WebhookBaseURL string

	// Sync
	SyncSettleDelay    time.Duration
	SyncMaxConcurrent  int
	WatchRenewalWindow time.Duration
	WatchRenewalSpec   string

	// Availability
	SlotDuration    time.Duration
	DefaultTimeZone string

	// Session
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Setup
	SetupMasterPassword string

	// Rate Limit
	RateLimitGeneral int
	RateLimitBooking int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieDomain string
	CookieSecure bool

	// FrontendURL はOAuthコールバック後のリダイレクト先。
	FrontendURL string

	// CORS
	CORSAllowedOrigin string

	// テナントWebhook配信
	NotifyTimeout time.Duration
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.WebhookBaseURL = os.Getenv("WEBHOOK_BASE_URL")
	if cfg.WebhookBaseURL == "" {
		missing = append(missing, "WEBHOOK_BASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SyncSettleDelay = getEnvDuration("SYNC_SETTLE_DELAY", 3*time.Second)
	cfg.SyncMaxConcurrent = getEnvInt("SYNC_MAX_CONCURRENT", 4)
	cfg.WatchRenewalWindow = getEnvDuration("WATCH_RENEWAL_WINDOW", 24*time.Hour)
	cfg.WatchRenewalSpec = getEnvString("WATCH_RENEWAL_SPEC", "0 3 * * *")
	cfg.SlotDuration = getEnvDuration("SLOT_DURATION", 60*time.Minute)
	cfg.DefaultTimeZone = getEnvString("DEFAULT_TIMEZONE", "America/Sao_Paulo")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.SetupMasterPassword = getEnvString("SETUP_MASTER_PASSWORD", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitBooking = getEnvInt("RATE_LIMIT_BOOKING", 20)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.GoogleRedirectURL = getEnvString("GOOGLE_REDIRECT_URL", cfg.BaseURL+"/api/integrations/google/callback")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.FrontendURL = getEnvString("FRONTEND_URL", cfg.BaseURL)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
