package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bookman/internal/availability"
	"github.com/hitoshi/bookman/internal/event"
	"github.com/hitoshi/bookman/internal/metrics"
	"github.com/hitoshi/bookman/internal/middleware"
	"github.com/hitoshi/bookman/internal/repository"
	"github.com/hitoshi/bookman/internal/security"
)

// DBPinger はヘルスチェックで使うデータベース疎通確認のインターフェース。
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// AuthProvider は認証ミドルウェアとハンドラーが必要とする認証機能の集約。
// auth.Serviceが実装する。
type AuthProvider interface {
	AuthServiceInterface
	middleware.SessionResolver
	middleware.APIKeyResolver
	APIKeyRegenerator
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger  *slog.Logger
	Metrics metrics.MetricsCollector

	CORSAllowedOrigin string
	CookieDomain      string
	CookieSecure      bool
	SessionMaxAge     int
	FrontendURL       string

	RateLimiter *middleware.RateLimiter

	Auth AuthProvider

	Owners        repository.OwnerRepository
	Professionals repository.ProfessionalRepository
	Statuses      repository.StatusRepository
	Events        repository.EventRepository

	AvailabilityService *availability.Service
	EventService        *event.Service

	OAuth     OAuthFlow
	Watch     WatchService
	Scheduler WebhookScheduler

	SSRFGuard security.SSRFGuardService

	// RealtimeHub はWebSocketエンドポイントのハンドラー。
	RealtimeHub http.Handler

	// MetricsHandler は/metricsエンドポイントのハンドラー。
	MetricsHandler http.Handler

	DB DBPinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成した
// chi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → (Session|APIKey) → RateLimit → CSRF
//
// Webhook受信・ヘルスチェック・メトリクスは認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.CookieSecure,
		CookieDomain: deps.CookieDomain,
	}

	authHandler := NewAuthHandler(deps.Auth, AuthHandlerConfig{
		CookieDomain:  deps.CookieDomain,
		CookieSecure:  deps.CookieSecure,
		SessionMaxAge: deps.SessionMaxAge,
	}, deps.Logger)
	profHandler := NewProfessionalHandler(deps.Professionals, deps.Events, deps.Logger)
	availHandler := NewAvailabilityHandler(deps.AvailabilityService, deps.Logger)
	eventHandler := NewEventHandler(deps.EventService, deps.Logger)
	statusHandler := NewStatusHandler(deps.Statuses, deps.Logger)
	integrationHandler := NewIntegrationHandler(
		deps.OAuth, deps.Owners, deps.Professionals, deps.Watch, deps.Scheduler,
		IntegrationHandlerConfig{CookieSecure: deps.CookieSecure, FrontendURL: deps.FrontendURL},
		deps.Logger,
	)
	settingsHandler := NewSettingsHandler(deps.Owners, deps.SSRFGuard, deps.Auth, deps.Logger)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig, deps.Logger))

	// Googleからのプッシュ通知受信（認証・CSRFの対象外）
	r.Post("/api/integrations/google/webhook", integrationHandler.Webhook)

	// 初回セットアップとログイン（CSRF検証のみ適用）
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(csrfConfig, deps.Logger))
		r.Post("/api/auth/setup", authHandler.Setup)
		r.Post("/api/auth/login", authHandler.Login)
		r.Post("/api/auth/logout", authHandler.Logout)
		r.Get("/api/auth/me", authHandler.Me)
	})

	// --- 公開予約API（APIキー認証） ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAPIKeyMiddleware(deps.Auth, deps.Logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Get("/public/professionals/{id}/availability", availHandler.Month)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Auth, deps.Logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(csrfConfig, deps.Logger))

		// リアルタイム配信
		if deps.RealtimeHub != nil {
			r.Handle("/ws", deps.RealtimeHub)
		}

		// プロフェッショナル管理
		r.Route("/api/professionals", func(r chi.Router) {
			r.Get("/", profHandler.List)
			r.Post("/", profHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", profHandler.Get)
				r.Put("/", profHandler.Update)
				r.Delete("/", profHandler.Delete)
				r.Get("/calendar.ics", profHandler.ExportICS)

				// 週次テンプレートと空き枠
				r.Get("/availability", availHandler.Month)
				r.Get("/availabilities", availHandler.ListRules)
				r.Post("/availabilities", availHandler.CreateRule)
				r.Post("/availabilities/copy", availHandler.CopyDay)

				// 例外
				r.Get("/exceptions", availHandler.ListExceptions)
				r.Post("/exceptions", availHandler.CreateException)

				// カレンダー連携
				r.Put("/calendar", integrationHandler.LinkCalendar)
				r.Post("/watch", integrationHandler.StartWatch)
			})
		})

		r.Route("/api/availabilities/{id}", func(r chi.Router) {
			r.Put("/", availHandler.UpdateRule)
			r.Delete("/", availHandler.DeleteRule)
		})

		r.Route("/api/exceptions/{id}", func(r chi.Router) {
			r.Put("/", availHandler.UpdateException)
			r.Delete("/", availHandler.DeleteException)
		})

		// 予約管理（作成には専用レート制限を追加）
		r.Route("/api/events", func(r chi.Router) {
			r.Get("/", eventHandler.List)
			r.With(deps.RateLimiter.BookingMiddleware()).Post("/", eventHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", eventHandler.Get)
				r.Put("/", eventHandler.Update)
				r.Patch("/status", eventHandler.PatchStatus)
				r.Delete("/", eventHandler.Delete)
			})
		})

		// カンバンステータス管理
		r.Route("/api/kanban-statuses", func(r chi.Router) {
			r.Get("/", statusHandler.List)
			r.Post("/", statusHandler.Create)
			r.Put("/reorder", statusHandler.Reorder)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", statusHandler.Update)
				r.Delete("/", statusHandler.Delete)
			})
		})

		// Google連携
		r.Route("/api/integrations/google", func(r chi.Router) {
			r.Get("/url", integrationHandler.ConnectURL)
			r.Get("/callback", integrationHandler.Callback)
			r.Post("/disconnect", integrationHandler.Disconnect)
		})

		// テナント設定
		r.Route("/api/settings", func(r chi.Router) {
			r.Put("/timezone", settingsHandler.UpdateTimeZone)
			r.Put("/webhook", settingsHandler.UpdateWebhookSettings)
			r.Post("/api-key", settingsHandler.RegenerateAPIKey)
		})
	})

	return r
}

// healthHandler はデータベース疎通を含むヘルスチェックを返す。
func healthHandler(db DBPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
