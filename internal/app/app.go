package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/bookman/internal/auth"
	"github.com/hitoshi/bookman/internal/availability"
	"github.com/hitoshi/bookman/internal/config"
	"github.com/hitoshi/bookman/internal/database"
	"github.com/hitoshi/bookman/internal/event"
	"github.com/hitoshi/bookman/internal/gcal"
	"github.com/hitoshi/bookman/internal/handler"
	"github.com/hitoshi/bookman/internal/logger"
	"github.com/hitoshi/bookman/internal/metrics"
	"github.com/hitoshi/bookman/internal/middleware"
	"github.com/hitoshi/bookman/internal/notify"
	"github.com/hitoshi/bookman/internal/realtime"
	"github.com/hitoshi/bookman/internal/repository"
	"github.com/hitoshi/bookman/internal/security"
	syncpkg "github.com/hitoshi/bookman/internal/sync"
	"github.com/hitoshi/bookman/internal/worker/cleanup"
	"github.com/hitoshi/bookman/internal/worker/renewal"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	ownerRepo := repository.NewPostgresOwnerRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profRepo := repository.NewPostgresProfessionalRepo(db)
	statusRepo := repository.NewPostgresStatusRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)
	availRepo := repository.NewPostgresAvailabilityRepo(db)

	// 3. メトリクスとセキュリティサービスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. 認証サービスの初期化
	authService := auth.NewService(
		ownerRepo, sessionRepo,
		auth.ServiceConfig{
			SessionMaxAge:       cfg.SessionMaxAge,
			SetupMasterPassword: cfg.SetupMasterPassword,
		},
		slog.Default(),
	)

	// 5. Googleカレンダー連携の初期化
	oauthProvider := gcal.NewOAuthProvider(gcal.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	tokens := gcal.NewTokenManager(cfg.GoogleClientID, cfg.GoogleClientSecret, ownerRepo, slog.Default())
	provider := syncpkg.NewTokenClientProvider(tokens)

	reconciler := syncpkg.NewReconciler(
		provider, profRepo, eventRepo, statusRepo, sanitizer, collector, slog.Default(),
	)
	outbound := syncpkg.NewOutboundSync(provider, profRepo, eventRepo, collector, slog.Default())
	watchManager := syncpkg.NewWatchManager(
		provider, profRepo, reconciler, collector, slog.Default(),
		cfg.WebhookBaseURL+"/api/integrations/google/webhook",
	)
	scheduler := syncpkg.NewScheduler(reconciler, slog.Default(), cfg.SyncSettleDelay, cfg.SyncMaxConcurrent)

	// 6. ドメインサービスの初期化
	availabilityService := availability.NewService(
		profRepo, ownerRepo, availRepo, eventRepo,
		slog.Default(), cfg.SlotDuration, cfg.DefaultTimeZone,
	)
	sender := notify.NewSender(ownerRepo, ssrfGuard, collector, slog.Default(), cfg.NotifyTimeout)
	hub := realtime.NewHub(slog.Default())
	eventService := event.NewService(
		eventRepo, profRepo, statusRepo, availRepo,
		outbound, sender, hub, availabilityService, sanitizer, slog.Default(),
	)

	// 7. レート制限の初期化
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralPerMinute = cfg.RateLimitGeneral
	rateLimiterCfg.BookingPerMinute = cfg.RateLimitBooking
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg, slog.Default())
	defer rateLimiter.Stop()

	// 8. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:  slog.Default(),
		Metrics: collector,

		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CookieDomain:      cfg.CookieDomain,
		CookieSecure:      cfg.CookieSecure,
		SessionMaxAge:     cfg.SessionMaxAge,
		FrontendURL:       cfg.FrontendURL,

		RateLimiter: rateLimiter,

		Auth: authService,

		Owners:        ownerRepo,
		Professionals: profRepo,
		Statuses:      statusRepo,
		Events:        eventRepo,

		AvailabilityService: availabilityService,
		EventService:        eventService,

		OAuth:     oauthProvider,
		Watch:     watchManager,
		Scheduler: scheduler,

		SSRFGuard: ssrfGuard,

		RealtimeHub:    hub,
		MetricsHandler: metrics.SetupMetricsRoute(registry),

		DB: db,
	}

	router := handler.NewRouter(deps)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 予約済みの遅延照合が完了するまで待つ
	scheduler.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、監視チャネルの更新スイープとセッションクリーンアップを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	ownerRepo := repository.NewPostgresOwnerRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profRepo := repository.NewPostgresProfessionalRepo(db)
	statusRepo := repository.NewPostgresStatusRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)

	// 3. 同期エンジンの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	sanitizer := security.NewTextSanitizer()

	tokens := gcal.NewTokenManager(cfg.GoogleClientID, cfg.GoogleClientSecret, ownerRepo, slog.Default())
	provider := syncpkg.NewTokenClientProvider(tokens)
	reconciler := syncpkg.NewReconciler(
		provider, profRepo, eventRepo, statusRepo, sanitizer, collector, slog.Default(),
	)
	watchManager := syncpkg.NewWatchManager(
		provider, profRepo, reconciler, collector, slog.Default(),
		cfg.WebhookBaseURL+"/api/integrations/google/webhook",
	)

	// 4. 更新スイープジョブの初期化
	renewalJob := renewal.NewJob(
		profRepo, watchManager, slog.Default(),
		cfg.WatchRenewalWindow, cfg.SyncMaxConcurrent,
	)
	renewalScheduler := renewal.NewScheduler(renewalJob, slog.Default())

	// 5. セッションクリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.String("renewal_spec", cfg.WatchRenewalSpec),
		slog.Duration("renewal_window", cfg.WatchRenewalWindow),
	)

	// セッションクリーンアップをバックグラウンドで起動
	go cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	// 更新スイープをメインgoroutineで実行（ブロッキング）
	if err := renewalScheduler.Start(ctx, cfg.WatchRenewalSpec); err != nil {
		return fmt.Errorf("renewal scheduler failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
