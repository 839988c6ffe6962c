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
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/time/rate"

	"github.com/carlosssgaalvez/reviews-examen/internal/auth"
	"github.com/carlosssgaalvez/reviews-examen/internal/config"
	"github.com/carlosssgaalvez/reviews-examen/internal/database"
	"github.com/carlosssgaalvez/reviews-examen/internal/geocode"
	"github.com/carlosssgaalvez/reviews-examen/internal/handler"
	"github.com/carlosssgaalvez/reviews-examen/internal/logger"
	"github.com/carlosssgaalvez/reviews-examen/internal/metrics"
	"github.com/carlosssgaalvez/reviews-examen/internal/middleware"
	"github.com/carlosssgaalvez/reviews-examen/internal/repository"
	"github.com/carlosssgaalvez/reviews-examen/internal/review"
	"github.com/carlosssgaalvez/reviews-examen/internal/security"
	"github.com/carlosssgaalvez/reviews-examen/internal/session"
	"github.com/carlosssgaalvez/reviews-examen/internal/upload"
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

	return runServe(cfg)
}

// mongoHealth はmongo.ClientをHealthCheckerに適合させるアダプタ。
type mongoHealth struct {
	client *mongo.Client
}

func (h *mongoHealth) Ping(ctx context.Context) error {
	return h.client.Ping(ctx, readpref.Primary())
}

// runServe はWebサーバーモードで起動する。
// MongoDB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続
	client, err := database.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			slog.Error("failed to disconnect from database", slog.String("error", err.Error()))
		}
	}()

	db := client.Database(cfg.MongoDatabase)
	if err := database.EnsureIndexes(ctx, db); err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database", cfg.MongoDatabase),
	)

	// 2. リポジトリの初期化
	userRepo := repository.NewMongoUserRepo(db.Collection(database.UsersCollection))
	reviewRepo := repository.NewMongoReviewRepo(db.Collection(database.ReviewsCollection))

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewInputSanitizer()

	// 4. セッションマネージャの初期化
	sessionManager := session.NewManager(session.ManagerConfig{
		Secret:       cfg.SessionSecret,
		MaxAge:       cfg.SessionMaxAge,
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
	})

	// 5. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
	})
	authService := auth.NewService(oauthProvider, userRepo, auth.ServiceConfig{
		CallbackPath:       "/auth",
		SecureHostSuffixes: cfg.SecureHostSuffixes,
	})

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	geocodeClient := geocode.NewClient(ssrfGuard.NewSafeClient(cfg.GeocodeTimeout), slog.Default())
	uploadClient := upload.NewClient(ssrfGuard.NewSafeClient(cfg.UploadTimeout), slog.Default(), upload.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
	})
	if !cfg.UploadEnabled() {
		slog.Warn("image upload disabled: cloudinary credentials are not configured")
	}

	reviewService := review.NewService(reviewRepo, geocodeClient, uploadClient, sanitizer, collector)

	// 6. テンプレートの初期化
	renderer, err := handler.NewTemplateRenderer()
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}

	// 7. ルーターの構築
	// configのレート値はreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.ReviewAddRate = rate.Limit(float64(cfg.RateLimitReviewAdd) / 60.0)
	rateLimiterCfg.ReviewAddBurst = cfg.RateLimitReviewAdd
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:        slog.Default(),
		SessionReader: sessionManager,
		RateLimiter:   rateLimiter,

		AuthService: authService,
		Sessions:    sessionManager,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		ReviewService: reviewService,
		Renderer:      renderer,
		MaxUploadSize: cfg.UploadMaxSize,

		Metrics:         collector,
		MetricsGatherer: registry,
		Health:          &mongoHealth{client: client},

		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
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
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down web server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
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
