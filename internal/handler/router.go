package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/carlosssgaalvez/reviews-examen/internal/metrics"
	"github.com/carlosssgaalvez/reviews-examen/internal/middleware"
)

// HealthChecker はデータベース疎通確認のインターフェース。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger        *slog.Logger
	SessionReader middleware.SessionReader
	RateLimiter   *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	Sessions    SessionWriter
	AuthConfig  AuthHandlerConfig

	// レビュー
	ReviewService ReviewServiceInterface
	Renderer      *TemplateRenderer
	MaxUploadSize int64

	// 運用
	Metrics         *metrics.Collector
	MetricsGatherer prometheus.Gatherer
	Health          HealthChecker

	// Cookie設定
	CookieSecure bool
	CookieDomain string
}

// NewRouter は全ルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → SessionLoader → BodyLimit → CSRF
//
// BodyLimitはCSRFより前段に置く。CSRF検証がフォームをパースするため、
// ボディサイズ上限はその読み取りより先に適用されている必要がある。
//
// ホームと認証ルートは未ログインでも閲覧できる。
// レビュー詳細と投稿はログイン必須で、一般レート制限の内側に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(middleware.NewSessionLoader(deps.SessionReader))
	r.Use(middleware.NewBodyLimitMiddleware(deps.MaxUploadSize))
	r.Use(middleware.NewCSRFMiddleware(middleware.CSRFConfig{
		CookieSecure: deps.CookieSecure,
		CookieDomain: deps.CookieDomain,
	}))

	authHandler := NewAuthHandler(deps.AuthService, deps.Sessions, deps.Metrics, deps.AuthConfig)
	reviewHandler := NewReviewHandler(deps.ReviewService, deps.Renderer, deps.MaxUploadSize)

	// --- 認証不要のルート ---

	r.Get("/", reviewHandler.Home)
	r.Get("/login", authHandler.Login)
	r.Get("/auth", authHandler.Callback)
	r.Get("/logout", authHandler.Logout)

	r.Handle("/static/*", StaticHandler())

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := deps.Health.Ping(req.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: RequireLogin → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireLogin)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/review/{id}", reviewHandler.Detail)

		// POST /add - レビュー投稿（投稿専用レート制限を追加）
		r.With(deps.RateLimiter.ReviewAddMiddleware()).Post("/add", reviewHandler.Add)
	})

	return r
}
