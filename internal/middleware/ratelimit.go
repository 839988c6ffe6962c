package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // 認証済みルート全般のレート（req/sec）
	GeneralBurst    int           // 認証済みルート全般のバーストサイズ
	ReviewAddRate   rate.Limit    // レビュー投稿のレート（req/sec）
	ReviewAddBurst  int           // レビュー投稿のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 認証済みルート全般 120 req/min/user、レビュー投稿 10 req/min/user
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		ReviewAddRate:   rate.Limit(10.0 / 60.0), // ~0.167 req/sec
		ReviewAddBurst:  10,
		CleanupInterval: 5 * time.Minute,
	}
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はユーザーごとのレート制限を管理する。
// 認証済みルート全般のレート制限とレビュー投稿のレート制限の2種類を提供する。
// キーはセッションクレームのemail。
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.RWMutex
	generalLimiters map[string]*userLimiter

	reviewAddMu       sync.RWMutex
	reviewAddLimiters map[string]*userLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:            config,
		generalLimiters:   make(map[string]*userLimiter),
		reviewAddLimiters: make(map[string]*userLimiter),
		stopCh:            make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware は認証済みルート全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにクレームが含まれている必要がある（SessionLoader + RequireLoginの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}

			limiter := rl.getOrCreateGeneralLimiter(claims.Email)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("email", claims.Email),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ReviewAddMiddleware はレビュー投稿専用のレート制限ミドルウェアを返す。
// 認証済みルート全般のレート制限とは独立に動作する。
func (rl *RateLimiter) ReviewAddMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}

			limiter := rl.getOrCreateReviewAddLimiter(claims.Email)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.ReviewAddRate)
				slog.Warn("rate limit exceeded",
					slog.String("email", claims.Email),
					slog.String("limit_type", "review_add"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されている全般リミッターのエントリ数を返す。
// テスト用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// ReviewAddLimiterCount は現在管理されているレビュー投稿リミッターのエントリ数を返す。
// テスト用。
func (rl *RateLimiter) ReviewAddLimiterCount() int {
	rl.reviewAddMu.RLock()
	defer rl.reviewAddMu.RUnlock()
	return len(rl.reviewAddLimiters)
}

// getOrCreateGeneralLimiter はユーザーの全般リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateGeneralLimiter(email string) *rate.Limiter {
	rl.generalMu.RLock()
	ul, exists := rl.generalLimiters[email]
	rl.generalMu.RUnlock()

	if exists {
		rl.generalMu.Lock()
		ul.lastAccess = time.Now()
		rl.generalMu.Unlock()
		return ul.limiter
	}

	rl.generalMu.Lock()
	defer rl.generalMu.Unlock()

	// ダブルチェック
	if ul, exists := rl.generalLimiters[email]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst)
	rl.generalLimiters[email] = &userLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// getOrCreateReviewAddLimiter はユーザーのレビュー投稿リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateReviewAddLimiter(email string) *rate.Limiter {
	rl.reviewAddMu.RLock()
	ul, exists := rl.reviewAddLimiters[email]
	rl.reviewAddMu.RUnlock()

	if exists {
		rl.reviewAddMu.Lock()
		ul.lastAccess = time.Now()
		rl.reviewAddMu.Unlock()
		return ul.limiter
	}

	rl.reviewAddMu.Lock()
	defer rl.reviewAddMu.Unlock()

	// ダブルチェック
	if ul, exists := rl.reviewAddLimiters[email]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(rl.config.ReviewAddRate, rl.config.ReviewAddBurst)
	rl.reviewAddLimiters[email] = &userLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.generalMu.Lock()
	for email, ul := range rl.generalLimiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.generalLimiters, email)
		}
	}
	rl.generalMu.Unlock()

	rl.reviewAddMu.Lock()
	for email, ul := range rl.reviewAddLimiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.reviewAddLimiters, email)
		}
	}
	rl.reviewAddMu.Unlock()
}

// writeRateLimitResponse は429レスポンスをRetry-Afterヘッダー付きで書き込む。
func writeRateLimitResponse(w http.ResponseWriter, limit rate.Limit) {
	retryAfter := 1
	if limit > 0 {
		retryAfter = int(math.Ceil(1.0 / float64(limit)))
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	http.Error(w, "too many requests", http.StatusTooManyRequests)
}
