package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/carlosssgaalvez/reviews-examen/internal/model"
)

func newTestRateLimiter(t *testing.T, config RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(config)
	t.Cleanup(rl.Stop)
	return rl
}

func authedRequest(email string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/review/abc", nil)
	return req.WithContext(ContextWithClaims(req.Context(), model.Claims{Email: email}))
}

func TestGeneralMiddleware_WithinLimit_Allowed(t *testing.T) {
	rl := newTestRateLimiter(t, DefaultRateLimiterConfig())

	var called int
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
	}))

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authedRequest("taro@example.com"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
	if called != 5 {
		t.Errorf("handler called %d times, want 5", called)
	}
}

func TestGeneralMiddleware_ExceedsLimit_Returns429(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.GeneralRate = rate.Limit(1)
	config.GeneralBurst = 2
	rl := newTestRateLimiter(t, config)

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	// バースト分は許可される
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authedRequest("taro@example.com"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	// バーストを超えたリクエストは429
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("taro@example.com"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}
}

func TestGeneralMiddleware_LimitsArePerUser(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.GeneralRate = rate.Limit(1)
	config.GeneralBurst = 1
	rl := newTestRateLimiter(t, config)

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	// taroの上限を使い切る
	handler.ServeHTTP(httptest.NewRecorder(), authedRequest("taro@example.com"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("taro@example.com"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("taro second request: status = %d, want 429", w.Code)
	}

	// hanakoは独立したリミッターを持つ
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("hanako@example.com"))
	if w.Code != http.StatusOK {
		t.Errorf("hanako first request: status = %d, want %d", w.Code, http.StatusOK)
	}

	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("limiter count = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestGeneralMiddleware_Unauthenticated_RedirectsHome(t *testing.T) {
	rl := newTestRateLimiter(t, DefaultRateLimiterConfig())

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for an unauthenticated request")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/review/abc", nil))

	if w.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusFound)
	}
}

func TestReviewAddMiddleware_IndependentFromGeneral(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.GeneralRate = rate.Limit(1)
	config.GeneralBurst = 1
	config.ReviewAddRate = rate.Limit(1)
	config.ReviewAddBurst = 1
	rl := newTestRateLimiter(t, config)

	general := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	reviewAdd := rl.ReviewAddMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	// 全般リミッターを使い切っても投稿リミッターには影響しない
	general.ServeHTTP(httptest.NewRecorder(), authedRequest("taro@example.com"))

	w := httptest.NewRecorder()
	reviewAdd.ServeHTTP(w, authedRequest("taro@example.com"))
	if w.Code != http.StatusOK {
		t.Errorf("review add status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestReviewAddMiddleware_ExceedsLimit_Returns429(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.ReviewAddRate = rate.Limit(1)
	config.ReviewAddBurst = 1
	rl := newTestRateLimiter(t, config)

	handler := rl.ReviewAddMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), authedRequest("taro@example.com"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("taro@example.com"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.CleanupInterval = 10 * time.Millisecond
	rl := newTestRateLimiter(t, config)

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), authedRequest("taro@example.com"))

	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("limiter count = %d, want 1", rl.GeneralLimiterCount())
	}

	// 最終アクセスからCleanupIntervalの2倍を超えるとエントリが削除される
	deadline := time.Now().Add(500 * time.Millisecond)
	for rl.GeneralLimiterCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stale limiter entry was not cleaned up, count = %d", rl.GeneralLimiterCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
