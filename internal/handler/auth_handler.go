// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/carlosssgaalvez/reviews-examen/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, r *http.Request, state string) (string, error)
	CompleteLogin(ctx context.Context, r *http.Request, code string) (*model.Claims, *model.TokenMetadata, error)
}

// SessionWriter はセッションの書き込みと破棄に必要なインターフェース。
// session.Managerの部分集合として定義する。
type SessionWriter interface {
	Write(w http.ResponseWriter, claims model.Claims, token *model.TokenMetadata) error
	Clear(w http.ResponseWriter)
}

// AuthMetrics は認証結果のメトリクスを記録するインターフェース。
type AuthMetrics interface {
	RecordLoginSuccess()
	RecordLoginFailure(reason string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	sessions SessionWriter
	metrics  AuthMetrics
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, sessions SessionWriter, metrics AuthMetrics, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		sessions: sessions,
		metrics:  metrics,
		config:   config,
	}
}

// Login はOAuthフローを開始する。
// GET /login
// セッションは変更しない。認可URLの構築失敗のみリクエストに対して致命的となる。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	url, err := h.service.BeginLogin(r.Context(), r, state)
	if err != nil {
		slog.Error("failed to begin oauth login", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// Callback はOAuthコールバックを処理する。
// GET /auth?code=xxx&state=yyy
// あらゆる失敗（state不一致、コード欠落、プロバイダーエラー、クレーム欠落）は
// セッションもストアも変更せず、ホームへのリダイレクトとして回復する。
// ブラウザから見た結果は成功時と区別がつかず、区別はログとメトリクスにのみ残る。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// stateクッキーは結果にかかわらず削除する
	clearStateCookie := func() {
		http.SetCookie(w, &http.Cookie{
			Name:     oauthStateCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		h.metrics.RecordLoginFailure("state_mismatch")
		clearStateCookie()
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	clearStateCookie()

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Warn("oauth callback missing authorization code")
		h.metrics.RecordLoginFailure("missing_code")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	// 3. 認証処理（トークン交換、クレーム取得、初回ログイン時のユーザー作成）
	claims, token, err := h.service.CompleteLogin(r.Context(), r, code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		h.metrics.RecordLoginFailure("provider_error")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	// 4. セッションを書き込む（クレームとトークンメタデータをアトミックに設定）
	if err := h.sessions.Write(w, *claims, token); err != nil {
		slog.Error("failed to write session", slog.String("error", err.Error()))
		h.metrics.RecordLoginFailure("session_write")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	h.metrics.RecordLoginSuccess()
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout はセッションを破棄する。
// GET /logout
// アクティブなセッションがない場合もエラーにせず、同様にホームへリダイレクトする（冪等）。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
