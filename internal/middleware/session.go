// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"

	"github.com/carlosssgaalvez/reviews-examen/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// claimsContextKey はリクエストコンテキストに認証済みクレームを格納するためのキー。
	claimsContextKey = contextKey("claims")
	// tokenContextKey はリクエストコンテキストにトークンメタデータを格納するためのキー。
	tokenContextKey = contextKey("token_metadata")
)

// SessionReader はセッションの読み取りに必要なインターフェース。
// session.Managerの部分集合として定義する。
type SessionReader interface {
	Read(r *http.Request) (model.Claims, *model.TokenMetadata, bool)
}

// NewSessionLoader は署名付きセッションCookieを検証し、有効な場合に
// クレームとトークンメタデータをリクエストコンテキストに注入するミドルウェアを返す。
// セッションが存在しない場合もリクエストは通す（未認証として扱う）。
// この層では「未認証」と「期限切れ」を区別しない。
func NewSessionLoader(reader SessionReader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, token, ok := reader.Read(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			if token != nil {
				ctx = context.WithValue(ctx, tokenContextKey, token)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireLogin は未認証リクエストをホームへリダイレクトするミドルウェア。
// SessionLoaderの後に配置すること。
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ClaimsFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClaimsFromContext はリクエストコンテキストから認証済みクレームを取得する。
// SessionLoaderを通過した認証済みリクエストでのみ有効。
func ClaimsFromContext(ctx context.Context) (model.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(model.Claims)
	if !ok || claims.Email == "" {
		return model.Claims{}, false
	}
	return claims, true
}

// TokenFromContext はリクエストコンテキストからトークンメタデータを取得する。
// セッションにトークンメタデータが含まれていない場合はnilを返す。
func TokenFromContext(ctx context.Context) *model.TokenMetadata {
	token, ok := ctx.Value(tokenContextKey).(*model.TokenMetadata)
	if !ok {
		return nil
	}
	return token
}

// ContextWithClaims はコンテキストにクレームを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClaims(ctx context.Context, claims model.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ContextWithToken はコンテキストにトークンメタデータを注入する。
func ContextWithToken(ctx context.Context, token *model.TokenMetadata) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}
