// Package session はクライアント保持型の署名付きセッションを提供する。
// セッションの内容はHS256署名付きJWTとしてHTTP Only Cookieに格納され、
// サーバー側には一切永続化されない。有効期限の強制はJWTのexpクレームに委ねる。
package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/carlosssgaalvez/reviews-examen/internal/model"
)

// cookieName はセッションJWTを保持するCookieの名前。
const cookieName = "session"

// ManagerConfig はManagerの設定。
type ManagerConfig struct {
	Secret       string
	MaxAge       int // セッション有効期間（秒）
	CookieSecure bool
	CookieDomain string
}

// Manager はセッションCookieの発行・読み取り・破棄を行う。
type Manager struct {
	secret       []byte
	maxAge       int
	cookieSecure bool
	cookieDomain string
}

// NewManager はManagerを生成する。
func NewManager(config ManagerConfig) *Manager {
	return &Manager{
		secret:       []byte(config.Secret),
		maxAge:       config.MaxAge,
		cookieSecure: config.CookieSecure,
		cookieDomain: config.CookieDomain,
	}
}

// sessionClaims はセッションJWTのペイロード。
// 認証済みユーザーのクレームと、任意のトークンメタデータを保持する。
type sessionClaims struct {
	User  model.Claims         `json:"user"`
	Token *model.TokenMetadata `json:"token_data,omitempty"`
	jwt.RegisteredClaims
}

// Write はクレームと（指定された場合）トークンメタデータを署名付きで
// セッションCookieに書き込む。書き込みはアトミックで、クレームのみの
// 書き込み（tokenがnil）も有効。
func (m *Manager) Write(w http.ResponseWriter, claims model.Claims, token *model.TokenMetadata) error {
	now := time.Now()
	payload := sessionClaims{
		User:  claims,
		Token: token,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(m.maxAge) * time.Second)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("failed to sign session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    signed,
		Path:     "/",
		Domain:   m.cookieDomain,
		MaxAge:   m.maxAge,
		HttpOnly: true,
		Secure:   m.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// Read はリクエストのセッションCookieを検証し、クレームとトークンメタデータを返す。
// Cookieが存在しない、署名が不正、または期限切れの場合はok=falseを返す。
// この層では「未認証」と「期限切れ」を区別しない。
func (m *Manager) Read(r *http.Request) (model.Claims, *model.TokenMetadata, bool) {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return model.Claims{}, nil, false
	}

	payload := &sessionClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, payload,
		func(t *jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil || !token.Valid {
		return model.Claims{}, nil, false
	}

	if payload.User.Email == "" {
		return model.Claims{}, nil, false
	}

	return payload.User, payload.Token, true
}

// Clear はセッションCookieを破棄する。
// クレームとトークンメタデータの両方が消える。Cookieが元々存在しなくてもエラーにはならない。
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.cookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
