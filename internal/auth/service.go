// Package auth はOAuth認証フローを提供する。
// IdPへのリダイレクト開始、コールバック処理、初回ログイン時のユーザーupsertを担う。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/carlosssgaalvez/reviews-examen/internal/model"
	"github.com/carlosssgaalvez/reviews-examen/internal/repository"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// AuthCodeURL は認可URLを生成する。
	AuthCodeURL(ctx context.Context, state, redirectURI string) (string, error)
	// Exchange は認可コードをトークンに交換し、クレームとトークンメタデータを取得する。
	Exchange(ctx context.Context, code, redirectURI string) (*model.Claims, *model.TokenMetadata, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// CallbackPath はコールバックURLのパス（例: "/auth"）。
	CallbackPath string

	// SecureHostSuffixes はTLS終端が上流にあるプラットフォームのホストサフィックス一覧。
	// 該当ホストではコールバックURLのスキームをhttpsに書き換える。
	SecureHostSuffixes []string
}

// Service は認証フローに関するビジネスロジックを提供する。
type Service struct {
	oauth    OAuthProvider
	userRepo repository.UserRepository
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, userRepo repository.UserRepository, config ServiceConfig) *Service {
	return &Service{
		oauth:    oauth,
		userRepo: userRepo,
		config:   config,
	}
}

// BeginLogin はOAuthフローを開始し、ブラウザをリダイレクトすべき認可URLを返す。
// コールバックURLはリクエストから導出し、セキュアスキームの修正を適用する。
// セッションは一切変更しない。
func (s *Service) BeginLogin(ctx context.Context, r *http.Request, state string) (string, error) {
	redirectURI := s.CallbackURL(r)

	authURL, err := s.oauth.AuthCodeURL(ctx, state, redirectURI)
	if err != nil {
		return "", fmt.Errorf("failed to build auth code url: %w", err)
	}

	return authURL, nil
}

// CompleteLogin はOAuthコールバックを処理する。
// 成功時はクレームとトークンメタデータを返し、初回ログインならusersレコードを作成する。
// クレームが取得できない（emailが空）場合は、プロバイダーエラーと同様に
// ストアもセッションも変更せずエラーを返す。
func (s *Service) CompleteLogin(ctx context.Context, r *http.Request, code string) (*model.Claims, *model.TokenMetadata, error) {
	redirectURI := s.CallbackURL(r)

	claims, token, err := s.oauth.Exchange(ctx, code, redirectURI)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	if claims == nil || claims.Email == "" {
		return nil, nil, fmt.Errorf("provider returned no usable claims")
	}

	// 初回ログイン時のみユーザーを作成する。既存ユーザーは変更しない。
	user, err := s.userRepo.UpsertOnFirstLogin(ctx, claims.Email, claims.Name, claims.Picture)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	slog.Info("user logged in",
		slog.String("email", user.Email),
		slog.Time("user_created_at", user.CreatedAt),
	)

	return claims, token, nil
}

// CallbackURL はリクエストから外部に見えるコールバックURLを導出する。
// スキームはTLS接続またはX-Forwarded-Protoヘッダーから決定し、
// さらにホストがセキュア終端プラットフォーム（例: *.vercel.app）に属する場合は
// httpsへ強制的に書き換える。リバースプロキシ配下では公開リクエストがhttpsでも
// アプリケーションにはhttpとして見えるため、拒否ではなく書き換えで対応する。
func (s *Service) CallbackURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" {
		scheme = "https"
	}

	host := r.Host
	for _, suffix := range s.config.SecureHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			scheme = "https"
			break
		}
	}

	return scheme + "://" + host + s.config.CallbackPath
}
