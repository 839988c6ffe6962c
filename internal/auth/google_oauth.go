package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/carlosssgaalvez/reviews-examen/internal/model"
)

// defaultDiscoveryURL はGoogleのOIDCディスカバリドキュメントのURL。
const defaultDiscoveryURL = "https://accounts.google.com/.well-known/openid-configuration"

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string

	// DiscoveryURL はOIDCディスカバリドキュメントのURL。テスト用にオーバーライド可能。
	DiscoveryURL string

	// AuthURL / TokenURL / UserInfoURL がすべて設定されている場合、
	// ディスカバリをスキップしてこれらのエンドポイントを直接使用する（テスト用）。
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// GoogleOAuthProvider はGoogle OIDCによる認証を提供する。
// エンドポイントはディスカバリドキュメントから初回利用時に1回だけ解決され、
// 以降はキャッシュされる。
type GoogleOAuthProvider struct {
	config     GoogleOAuthConfig
	httpClient *http.Client

	mu        sync.Mutex
	endpoints *oidcEndpoints
}

// oidcEndpoints はディスカバリドキュメントから解決したエンドポイント。
type oidcEndpoints struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	if config.DiscoveryURL == "" {
		config.DiscoveryURL = defaultDiscoveryURL
	}
	p := &GoogleOAuthProvider{
		config:     config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	if config.AuthURL != "" && config.TokenURL != "" && config.UserInfoURL != "" {
		p.endpoints = &oidcEndpoints{
			AuthorizationEndpoint: config.AuthURL,
			TokenEndpoint:         config.TokenURL,
			UserinfoEndpoint:      config.UserInfoURL,
		}
	}
	return p
}

// resolveEndpoints はOIDCディスカバリドキュメントを取得してエンドポイントを解決する。
// 解決結果はプロセス内でキャッシュされる。
func (p *GoogleOAuthProvider) resolveEndpoints(ctx context.Context) (*oidcEndpoints, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.endpoints != nil {
		return p.endpoints, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.DiscoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read discovery response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery failed with status %d: %s", resp.StatusCode, string(body))
	}

	var endpoints oidcEndpoints
	if err := json.Unmarshal(body, &endpoints); err != nil {
		return nil, fmt.Errorf("failed to parse discovery document: %w", err)
	}

	if endpoints.AuthorizationEndpoint == "" || endpoints.TokenEndpoint == "" || endpoints.UserinfoEndpoint == "" {
		return nil, fmt.Errorf("discovery document is missing required endpoints")
	}

	p.endpoints = &endpoints
	return p.endpoints, nil
}

// AuthCodeURL はGoogle OIDCの認可URLを生成する。
// スコープにはopenid, email, profileを含む。
func (p *GoogleOAuthProvider) AuthCodeURL(ctx context.Context, state, redirectURI string) (string, error) {
	endpoints, err := p.resolveEndpoints(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve oidc endpoints: %w", err)
	}

	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {redirectURI},
		"response_type": {"code"},
		"scope":         {"openid email profile"},
		"state":         {state},
	}
	return endpoints.AuthorizationEndpoint + "?" + params.Encode(), nil
}

// googleTokenResponse はGoogleのトークンエンドポイントのレスポンス。
type googleTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	IDToken     string `json:"id_token"`
}

// googleUserInfo はGoogleのユーザー情報エンドポイントのレスポンス。
type googleUserInfo struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Exchange は認可コードをアクセストークンに交換し、クレームとトークンメタデータを返す。
// プロバイダー側のエラー、ネットワーク障害、不正なレスポンスはすべてエラーとして返し、
// 呼び出し元（Auth Flowコントローラー）が「セッション変更なしでホームへリダイレクト」に回復する。
func (p *GoogleOAuthProvider) Exchange(ctx context.Context, code, redirectURI string) (*model.Claims, *model.TokenMetadata, error) {
	endpoints, err := p.resolveEndpoints(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve oidc endpoints: %w", err)
	}

	// 1. 認可コードをアクセストークンに交換
	tokenResp, err := p.exchangeToken(ctx, endpoints.TokenEndpoint, code, redirectURI)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. アクセストークンでユーザー情報を取得
	userInfo, err := p.fetchUserInfo(ctx, endpoints.UserinfoEndpoint, tokenResp.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	claims := &model.Claims{
		Email:   userInfo.Email,
		Name:    userInfo.Name,
		Picture: userInfo.Picture,
	}

	// CreatedAtは処理時点の時刻であり、IdP側の発行時刻とは厳密には一致しない
	now := time.Now()
	token := &model.TokenMetadata{
		AccessToken: tokenResp.AccessToken,
		ExpiresAt:   now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
		CreatedAt:   now,
	}

	return claims, token, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
func (p *GoogleOAuthProvider) exchangeToken(ctx context.Context, tokenURL, code, redirectURI string) (*googleTokenResponse, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {redirectURI},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp googleTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &tokenResp, nil
}

// fetchUserInfo はアクセストークンでGoogleのユーザー情報を取得する。
func (p *GoogleOAuthProvider) fetchUserInfo(ctx context.Context, userInfoURL, accessToken string) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var userInfo googleUserInfo
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}

	return &userInfo, nil
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
