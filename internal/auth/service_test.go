package auth

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carlosssgaalvez/reviews-examen/internal/model"
)

// --- モック定義 ---

type mockOAuthProvider struct {
	authCodeURLFn func(ctx context.Context, state, redirectURI string) (string, error)
	exchangeFn    func(ctx context.Context, code, redirectURI string) (*model.Claims, *model.TokenMetadata, error)
}

func (m *mockOAuthProvider) AuthCodeURL(ctx context.Context, state, redirectURI string) (string, error) {
	if m.authCodeURLFn != nil {
		return m.authCodeURLFn(ctx, state, redirectURI)
	}
	return "", nil
}

func (m *mockOAuthProvider) Exchange(ctx context.Context, code, redirectURI string) (*model.Claims, *model.TokenMetadata, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code, redirectURI)
	}
	return nil, nil, nil
}

type mockUserRepo struct {
	findByEmailFn        func(ctx context.Context, email string) (*model.User, error)
	upsertOnFirstLoginFn func(ctx context.Context, email, name, picture string) (*model.User, error)

	upsertCalls int
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) UpsertOnFirstLogin(ctx context.Context, email, name, picture string) (*model.User, error) {
	m.upsertCalls++
	if m.upsertOnFirstLoginFn != nil {
		return m.upsertOnFirstLoginFn(ctx, email, name, picture)
	}
	return &model.User{Email: email, Name: name, Picture: picture, CreatedAt: time.Now()}, nil
}

// --- テスト ---

func TestService_BeginLogin_BuildsAuthURLWithCallback(t *testing.T) {
	var gotRedirectURI string
	oauth := &mockOAuthProvider{
		authCodeURLFn: func(ctx context.Context, state, redirectURI string) (string, error) {
			gotRedirectURI = redirectURI
			return "https://accounts.google.com/authorize?state=" + state, nil
		},
	}
	svc := NewService(oauth, &mockUserRepo{}, ServiceConfig{CallbackPath: "/auth"})

	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/login", nil)

	authURL, err := svc.BeginLogin(context.Background(), req, "state-xyz")
	if err != nil {
		t.Fatalf("BeginLogin failed: %v", err)
	}
	if authURL != "https://accounts.google.com/authorize?state=state-xyz" {
		t.Errorf("authURL = %q", authURL)
	}
	if gotRedirectURI != "http://localhost:8080/auth" {
		t.Errorf("redirectURI = %q, want %q", gotRedirectURI, "http://localhost:8080/auth")
	}
}

func TestService_CompleteLogin_Success_UpsertsUser(t *testing.T) {
	oauth := &mockOAuthProvider{
		exchangeFn: func(ctx context.Context, code, redirectURI string) (*model.Claims, *model.TokenMetadata, error) {
			return &model.Claims{
					Email:   "taro@example.com",
					Name:    "Taro Yamada",
					Picture: "https://example.com/taro.png",
				}, &model.TokenMetadata{
					AccessToken: "access-token",
					ExpiresAt:   time.Now().Add(time.Hour),
					CreatedAt:   time.Now(),
				}, nil
		},
	}
	repo := &mockUserRepo{}
	svc := NewService(oauth, repo, ServiceConfig{CallbackPath: "/auth"})

	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/auth?code=abc", nil)

	claims, token, err := svc.CompleteLogin(context.Background(), req, "abc")
	if err != nil {
		t.Fatalf("CompleteLogin failed: %v", err)
	}
	if claims.Email != "taro@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "taro@example.com")
	}
	if token == nil || token.AccessToken != "access-token" {
		t.Errorf("token = %+v, want access-token", token)
	}
	if repo.upsertCalls != 1 {
		t.Errorf("upsert calls = %d, want 1", repo.upsertCalls)
	}
}

func TestService_CompleteLogin_ExchangeFails_NoUpsert(t *testing.T) {
	oauth := &mockOAuthProvider{
		exchangeFn: func(ctx context.Context, code, redirectURI string) (*model.Claims, *model.TokenMetadata, error) {
			return nil, nil, errors.New("provider unreachable")
		},
	}
	repo := &mockUserRepo{}
	svc := NewService(oauth, repo, ServiceConfig{CallbackPath: "/auth"})

	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/auth?code=abc", nil)

	_, _, err := svc.CompleteLogin(context.Background(), req, "abc")
	if err == nil {
		t.Fatal("CompleteLogin should fail when the exchange fails")
	}
	if repo.upsertCalls != 0 {
		t.Errorf("upsert calls = %d, want 0 (store must not change on failure)", repo.upsertCalls)
	}
}

func TestService_CompleteLogin_EmptyEmail_NoUpsert(t *testing.T) {
	oauth := &mockOAuthProvider{
		exchangeFn: func(ctx context.Context, code, redirectURI string) (*model.Claims, *model.TokenMetadata, error) {
			return &model.Claims{Name: "No Email"}, &model.TokenMetadata{}, nil
		},
	}
	repo := &mockUserRepo{}
	svc := NewService(oauth, repo, ServiceConfig{CallbackPath: "/auth"})

	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/auth?code=abc", nil)

	_, _, err := svc.CompleteLogin(context.Background(), req, "abc")
	if err == nil {
		t.Fatal("CompleteLogin should fail when the provider returns no email")
	}
	if repo.upsertCalls != 0 {
		t.Errorf("upsert calls = %d, want 0", repo.upsertCalls)
	}
}

func TestService_CompleteLogin_UpsertFails_ReturnsError(t *testing.T) {
	oauth := &mockOAuthProvider{
		exchangeFn: func(ctx context.Context, code, redirectURI string) (*model.Claims, *model.TokenMetadata, error) {
			return &model.Claims{Email: "taro@example.com"}, &model.TokenMetadata{}, nil
		},
	}
	repo := &mockUserRepo{
		upsertOnFirstLoginFn: func(ctx context.Context, email, name, picture string) (*model.User, error) {
			return nil, errors.New("db down")
		},
	}
	svc := NewService(oauth, repo, ServiceConfig{CallbackPath: "/auth"})

	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/auth?code=abc", nil)

	_, _, err := svc.CompleteLogin(context.Background(), req, "abc")
	if err == nil {
		t.Fatal("CompleteLogin should propagate the upsert error")
	}
}

func TestService_CallbackURL(t *testing.T) {
	tests := []struct {
		name      string
		host      string
		forwarded string
		tls       bool
		suffixes  []string
		want      string
	}{
		{
			name: "素のHTTP",
			host: "localhost:8080",
			want: "http://localhost:8080/auth",
		},
		{
			name: "TLS接続",
			host: "reviews.example.com",
			tls:  true,
			want: "https://reviews.example.com/auth",
		},
		{
			name:      "X-Forwarded-Protoがhttps",
			host:      "reviews.example.com",
			forwarded: "https",
			want:      "https://reviews.example.com/auth",
		},
		{
			name:     "セキュア終端プラットフォームのホストは強制https",
			host:     "mimapa.vercel.app",
			suffixes: []string{".vercel.app"},
			want:     "https://mimapa.vercel.app/auth",
		},
		{
			name:     "サフィックス非該当のホストはhttpのまま",
			host:     "mimapa.example.com",
			suffixes: []string{".vercel.app"},
			want:     "http://mimapa.example.com/auth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&mockOAuthProvider{}, &mockUserRepo{}, ServiceConfig{
				CallbackPath:       "/auth",
				SecureHostSuffixes: tt.suffixes,
			})

			req := httptest.NewRequest(http.MethodGet, "http://"+tt.host+"/login", nil)
			req.Host = tt.host
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-Proto", tt.forwarded)
			}
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}

			if got := svc.CallbackURL(req); got != tt.want {
				t.Errorf("CallbackURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
