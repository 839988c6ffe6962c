// Package upload はCloudinary画像アップロードAPIのクライアントを提供する。
// アップロードに成功すると画像の公開URLを返す。
package upload

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

// Config はCloudinaryクライアントの設定。
// 認証情報が空の場合、アップロードは無効化される。
type Config struct {
	CloudName string
	APIKey    string
	APISecret string

	// Endpoint はアップロードAPIのURL。テスト用にオーバーライド可能。
	// 空の場合はCloudName から標準エンドポイントを構築する。
	Endpoint string
}

// Client はCloudinaryアップロードAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
	now        func() time.Time // テスト用に差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config) *Client {
	if config.Endpoint == "" && config.CloudName != "" {
		config.Endpoint = fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", config.CloudName)
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
		now:        time.Now,
	}
}

// Enabled は認証情報が揃っていてアップロードが有効かどうかを返す。
func (c *Client) Enabled() bool {
	return c.config.CloudName != "" && c.config.APIKey != "" && c.config.APISecret != ""
}

// uploadResponse はCloudinaryアップロードAPIのレスポンス。
type uploadResponse struct {
	SecureURL string `json:"secure_url"`
}

// Upload は画像をアップロードし、公開URL（secure_url）を返す。
// アップロードが無効な場合や失敗した場合はエラーを返し、呼び出し元が
// 空URLへの置き換えを判断する（レビュー作成自体は中断しない）。
func (c *Client) Upload(ctx context.Context, filename string, file io.Reader) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("upload is disabled: cloudinary credentials are not configured")
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)

	// 署名: アルファベット順のパラメータ文字列 + APIシークレットのSHA-1
	signature := signParams("timestamp="+timestamp, c.config.APISecret)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to copy file contents: %w", err)
	}

	fields := map[string]string{
		"api_key":   c.config.APIKey,
		"timestamp": timestamp,
		"signature": signature,
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return "", fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("upload request failed",
			slog.String("error", err.Error()),
		)
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("upload API returned error status",
			slog.Int("http_status", resp.StatusCode),
		)
		return "", fmt.Errorf("upload API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result uploadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}

	if result.SecureURL == "" {
		return "", fmt.Errorf("empty secure_url in upload response")
	}

	return result.SecureURL, nil
}

// signParams はCloudinaryのリクエスト署名を計算する。
// 署名対象はアルファベット順に連結したパラメータ文字列にAPIシークレットを
// 連結したもののSHA-1ハッシュ。
func signParams(params, apiSecret string) string {
	sum := sha1.Sum([]byte(params + apiSecret))
	return hex.EncodeToString(sum[:])
}
