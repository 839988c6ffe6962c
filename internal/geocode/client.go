// Package geocode はNominatimジオコーディングAPIのクライアントを提供する。
// 住所の自由テキストを緯度経度に変換する。
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/carlosssgaalvez/reviews-examen/internal/model"
)

const (
	// defaultEndpoint はNominatim検索APIのエンドポイント。
	defaultEndpoint = "https://nominatim.openstreetmap.org/search"

	// userAgent はNominatimの利用ポリシーで要求されるUser-Agent。
	userAgent = "ReViewsApp/1.0"
)

// Client はNominatim APIのクライアント。
// Nominatimの利用ポリシー（最大1リクエスト/秒）に従うため、
// プロセス全体で共有されるレートリミッターを内蔵する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはSSRF防止機能付きのクライアントを渡すこと。
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
		endpoint:   defaultEndpoint,
	}
}

// nominatimResult はNominatim検索APIのレスポンス要素。
// latとlonは文字列として返される。
type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Lookup は住所の自由テキストを緯度経度に変換する。
// 結果が空の場合はnilを返す（エラーではない）。
// ネットワーク障害やAPIエラーはエラーとして返し、呼び出し元が
// デフォルト値（ゼロ座標や既定の地図中心）への置き換えを判断する。
func (c *Client) Lookup(ctx context.Context, address string) (*model.Coordinates, error) {
	if address == "" {
		return nil, nil
	}

	// 利用ポリシー遵守のためのスロットリング
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait canceled: %w", err)
	}

	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geocode endpoint: %w", err)
	}

	q := reqURL.Query()
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocode request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("geocode request failed",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("geocode API returned error status",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("geocode API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read geocode response: %w", err)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("failed to parse geocode response: %w", err)
	}

	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude in geocode response: %w", err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude in geocode response: %w", err)
	}

	return &model.Coordinates{Lat: lat, Lon: lon}, nil
}
