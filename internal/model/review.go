package model

import "time"

// Coordinates は緯度経度を表す。
type Coordinates struct {
	Lat float64 `bson:"lat"`
	Lon float64 `bson:"lon"`
}

// IsZero は座標が未設定（ジオコーディング失敗時のデフォルト値）かどうかを返す。
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lon == 0
}

// Review は店舗レビューを表す。
// 画像アップロードやジオコーディングが失敗した場合でもレビュー自体は作成され、
// ImageURLは空文字列、Coordinatesはゼロ値となる。
type Review struct {
	ID            string      `bson:"_id"`
	Establishment string      `bson:"establishment"`
	Address       string      `bson:"address"`
	Rating        int         `bson:"rating"`
	Coordinates   Coordinates `bson:"coordinates"`
	ImageURL      string      `bson:"image_url"`

	// 投稿者情報（セッションのクレームから転記）
	AuthorEmail string `bson:"author_email"`
	AuthorName  string `bson:"author_name"`

	// TokenDetails は投稿時点のセッションのトークンメタデータのスナップショット。
	// セッションにトークンメタデータがない場合はnil。
	TokenDetails *TokenMetadata `bson:"token_details,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
}

// MinRating とMaxRating はレビュー評価の有効範囲。
const (
	MinRating = 0
	MaxRating = 5
)

// ValidRating は評価値が有効範囲内かどうかを判定する。
func ValidRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}
