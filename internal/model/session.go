package model

import "time"

// Claims はIdPが認証済みユーザーについて表明したidentity属性を表す。
type Claims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// TokenMetadata はIdPから取得したアクセストークンの付随情報を表す。
// 純粋に記録目的であり、取得後にIdPへ再検証されることはない。
// CreatedAtはコールバック処理時点の時刻であり、IdP側の発行時刻とは厳密には一致しない。
type TokenMetadata struct {
	AccessToken string    `json:"access_token" bson:"access_token"`
	ExpiresAt   time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}
