// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// identityキーはemailで、usersコレクションのユニークインデックスにより一意性を保証する。
// 初回ログイン時に1回だけ作成され、2回目以降のログインでは既存レコードを変更しない。
type User struct {
	Email     string    `bson:"email"`
	Name      string    `bson:"name"`
	Picture   string    `bson:"picture"`
	CreatedAt time.Time `bson:"created_at"`

	// VisitsとMarkersは将来の拡張用に予約されたコレクション。
	// 初回ログイン時に空で作成される。
	Visits  []Visit  `bson:"visits"`
	Markers []Marker `bson:"markers"`
}

// Visit はユーザーの訪問履歴エントリを表す。
type Visit struct {
	ReviewID  string    `bson:"review_id"`
	VisitedAt time.Time `bson:"visited_at"`
}

// Marker はユーザーが地図上に保存したマーカーを表す。
type Marker struct {
	Label       string      `bson:"label"`
	Coordinates Coordinates `bson:"coordinates"`
	CreatedAt   time.Time   `bson:"created_at"`
}
