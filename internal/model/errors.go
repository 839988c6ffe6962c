// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, review, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRating  = "INVALID_RATING"
	ErrCodeMissingField   = "MISSING_FIELD"
	ErrCodeReviewNotFound = "REVIEW_NOT_FOUND"
	ErrCodeUploadFailed   = "UPLOAD_FAILED"
	ErrCodeGeocodeFailed  = "GEOCODE_FAILED"
	ErrCodeUserNotFound   = "USER_NOT_FOUND"
	ErrCodeSessionAbsent  = "SESSION_ABSENT"
)

// NewInvalidRatingError は無効な評価値エラーを生成する。
func NewInvalidRatingError(rating int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRating,
		Message:  fmt.Sprintf("無効な評価値です: %d", rating),
		Category: "validation",
		Action:   "評価は0から5の整数で指定してください。",
	}
}

// NewMissingFieldError は必須フィールド未入力エラーを生成する。
func NewMissingFieldError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingField,
		Message:  fmt.Sprintf("必須フィールドが未入力です: %s", field),
		Category: "validation",
		Action:   "フォームの必須項目をすべて入力してください。",
	}
}

// NewReviewNotFoundError はレビュー未検出エラーを生成する。
func NewReviewNotFoundError(reviewID string) *APIError {
	return &APIError{
		Code:     ErrCodeReviewNotFound,
		Message:  fmt.Sprintf("指定されたレビューが見つかりません: %s", reviewID),
		Category: "review",
		Action:   "レビューIDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewSessionAbsentError はセッションが存在しない場合のエラーを生成する。
func NewSessionAbsentError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionAbsent,
		Message:  "ログインしていません。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}
