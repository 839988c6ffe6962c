// Package security はアプリケーションのセキュリティ機能を提供する。
//
// InputSanitizerService はユーザーがフォームから入力したテキスト
// （店舗名、住所等）からHTMLタグを除去し、保存データを平文に保つ。
// bluemondayのStrictPolicyにより、すべてのタグと属性が除去される。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// InputSanitizerService はフォーム入力のサニタイズ機能のインターフェースを定義する。
// レビュー作成時、保存前に使用される。
type InputSanitizerService interface {
	// Sanitize は入力テキストからすべてのHTMLタグを除去し、前後の空白を取り除く。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(input string) string
}

// inputSanitizer はInputSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type inputSanitizer struct {
	policy *bluemonday.Policy
}

// NewInputSanitizer はInputSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはタグを一切許可しないため、script等の危険な要素だけでなく
// 全てのマークアップが除去される。フォーム入力は平文として扱う方針。
func NewInputSanitizer() *inputSanitizer {
	return &inputSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力テキストからすべてのHTMLタグを除去し、前後の空白を取り除く。
func (s *inputSanitizer) Sanitize(input string) string {
	if input == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(input))
}

// compile-time interface check
var _ InputSanitizerService = (*inputSanitizer)(nil)
