package middleware

import "net/http"

// NewBodyLimitMiddleware はリクエストボディの読み取りに上限を設ける
// ミドルウェアを生成する。フォームパースがボディを消費する前に
// 適用する必要があるため、CSRFミドルウェアより前段に配置すること。
// 上限を超えた読み取りは*http.MaxBytesErrorで失敗し、
// 後段のフォームパースで検出される。
func NewBodyLimitMiddleware(maxBytes int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
