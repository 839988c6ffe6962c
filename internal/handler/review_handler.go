package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/carlosssgaalvez/reviews-examen/internal/middleware"
	"github.com/carlosssgaalvez/reviews-examen/internal/model"
	"github.com/carlosssgaalvez/reviews-examen/internal/review"
)

// ReviewServiceInterface はレビューハンドラーが必要とするサービスインターフェース。
type ReviewServiceInterface interface {
	Create(ctx context.Context, input review.CreateInput) (*model.Review, error)
	Get(ctx context.Context, id string) (*model.Review, error)
	List(ctx context.Context) ([]*model.Review, error)
	MapCenter(ctx context.Context, searchAddress string) model.Coordinates
}

// ReviewHandler はレビュー一覧・詳細・作成のHTTPハンドラー。
type ReviewHandler struct {
	service       ReviewServiceInterface
	renderer      *TemplateRenderer
	maxUploadSize int64
}

// NewReviewHandler はReviewHandlerを生成する。
func NewReviewHandler(service ReviewServiceInterface, renderer *TemplateRenderer, maxUploadSize int64) *ReviewHandler {
	return &ReviewHandler{
		service:       service,
		renderer:      renderer,
		maxUploadSize: maxUploadSize,
	}
}

// homeData はホームページのテンプレートデータ。
type homeData struct {
	User      *model.Claims
	Reviews   []*model.Review
	MapCenter model.Coordinates
	CSRFToken string
}

// Home はレビュー一覧と地図を表示する。
// GET /?search_address=xxx
// search_addressが指定された場合は地図の中心をその住所に合わせる。
// ジオコーディング失敗時は既定の中心にフォールバックする。
func (h *ReviewHandler) Home(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.service.List(r.Context())
	if err != nil {
		slog.Error("failed to list reviews", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	data := homeData{
		Reviews:   reviews,
		MapCenter: h.service.MapCenter(r.Context(), r.URL.Query().Get("search_address")),
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		data.User = &claims
	}

	h.renderer.Render(w, "index", data)
}

// detailData は詳細ページのテンプレートデータ。
type detailData struct {
	User   *model.Claims
	Review *model.Review
}

// Detail はレビュー詳細を表示する。
// GET /review/{id}
// 未認証リクエストはRequireLoginミドルウェアによりホームへリダイレクトされる。
func (h *ReviewHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rev, err := h.service.Get(r.Context(), id)
	if err != nil {
		slog.Error("failed to get review",
			slog.String("error", err.Error()),
			slog.String("review_id", id),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if rev == nil {
		apiErr := model.NewReviewNotFoundError(id)
		http.Error(w, apiErr.Message, http.StatusNotFound)
		return
	}

	data := detailData{Review: rev}
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		data.User = &claims
	}

	h.renderer.Render(w, "detail", data)
}

// Add はレビューを作成する。
// POST /add (multipart/form-data: establishment, address, rating, image?)
// 画像アップロードとジオコーディングの失敗はレビュー作成を中断しない。
func (h *ReviewHandler) Add(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	rating, err := strconv.Atoi(r.PostFormValue("rating"))
	if err != nil {
		http.Error(w, "invalid rating", http.StatusBadRequest)
		return
	}

	input := review.CreateInput{
		Establishment: r.PostFormValue("establishment"),
		Address:       r.PostFormValue("address"),
		Rating:        rating,
		Claims:        claims,
		Token:         middleware.TokenFromContext(r.Context()),
	}

	// 画像は任意
	file, header, err := r.FormFile("image")
	if err == nil && header.Filename != "" {
		defer file.Close()
		input.Image = file
		input.ImageFilename = header.Filename
	}

	if _, err := h.service.Create(r.Context(), input); err != nil {
		var apiErr *model.APIError
		if asAPIError(err, &apiErr) {
			http.Error(w, apiErr.Message, http.StatusBadRequest)
			return
		}
		slog.Error("failed to create review", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// asAPIError はエラーチェーンからAPIErrorを抽出する。
func asAPIError(err error, target **model.APIError) bool {
	return errors.As(err, target)
}
