// Package review はレビューの作成・閲覧に関するビジネスロジックを提供する。
package review

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carlosssgaalvez/reviews-examen/internal/model"
	"github.com/carlosssgaalvez/reviews-examen/internal/repository"
)

// Geocoder は住所を座標に変換するインターフェース。
type Geocoder interface {
	// Lookup は住所を座標に変換する。結果が空の場合はnilを返す。
	Lookup(ctx context.Context, address string) (*model.Coordinates, error)
}

// Uploader は画像をアップロードして公開URLを返すインターフェース。
type Uploader interface {
	// Upload は画像をアップロードして公開URLを返す。
	Upload(ctx context.Context, filename string, file io.Reader) (string, error)
	// Enabled はアップロードが有効かどうかを返す。
	Enabled() bool
}

// Sanitizer はフォーム入力のサニタイズ機能のインターフェース。
type Sanitizer interface {
	Sanitize(input string) string
}

// FailureRecorder は外部コラボレーター失敗のメトリクスを記録するインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type FailureRecorder interface {
	RecordReviewCreated()
	RecordUploadFailure()
	RecordGeocodeFailure()
}

// Service はレビューに関するビジネスロジックを提供する。
type Service struct {
	reviewRepo repository.ReviewRepository
	geocoder   Geocoder
	uploader   Uploader
	sanitizer  Sanitizer
	recorder   FailureRecorder
}

// NewService はServiceを生成する。
func NewService(
	reviewRepo repository.ReviewRepository,
	geocoder Geocoder,
	uploader Uploader,
	sanitizer Sanitizer,
	recorder FailureRecorder,
) *Service {
	return &Service{
		reviewRepo: reviewRepo,
		geocoder:   geocoder,
		uploader:   uploader,
		sanitizer:  sanitizer,
		recorder:   recorder,
	}
}

// CreateInput はレビュー作成の入力。
type CreateInput struct {
	Establishment string
	Address       string
	Rating        int

	// ImageとImageFilenameは任意。Imageがnilの場合は画像なしとして扱う。
	Image         io.Reader
	ImageFilename string

	// 投稿者のクレームと（存在する場合）トークンメタデータ
	Claims model.Claims
	Token  *model.TokenMetadata
}

// Create はレビューを作成する。
// 画像アップロードとジオコーディングの失敗はレビュー作成を中断せず、
// それぞれ空URL・ゼロ座標に置き換えた上でログとメトリクスに記録する。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Review, error) {
	establishment := s.sanitizer.Sanitize(input.Establishment)
	address := s.sanitizer.Sanitize(input.Address)

	if establishment == "" {
		return nil, model.NewMissingFieldError("establishment")
	}
	if address == "" {
		return nil, model.NewMissingFieldError("address")
	}
	if !model.ValidRating(input.Rating) {
		return nil, model.NewInvalidRatingError(input.Rating)
	}
	// 投稿者を特定できないレビューは保存しない
	if input.Claims.Email == "" {
		return nil, model.NewSessionAbsentError()
	}

	// 1. 画像アップロード（失敗しても中断しない）
	imageURL := ""
	if input.Image != nil && s.uploader.Enabled() {
		url, err := s.uploader.Upload(ctx, input.ImageFilename, input.Image)
		if err != nil {
			slog.Warn("image upload failed, continuing without image",
				slog.String("code", model.ErrCodeUploadFailed),
				slog.String("error", err.Error()),
				slog.String("email", input.Claims.Email),
			)
			s.recorder.RecordUploadFailure()
		} else {
			imageURL = url
		}
	}

	// 2. ジオコーディング（失敗しても中断しない）
	coords := model.Coordinates{}
	result, err := s.geocoder.Lookup(ctx, address)
	if err != nil {
		slog.Warn("geocoding failed, storing zero coordinates",
			slog.String("code", model.ErrCodeGeocodeFailed),
			slog.String("error", err.Error()),
			slog.String("address", address),
		)
		s.recorder.RecordGeocodeFailure()
	} else if result != nil {
		coords = *result
	}

	// 3. レビューを保存
	review := &model.Review{
		ID:            uuid.New().String(),
		Establishment: establishment,
		Address:       address,
		Rating:        input.Rating,
		Coordinates:   coords,
		ImageURL:      imageURL,
		AuthorEmail:   input.Claims.Email,
		AuthorName:    input.Claims.Name,
		TokenDetails:  input.Token,
		CreatedAt:     time.Now(),
	}

	if err := s.reviewRepo.Create(ctx, review); err != nil {
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	s.recorder.RecordReviewCreated()
	slog.Info("review created",
		slog.String("review_id", review.ID),
		slog.String("establishment", review.Establishment),
		slog.String("email", review.AuthorEmail),
	)

	return review, nil
}

// Get は指定IDのレビューを取得する。見つからない場合はnilを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Review, error) {
	review, err := s.reviewRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return review, nil
}

// List は全レビューを作成日時の降順で返す。
func (s *Service) List(ctx context.Context) ([]*model.Review, error) {
	reviews, err := s.reviewRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

// DefaultMapCenter は地図の既定の中心座標（マラガ）。
var DefaultMapCenter = model.Coordinates{Lat: 36.7213, Lon: -4.4214}

// MapCenter は検索住所から地図の中心座標を決定する。
// 住所が空、ジオコーディング失敗、または結果なしの場合は既定の中心を返す。
func (s *Service) MapCenter(ctx context.Context, searchAddress string) model.Coordinates {
	if searchAddress == "" {
		return DefaultMapCenter
	}

	result, err := s.geocoder.Lookup(ctx, searchAddress)
	if err != nil {
		slog.Warn("map center geocoding failed, using default center",
			slog.String("error", err.Error()),
			slog.String("address", searchAddress),
		)
		s.recorder.RecordGeocodeFailure()
		return DefaultMapCenter
	}
	if result == nil {
		return DefaultMapCenter
	}

	return *result
}
